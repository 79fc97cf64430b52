package analyzer

import "go.uber.org/zap"

// logger is a no-op by default; hosts opt in via SetLogger.
var logger = zap.NewNop()

// SetLogger installs a logger for analysis diagnostics.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}
