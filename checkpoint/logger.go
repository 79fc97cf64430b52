package checkpoint

import "go.uber.org/zap"

var log = zap.NewNop()

// SetLogger sets the logger for checkpoint operations.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		log = logger
	}
}
