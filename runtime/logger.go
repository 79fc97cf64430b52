package runtime

import "go.uber.org/zap"

var log = zap.NewNop()

// SetLogger sets the logger for runtime operations.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		log = logger
	}
}
