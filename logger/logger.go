package logger

import (
	"go.uber.org/zap"
)

var Log *zap.Logger

// Init builds the process-wide logger. Development mode switches to the
// human-readable console encoder.
func Init(env string) *zap.Logger {
	if env == "development" {
		Log = zap.Must(zap.NewDevelopment())
	} else {
		Log = zap.Must(zap.NewProduction())
	}
	zap.ReplaceGlobals(Log)
	return Log
}

// Sync flushes buffered entries; the error from syncing stderr is ignored.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
