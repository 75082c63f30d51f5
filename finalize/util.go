package finalize

import (
	"context"
	"log/slog"
)

// LevelTrace is the log level of per-instruction finalizer decisions.
const LevelTrace slog.Level = slog.LevelInfo + 1

// Trace logs msg at LevelTrace.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}
