package obs

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide structured logger. Grounded on
// hector's pervasive use of log/slog across pkg/server and pkg/embedders
// (key-value attributes rather than printf-style messages).
func NewLogger(service string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", service)
}
