package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger installs the process-wide slog default. Dev gets readable text
// at debug level; every other env gets JSON at info. Records carry the
// service name plus trace and actor ids from ctx.
func NewLogger(env, service string) *slog.Logger {
	log := newLogger(os.Stdout, env).With("service", service)
	slog.SetDefault(log)
	return log
}

func newLogger(w io.Writer, env string) *slog.Logger {
	var handler slog.Handler

	if env == "dev" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}

	return slog.New(NewTraceHandler(handler))
}
