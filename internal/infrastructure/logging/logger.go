package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/keyfold/keyfold-core/internal/infrastructure/config"
)

// Logger is the platform logger: slog with the service identity
// attached to every record. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of config.yaml. Format
// is "json" (the default, for log shippers) or "text" for local
// development; output is "stdout" or "stderr".
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return newWithWriter(cfg, version, w)
}

// newWithWriter is New with the destination injected, for tests.
func newWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	// Every record identifies the emitting service and build.
	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "keyfold"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// With returns a child logger carrying extra default attributes:
//
//	vendorLog := log.With("vendor", "lockwise")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the bootstrap logger used before configuration loads:
// JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// parseLevel maps a config string to a slog level, defaulting to info
// for anything unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
