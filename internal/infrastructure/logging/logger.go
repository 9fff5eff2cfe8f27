package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
)

// serviceName is attached to every record.
const serviceName = "grayhub"

// redacted replaces the value of any attribute whose key names a secret.
const redacted = "[REDACTED]"

// sensitiveKeys are attribute keys that never reach the log output.
// Matching is on the last path segment, case-insensitive.
var sensitiveKeys = map[string]bool{
	"password": true,
	"token":    true,
	"secret":   true,
	"settings": true,
}

// Logger wraps slog.Logger with hub-specific functionality.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the logging section of the configuration.
//
// Output is "stdout" (default), "stderr" or a file path opened for append.
// When the file cannot be opened the logger falls back to stderr and says so
// in its first record.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	out, err := openOutput(cfg.Output)
	logger := newWithWriter(out, cfg, version)
	if err != nil {
		logger.Warn("log output unavailable, writing to stderr", "output", cfg.Output, "error", err)
	}
	return logger
}

func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path comes from the operator's config
	if err != nil {
		return os.Stderr, err
	}
	return f, nil
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
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

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with the given component name.
//
// Example:
//
//	engineLog := logger.Component("discovery")
//	engineLog.Info("sweep complete") // Includes component=discovery
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates the logger used before configuration is loaded: JSON
// on stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
