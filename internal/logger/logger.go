// Package logger builds the structured slog loggers used across the service.
// Records are emitted one per line with a "ts" timestamp rendered in a configured location.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"docshelf/internal/config"
)

// New returns a logger writing to stdout according to the log configuration.
func New(cfg config.LogConfig, loc *time.Location) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return NewJSON(os.Stdout, loc, level), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stdout, handlerOptions(loc, level))), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Format)
	}
}

// NewJSON returns a JSON logger writing to w.
func NewJSON(w io.Writer, loc *time.Location, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, handlerOptions(loc, level)))
}

// ParseLevel converts a textual level into its slog equivalent.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

func handlerOptions(loc *time.Location, level slog.Level) *slog.HandlerOptions {
	if loc == nil {
		loc = time.UTC
	}
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.String("ts", a.Value.Time().In(loc).Format(time.RFC3339Nano))
			}
			return a
		},
	}
}
