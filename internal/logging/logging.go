// Package logging builds the slog logger used by every tasksync component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mschirtzinger/tasksync/internal/config"
)

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// New returns a logger for cfg, its adjustable level and the writer behind
// it. When cfg.File is set, output goes to a size-rotated file; otherwise to
// stderr. The caller closes the returned writer on shutdown.
func New(cfg config.LogConfig) (*slog.Logger, *slog.LevelVar, io.WriteCloser) {
	var out io.WriteCloser = nopCloser{os.Stderr}
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))
	return NewWithWriter(cfg, out, level), level, out
}

// NewWithWriter builds a logger for cfg that writes to w. A nil level uses
// cfg.Level.
func NewWithWriter(cfg config.LogConfig, w io.Writer, level slog.Leveler) *slog.Logger {
	if level == nil {
		level = ParseLevel(cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
