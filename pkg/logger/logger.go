// Package logger builds the slog loggers used across thinkmate.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level     slog.Level
	format    Format
	component string
	writer    io.Writer
}

// New creates a *slog.Logger. Without options it writes slog's text format
// at Info level to os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:  slog.LevelInfo,
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.writer == nil {
		c.writer = os.Stdout
	}

	var h slog.Handler
	switch c.format {
	case FormatPretty:
		level := charmlog.InfoLevel
		if c.level <= slog.LevelDebug {
			level = charmlog.DebugLevel
		}
		h = charmlog.NewWithOptions(c.writer, charmlog.Options{
			Level:           level,
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
		})
	case FormatJSON:
		h = slog.NewJSONHandler(c.writer, &slog.HandlerOptions{Level: c.level})
	default:
		h = slog.NewTextHandler(c.writer, &slog.HandlerOptions{Level: c.level})
	}

	l := slog.New(h)
	if c.component != "" {
		l = l.With("component", c.component)
	}
	return l
}

// Nop returns a logger that discards every record.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrNop returns l, or a Nop logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}
