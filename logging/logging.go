// Package logging builds the slog.Logger shared by the binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// ParseLevel accepts debug, info, warn or error (any case).
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return l, nil
}

// New returns a logger writing to w in the given format.
//   - text: charmbracelet/log, coloured when w is a terminal
//   - json: one compact JSON object per line
//   - pretty: indented JSON, see PrettyJSONHandler
func New(w io.Writer, format string, level slog.Level) (*slog.Logger, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		h := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Level:           charmlog.Level(level),
		})
		return slog.New(h), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	case FormatPretty:
		return slog.New(NewPrettyJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text, json or pretty)", format)
	}
}

// MustNew is New for main packages: it falls back to text at info level and
// reports the problem through the fallback logger.
func MustNew(w io.Writer, format, level string) *slog.Logger {
	lvl, lvlErr := ParseLevel(level)
	logger, err := New(w, format, lvl)
	if err != nil {
		logger, _ = New(w, FormatText, lvl)
		logger.Warn("falling back to text logs", "error", err)
	}
	if lvlErr != nil && level != "" {
		logger.Warn("falling back to info level", "error", lvlErr)
	}
	return logger
}
