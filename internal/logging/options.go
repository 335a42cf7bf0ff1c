package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Option configures a logger created with New.
type Option func(*config)

type config struct {
	level   slog.Level
	json    bool
	pretty  bool
	source  bool
	writers []io.Writer
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithLevelName sets the level from a config value such as "debug".
// Unknown names keep the current level.
func WithLevelName(name string) Option {
	return func(c *config) {
		if level, ok := ParseLevel(name); ok {
			c.level = level
		}
	}
}

// WithFormat selects text, json or pretty output by name.
func WithFormat(format string) Option {
	return func(c *config) {
		switch strings.ToLower(format) {
		case "json":
			c.json, c.pretty = true, false
		case "pretty":
			c.json, c.pretty = false, true
		default:
			c.json, c.pretty = false, false
		}
	}
}

// WithJSON enables slog's JSON handler for structured service logs.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithPretty enables the charmbracelet/log handler for colorized,
// human-friendly CLI output.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithWriter overrides the output writer. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writers = []io.Writer{w}
	}
}

// WithWriters sets multiple output writers (combined via io.MultiWriter).
func WithWriters(w ...io.Writer) Option {
	return func(c *config) {
		c.writers = w
	}
}

// WithSource includes source file:line in log output.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}

func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
