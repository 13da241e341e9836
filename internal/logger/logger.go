package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes logging for one vastwatch process. When File is set,
// records go to a size-rotated file; otherwise to stderr. Color applies to
// console output only.
type Config struct {
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// ParseLevel maps a config string to a slog level. Unknown values fall back
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// FileWriter returns the rotated writer for Config.File, or nil when file
// logging is disabled. Callers own closing it.
func (c Config) FileWriter() io.WriteCloser {
	if c.File == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.File,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// NewSlogger builds the process logger from the config.
func (c Config) NewSlogger() *slog.Logger {
	h, _ := c.NewHandler()
	return slog.New(h)
}

// NewHandler builds the slog handler plus the closer for any file writer it
// opened (nil when logging to the console).
func (c Config) NewHandler() (slog.Handler, io.Closer) {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}
	if w := c.FileWriter(); w != nil {
		return slog.NewTextHandler(w, opts), w
	}
	if c.Color {
		return NewColorTextHandler(os.Stderr, opts), nil
	}
	return slog.NewTextHandler(os.Stderr, opts), nil
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
