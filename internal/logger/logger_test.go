package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"  Info ", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFileWriter_Disabled(t *testing.T) {
	cfg := Config{}
	if w := cfg.FileWriter(); w != nil {
		t.Fatalf("expected nil writer when File is empty")
	}
}

func TestFileWriter_Defaults(t *testing.T) {
	cfg := Config{File: filepath.Join(t.TempDir(), "vastwatch.log")}
	w := cfg.FileWriter()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("writer is not lumberjack.Logger")
	}
	if l.MaxSize != 10 || l.MaxBackups != 3 || l.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
	closeIf(w)
}

func TestFileWriter_Overrides(t *testing.T) {
	cfg := Config{
		File:       filepath.Join(t.TempDir(), "vastwatch.log"),
		MaxSizeMB:  1,
		MaxBackups: 9,
		MaxAgeDays: 11,
		Compress:   true,
	}
	l := cfg.FileWriter().(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 11 || !l.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t",
			l.MaxSize, l.MaxBackups, l.MaxAge, l.Compress)
	}
	closeIf(l)
}

func TestNewSlogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vastwatch.log")
	cfg := Config{Level: "debug", File: path}
	h, closer := cfg.NewHandler()
	log := slog.New(h)
	log.Debug("tick", slog.Int("n", 1))
	log.Info("hello", slog.String("k", "v"))
	closeIf(closer)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created at %s: %v", path, err)
	}
	out := string(data)
	if !strings.Contains(out, "hello") || !strings.Contains(out, "k=v") {
		t.Fatalf("log output missing record: %q", out)
	}
	if !strings.Contains(out, "tick") {
		t.Fatalf("debug record filtered despite level=debug: %q", out)
	}
}

func TestNewSlogger_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vastwatch.log")
	cfg := Config{Level: "warn", File: path}
	h, closer := cfg.NewHandler()
	log := slog.New(h)
	log.Info("quiet")
	log.Warn("loud")
	closeIf(closer)

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "quiet") {
		t.Fatalf("info record not filtered at level=warn: %q", string(data))
	}
	if !strings.Contains(string(data), "loud") {
		t.Fatalf("warn record missing: %q", string(data))
	}
}

func TestColorTextHandler_PrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := slog.New(h)
	log.Error("boom")
	out := buf.String()
	if !strings.Contains(out, "\033[31m") {
		t.Fatalf("expected red ANSI code in error output: %q", out)
	}
	if !strings.Contains(out, "boom") {
		t.Fatalf("message missing: %q", out)
	}
}
