// Package config loads and validates the monitor configuration. The loaded
// Config is immutable by convention: it is built once at startup and passed
// by value to the loop constructor, never stored in a package global.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/vastwatch/internal/logger"
	"github.com/spf13/viper"
)

// EnvAPIKey overrides the api_key config field when set.
const EnvAPIKey = "VAST_API_KEY"

// DefaultFileName is the config file looked up when no --config is given.
const DefaultFileName = "vastwatch.toml"

// Config is the top-level TOML structure.
type Config struct {
	Processes     []string      `toml:"processes" mapstructure:"processes"`
	IdleTimeout   time.Duration `toml:"idle_timeout" mapstructure:"idle_timeout"`
	CheckInterval time.Duration `toml:"check_interval" mapstructure:"check_interval"`
	Target        string        `toml:"target" mapstructure:"target"`
	APIKey        string        `toml:"api_key" mapstructure:"api_key"`
	APIBase       string        `toml:"api_base" mapstructure:"api_base"`
	DataDir       string        `toml:"data_dir" mapstructure:"data_dir"`
	HTTPListen    string        `toml:"http_listen" mapstructure:"http_listen"`
	Log           logger.Config `toml:"log" mapstructure:"log"`
	Stop          StopConfig    `toml:"stop" mapstructure:"stop"`
}

// StopConfig bounds the retries after a failed stop call.
type StopConfig struct {
	MaxAttempts    int           `toml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `toml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `toml:"max_backoff" mapstructure:"max_backoff"`
}

// Default returns the configuration shipped in the template.
func Default() Config {
	return Config{
		IdleTimeout:   45 * time.Minute,
		CheckInterval: 5 * time.Second,
		APIBase:       "https://console.vast.ai",
		DataDir:       "~/.vastwatch",
		Log: logger.Config{
			Level: "info",
			Color: true,
		},
		Stop: StopConfig{
			MaxAttempts:    5,
			InitialBackoff: 10 * time.Second,
			MaxBackoff:     2 * time.Minute,
		},
	}
}

// Load reads a TOML file over the defaults and applies the environment
// override for the API key. The file must exist; callers that tolerate a
// missing file check first.
func Load(path string) (Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

// LoadOrDefault loads path when given, falls back to vastwatch.toml in the
// working directory when present, and otherwise returns the built-in
// defaults. Environment overrides apply in every case.
func LoadOrDefault(path string) (Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultFileName); err == nil {
		return Load(DefaultFileName)
	}
	cfg := Default()
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

// applyEnv layers environment overrides on top of file values.
func (c *Config) applyEnv() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.APIKey = key
	}
}

// normalize trims watched names, drops empties, and expands home-relative
// paths so the rest of the program never sees a ~.
func (c *Config) normalize() {
	procs := make([]string, 0, len(c.Processes))
	for _, p := range c.Processes {
		if p = strings.TrimSpace(p); p != "" {
			procs = append(procs, p)
		}
	}
	c.Processes = procs
	c.DataDir = ExpandPath(c.DataDir)
	c.Log.File = ExpandPath(c.Log.File)
	c.APIBase = strings.TrimRight(c.APIBase, "/")
}

// Validate checks the invariants the monitor run depends on. Commands that
// need less (listing instances, sending a command) check their own fields.
func (c Config) Validate() error {
	if len(c.Processes) == 0 {
		return errors.New("processes must list at least one name")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle_timeout must be positive")
	}
	if c.CheckInterval <= 0 {
		return errors.New("check_interval must be positive")
	}
	if c.CheckInterval >= c.IdleTimeout {
		return fmt.Errorf("check_interval %s must be below idle_timeout %s", c.CheckInterval, c.IdleTimeout)
	}
	if c.Target == "" {
		return errors.New("target instance id or label is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (config file or %s)", EnvAPIKey)
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Stop.MaxAttempts <= 0 {
		return errors.New("stop.max_attempts must be positive")
	}
	if c.Stop.InitialBackoff <= 0 || c.Stop.MaxBackoff < c.Stop.InitialBackoff {
		return errors.New("stop backoff must be positive and max_backoff >= initial_backoff")
	}
	return nil
}

// ExpandPath resolves a leading ~ against the user home directory.
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}

// DefaultTOML is the commented template written by `vastwatch config init`.
const DefaultTOML = `# vastwatch configuration

# Process names that count as activity. Matching is a case-insensitive
# substring test against the running process table.
processes = ["blender", "ffmpeg"]

# Continuous time with none of the processes running before the instance
# is stopped.
idle_timeout = "45m"

# How often the process table is sampled.
check_interval = "5s"

# Instance to stop: a numeric instance id or an instance label.
target = ""

# Vast.ai API key. Can also be supplied via the VAST_API_KEY environment
# variable, which takes precedence over this field.
api_key = ""

# Provider endpoint. Only change this for testing.
api_base = "https://console.vast.ai"

# Directory for the status/command mailboxes, the monitor lock, the
# pidfile, and rotated logs.
data_dir = "~/.vastwatch"

# Optional read-only status endpoint, e.g. "127.0.0.1:8891". Empty
# disables the HTTP server.
http_listen = ""

[log]
level = "info"   # debug | info | warn | error
color = true
file = ""        # rotated log file; empty logs to the console only
max_size_mb = 10
max_backups = 3
max_age_days = 7

[stop]
max_attempts = 5
initial_backoff = "10s"
max_backoff = "2m"
`

// WriteDefault writes the commented template to path, refusing to clobber
// an existing file. Mode 0600 because the file may hold the API key.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return os.WriteFile(path, []byte(DefaultTOML), 0o600)
}
