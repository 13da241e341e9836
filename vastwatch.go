// Package vastwatch stops a Vast.ai instance once the local processes that
// justify renting it have been gone for a configured idle timeout. The
// monitor loop runs as its own long-lived process; controllers observe and
// steer it through file mailboxes in a shared data directory. This package
// is the embedding facade over the internal packages; the vastwatch binary
// under cmd/vastwatch is built on the same surface.
package vastwatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/loykin/vastwatch/internal/config"
	"github.com/loykin/vastwatch/internal/decider"
	"github.com/loykin/vastwatch/internal/ipc"
	"github.com/loykin/vastwatch/internal/metrics"
	"github.com/loykin/vastwatch/internal/monitor"
	"github.com/loykin/vastwatch/internal/sampler"
	iapi "github.com/loykin/vastwatch/internal/server"
	"github.com/loykin/vastwatch/pkg/vast"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type StopConfig = config.StopConfig

type StatusRecord = ipc.StatusRecord

type Command = ipc.Command

type Instance = vast.Instance

type RetryPolicy = decider.RetryPolicy

// Command actions understood by a running monitor.
const (
	ActionStopMonitoring = ipc.ActionStopMonitoring
	ActionPause          = ipc.ActionPause
	ActionResume         = ipc.ActionResume
	ActionStopNow        = ipc.ActionStopNow
)

// ErrNoStatus reports that no monitor has written a status record yet.
var ErrNoStatus = ipc.ErrNoStatus

// Monitor is a thin facade over the internal monitor loop.
// It provides a stable public API for embedding.

type Monitor struct{ inner *monitor.Monitor }

// New builds a monitor unit from the config: host process sampler, Vast.ai
// client, and the file mailboxes under cfg.DataDir. Logging follows
// cfg.Log. It does not take the monitor lock; use AcquireLock when the
// data directory may be shared with other monitors.
func New(cfg Config) (*Monitor, error) {
	return NewWithLogger(cfg, cfg.Log.NewSlogger())
}

// NewWithLogger is New with the embedder's logger instead of one built
// from cfg.Log.
func NewWithLogger(cfg Config, log *slog.Logger) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	client := vast.New(vast.Config{BaseURL: cfg.APIBase, APIKey: cfg.APIKey, Logger: log})
	inner := monitor.New(monitor.Options{
		Watch:         cfg.Processes,
		IdleTimeout:   cfg.IdleTimeout,
		CheckInterval: cfg.CheckInterval,
		Target:        cfg.Target,
		Retry: decider.RetryPolicy{
			MaxAttempts:    cfg.Stop.MaxAttempts,
			InitialBackoff: cfg.Stop.InitialBackoff,
			MaxBackoff:     cfg.Stop.MaxBackoff,
		},
		Logger: log,
	}, sampler.NewHostSampler(), client, ipc.NewStatusChannel(cfg.DataDir), ipc.NewCommandChannel(cfg.DataDir))
	return &Monitor{inner: inner}, nil
}

// Run executes the monitor loop until the instance is stopped, monitoring
// is cancelled, or ctx is done. The final status record is written before
// it returns.
func (m *Monitor) Run(ctx context.Context) error { return m.inner.Run(ctx) }

// RunID identifies this run in status records and logs.
func (m *Monitor) RunID() string { return m.inner.RunID() }

// Controller-side helpers. These work against a data directory without any
// handle on the monitor process.

// ReadStatus returns the latest status record from the data directory.
func ReadStatus(dataDir string) (StatusRecord, error) {
	return ipc.NewStatusChannel(dataDir).Read()
}

// SendCommand writes a command for the running monitor. The monitor applies
// it on its next tick.
func SendCommand(dataDir, action string) (Command, error) {
	return ipc.NewCommandChannel(dataDir).Send(action)
}

// MonitorLive reports whether some process currently holds the monitor
// lock in the data directory.
func MonitorLive(dataDir string) bool { return ipc.MonitorLive(dataDir) }

// AcquireLock takes the exclusive monitor lock for the data directory. The
// caller unlocks it when its run ends.
func AcquireLock(dataDir string) (*flock.Flock, error) { return ipc.AcquireLock(dataDir) }

// LoadConfig reads a TOML config file over the defaults.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config { return config.Default() }

// Instances lists the instances visible to the configured API key.
func Instances(ctx context.Context, cfg Config) ([]Instance, error) {
	client := vast.New(vast.Config{BaseURL: cfg.APIBase, APIKey: cfg.APIKey})
	return client.Instances(ctx)
}

// NewStatusServer starts the read-only HTTP surface (healthz, status,
// metrics) for a data directory. The caller shuts it down.
func NewStatusServer(addr, basePath, dataDir string) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, ipc.NewStatusChannel(dataDir))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
