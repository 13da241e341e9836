package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loykin/vastwatch/internal/config"
	"github.com/loykin/vastwatch/internal/decider"
	"github.com/loykin/vastwatch/internal/ipc"
	"github.com/loykin/vastwatch/internal/metrics"
	"github.com/loykin/vastwatch/internal/monitor"
	"github.com/loykin/vastwatch/internal/sampler"
	"github.com/loykin/vastwatch/internal/server"
	"github.com/loykin/vastwatch/pkg/vast"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

// remoteTimeout bounds the one-shot remote calls made by controller
// commands (instances listing).
const remoteTimeout = 30 * time.Second

type command struct {
	out io.Writer
}

// Monitor runs the monitor loop in the foreground until it finishes or a
// signal arrives. It holds the data-dir lock for the whole run.
func (c command) Monitor(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	// A daemonized monitor writes to a log file, not a terminal.
	if os.Getenv(daemonEnv) == "1" {
		cfg.Log.Color = false
	}
	handler, closer := cfg.Log.NewHandler()
	log := slog.New(handler)
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	lock, err := ipc.AcquireLock(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	pidFile := filepath.Join(cfg.DataDir, pidFileName)
	if err := writePidFile(pidFile, os.Getpid()); err != nil {
		log.Warn("could not write pidfile", "path", pidFile, "error", err)
	}
	defer func() { _ = removePidFile(pidFile) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}
	collector := metrics.NewResourceCollector(cfg.Processes, 0)
	collector.Start(ctx)
	defer collector.Stop()

	status := ipc.NewStatusChannel(cfg.DataDir)
	commands := ipc.NewCommandChannel(cfg.DataDir)

	var srv *http.Server
	if cfg.HTTPListen != "" {
		srv, err = server.NewServer(cfg.HTTPListen, "", status)
		if err != nil {
			return fmt.Errorf("start status server on %s: %w", cfg.HTTPListen, err)
		}
		log.Info("status server listening", "addr", cfg.HTTPListen)
	}

	client := vast.New(vast.Config{
		BaseURL: cfg.APIBase,
		APIKey:  cfg.APIKey,
		Logger:  log,
	})

	m := monitor.New(monitor.Options{
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
	}, sampler.NewHostSampler(), client, status, commands)

	runErr := m.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return runErr
}

// Start validates the config, then launches the monitor as a detached
// background process. Validation happens here so a misconfiguration fails
// in this terminal instead of in a log file nobody is watching.
func (c command) Start(cfg config.Config, configPath string, fs *pflag.FlagSet) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	if ipc.MonitorLive(cfg.DataDir) {
		return fmt.Errorf("a monitor is already running in %s", cfg.DataDir)
	}
	pid, err := daemonize(cfg.DataDir, configPath, fs)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "monitor started with PID %d (watching %v, timeout %s)\n",
		pid, cfg.Processes, cfg.IdleTimeout)
	return nil
}

// Stop asks the running monitor to end monitoring. The instance keeps
// running. With wait > 0 it blocks until the monitor has exited.
func (c command) Stop(cfg config.Config, wait time.Duration) error {
	if cfg.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if !ipc.MonitorLive(cfg.DataDir) {
		return fmt.Errorf("no running monitor found in %s", cfg.DataDir)
	}
	if _, err := ipc.NewCommandChannel(cfg.DataDir).Send(ipc.ActionStopMonitoring); err != nil {
		return err
	}
	if wait <= 0 {
		_, _ = fmt.Fprintln(c.out, "stop requested; the monitor exits on its next tick")
		return nil
	}

	deadline := time.Now().Add(wait)
	for ipc.MonitorLive(cfg.DataDir) {
		if time.Now().After(deadline) {
			return fmt.Errorf("monitor still running after %s", wait)
		}
		time.Sleep(200 * time.Millisecond)
	}
	_, _ = fmt.Fprintln(c.out, "monitor exited")
	if rec, err := ipc.NewStatusChannel(cfg.DataDir).Read(); err == nil && rec.Final() {
		_, _ = fmt.Fprintf(c.out, "final state: %s (%s)\n", rec.State, rec.ExitReason)
	}
	return nil
}

// Send writes a single command to the mailbox for the running monitor.
func (c command) Send(cfg config.Config, action string) error {
	if cfg.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if !ipc.MonitorLive(cfg.DataDir) {
		return fmt.Errorf("no running monitor found in %s", cfg.DataDir)
	}
	if _, err := ipc.NewCommandChannel(cfg.DataDir).Send(action); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "%s requested; the monitor applies it on its next tick\n", action)
	return nil
}

// Status reads the latest status record and reports it together with
// whether the monitor process is actually alive.
func (c command) Status(cfg config.Config, asJSON bool) error {
	if cfg.DataDir == "" {
		return errors.New("data_dir is required")
	}
	live := ipc.MonitorLive(cfg.DataDir)
	pid := readPidFile(filepath.Join(cfg.DataDir, pidFileName))

	rec, err := ipc.NewStatusChannel(cfg.DataDir).Read()
	if err != nil {
		if errors.Is(err, ipc.ErrNoStatus) {
			if live {
				_, _ = fmt.Fprintln(c.out, "monitor is starting; no status record yet")
				return nil
			}
			_, _ = fmt.Fprintf(c.out, "no monitor has run in %s\n", cfg.DataDir)
			return nil
		}
		return err
	}

	if asJSON {
		printJSON(c.out, rec)
		return nil
	}
	renderStatus(c.out, rec, live, pid, time.Now(), cfg.CheckInterval)
	return nil
}

// Instances lists the instances visible to the configured API key.
func (c command) Instances(cfg config.Config, asJSON bool) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("api_key is required (config file or %s)", config.EnvAPIKey)
	}
	client := vast.New(vast.Config{BaseURL: cfg.APIBase, APIKey: cfg.APIKey})

	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	instances, err := client.Instances(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		printJSON(c.out, instances)
		return nil
	}
	renderInstances(c.out, instances)
	return nil
}

// ConfigInit writes the commented default config template.
func (c command) ConfigInit(path string) error {
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "wrote %s; fill in target and api_key before starting\n", path)
	return nil
}
