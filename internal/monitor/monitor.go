// Package monitor runs the polling loop that turns process liveness into a
// debounced remote shutdown: sample the host, track idle time, evaluate the
// decision state machine, and stop the instance exactly once. The loop is
// steered from outside through the command mailbox and observed through the
// status mailbox.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/vastwatch/internal/decider"
	"github.com/loykin/vastwatch/internal/ipc"
	"github.com/loykin/vastwatch/internal/metrics"
	"github.com/loykin/vastwatch/internal/sampler"
	"github.com/loykin/vastwatch/internal/tracker"
	"github.com/loykin/vastwatch/pkg/vast"
)

// InstanceClient is the remote surface the loop depends on.
type InstanceClient interface {
	VerifyTarget(ctx context.Context, target string) (vast.Instance, error)
	Stop(ctx context.Context, id int) error
}

// Options configures one monitor run. The struct is copied at construction
// and never mutated afterwards.
type Options struct {
	Watch         []string
	IdleTimeout   time.Duration
	CheckInterval time.Duration
	Target        string
	Retry         decider.RetryPolicy
	Logger        *slog.Logger
	Clock         func() time.Time // defaults to time.Now
}

// Monitor owns all mutable state of a run. Everything is driven from the
// single Run goroutine; the mailboxes are the only cross-process surface.
type Monitor struct {
	opts    Options
	logger  *slog.Logger
	clock   func() time.Time
	sampler sampler.Sampler
	client  InstanceClient
	tracker *tracker.Tracker
	decider *decider.Decider
	status  *ipc.StatusChannel
	command *ipc.CommandChannel

	runID    string
	paused   bool
	instance vast.Instance
	lastErr  string
}

// New builds a monitor run from its collaborators.
func New(opts Options, smp sampler.Sampler, client InstanceClient, status *ipc.StatusChannel, command *ipc.CommandChannel) *Monitor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	m := &Monitor{
		opts:    opts,
		logger:  opts.Logger,
		clock:   opts.Clock,
		sampler: smp,
		client:  client,
		tracker: tracker.New(opts.Watch),
		decider: decider.New(opts.IdleTimeout, opts.Retry),
		status:  status,
		command: command,
		runID:   uuid.NewString(),
	}
	m.decider.OnTransition(func(from, to decider.State) {
		m.logger.Info("decision state changed", "from", from.String(), "to", to.String())
		metrics.RecordStateTransition(from.String(), to.String())
	})
	return m
}

// RunID identifies this run in status records and logs.
func (m *Monitor) RunID() string { return m.runID }

// Run verifies the target, then ticks until the run ends. It returns nil
// for a clean end (instance stopped, or cancelled by command or context)
// and an error for fatal conditions; either way the final status record is
// written before returning.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor starting",
		"run_id", m.runID,
		"watch", m.tracker.Watch(),
		"target", m.opts.Target,
		"idle_timeout", m.opts.IdleTimeout,
		"check_interval", m.opts.CheckInterval)

	inst, err := m.client.VerifyTarget(ctx, m.opts.Target)
	if err != nil {
		m.lastErr = err.Error()
		m.logger.Error("target verification failed", "target", m.opts.Target, "error", err)
		m.writeFinal(m.clock(), ipc.ExitFatal)
		return fmt.Errorf("verify target: %w", err)
	}
	m.instance = inst
	m.logger.Info("target verified",
		"id", inst.ID, "label", inst.Label, "gpu", inst.GPUName, "status", inst.ActualStatus)

	// The first tick runs immediately; the ticker paces the rest. A slow
	// remote call delays the next tick rather than dropping it: the ticker
	// buffers one pending fire.
	ticker := time.NewTicker(m.opts.CheckInterval)
	defer ticker.Stop()
	for {
		done, err := m.tick(ctx)
		if done {
			return err
		}
		select {
		case <-ctx.Done():
			m.logger.Info("shutting down on signal", "run_id", m.runID)
			_ = m.decider.Cancel()
			m.writeFinal(m.clock(), ipc.ExitCancelled)
			return nil
		case <-ticker.C:
		}
	}
}

// tick performs one cycle: command, pause gate, sample, track, decide,
// publish, stop attempt. It reports done=true when the run is over.
func (m *Monitor) tick(ctx context.Context) (done bool, err error) {
	metrics.IncTick()
	now := m.clock()

	// Commands take priority and can short-circuit everything else,
	// including a stop call this tick would otherwise make.
	if cmd, ok := m.command.Receive(); ok {
		switch cmd.Action {
		case ipc.ActionStopMonitoring:
			m.logger.Info("cancellation received", "command_id", cmd.ID)
			_ = m.decider.Cancel()
			m.writeFinal(now, ipc.ExitCancelled)
			return true, nil
		case ipc.ActionStopNow:
			m.logger.Info("immediate stop received", "command_id", cmd.ID)
			return m.stopNow(ctx, now)
		case ipc.ActionPause:
			if !m.paused {
				m.paused = true
				m.tracker.ClearIdle()
				m.decider.Reset()
				m.logger.Info("monitoring paused", "command_id", cmd.ID)
			}
		case ipc.ActionResume:
			if m.paused {
				m.paused = false
				m.logger.Info("monitoring resumed", "command_id", cmd.ID)
			}
		}
	}

	if m.paused {
		m.writeStatus(now)
		return false, nil
	}

	names, err := m.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown raced the sample; the outer loop writes the final record.
			return false, nil
		}
		metrics.IncSampleError()
		m.lastErr = err.Error()
		m.logger.Warn("sample failed, retrying next tick", "error", err)
		m.writeStatus(now)
		return false, nil
	}

	m.tracker.Update(names, now)
	anyAlive := m.tracker.AnyAlive()
	idleFor := m.tracker.IdleFor(now)
	state := m.decider.Evaluate(anyAlive, idleFor, now)

	metrics.SetWatchedAlive(anyAlive)
	metrics.SetIdleSeconds(idleFor.Seconds())
	if state != decider.StateTriggered {
		m.lastErr = ""
	}
	m.logger.Debug("tick",
		"state", state.String(), "any_alive", anyAlive, "idle", idleFor.Round(time.Second))

	m.writeStatus(now)

	if state == decider.StateTriggered && m.decider.ShouldAttemptStop(now) {
		return m.attemptStop(ctx)
	}
	return false, nil
}

// attemptStop makes one stop call and settles its outcome: success ends
// the run, a transient failure schedules a retry, anything else is fatal.
func (m *Monitor) attemptStop(ctx context.Context) (bool, error) {
	m.decider.RecordStopAttempt()
	metrics.IncStopAttempt()
	m.logger.Info("stopping instance",
		"id", m.instance.ID, "attempt", m.decider.Attempts(), "idle_timeout", m.opts.IdleTimeout)

	err := m.client.Stop(ctx, m.instance.ID)
	if err == nil {
		if terr := m.decider.RecordStopSuccess(); terr != nil {
			m.logger.Error("stop bookkeeping failed", "error", terr)
		}
		m.lastErr = ""
		m.logger.Info("instance stopped", "id", m.instance.ID)
		m.writeFinal(m.clock(), ipc.ExitStopped)
		return true, nil
	}

	m.lastErr = err.Error()
	switch {
	case vast.IsAuth(err):
		m.logger.Error("stop failed, credential rejected", "error", err)
		m.writeFinal(m.clock(), ipc.ExitFatal)
		return true, err
	case vast.IsTransient(err):
		// Backoff counts from when the failure was observed, not from the
		// start of the tick; the call itself may have blocked for a while.
		if m.decider.RecordStopFailure(m.clock()) {
			m.logger.Warn("stop failed, will retry",
				"error", err, "attempt", m.decider.Attempts())
			m.writeStatus(m.clock())
			return false, nil
		}
		m.logger.Error("stop retries exhausted",
			"attempts", m.decider.Attempts(), "error", err)
		m.writeFinal(m.clock(), ipc.ExitFatal)
		return true, fmt.Errorf("stop retries exhausted after %d attempts: %w", m.decider.Attempts(), err)
	default:
		m.logger.Error("stop failed permanently", "error", err)
		m.writeFinal(m.clock(), ipc.ExitFatal)
		return true, err
	}
}

// stopNow handles the stop-now command: one immediate attempt, then exit
// whatever the outcome. Exactly-once accounting is preserved through the
// decider.
func (m *Monitor) stopNow(ctx context.Context, now time.Time) (bool, error) {
	if m.decider.State() == decider.StateStopped {
		m.writeFinal(now, ipc.ExitStopped)
		return true, nil
	}
	m.decider.ForceTrigger(now)
	m.decider.RecordStopAttempt()
	metrics.IncStopAttempt()

	err := m.client.Stop(ctx, m.instance.ID)
	if err == nil {
		if terr := m.decider.RecordStopSuccess(); terr != nil {
			m.logger.Error("stop bookkeeping failed", "error", terr)
		}
		m.lastErr = ""
		m.logger.Info("instance stopped", "id", m.instance.ID)
		m.writeFinal(m.clock(), ipc.ExitStopped)
		return true, nil
	}
	m.lastErr = err.Error()
	m.logger.Error("immediate stop failed", "error", err)
	m.writeFinal(m.clock(), ipc.ExitFatal)
	return true, err
}

func (m *Monitor) record(now time.Time) ipc.StatusRecord {
	idle := m.tracker.IdleFor(now)
	return ipc.StatusRecord{
		RunID:         m.runID,
		PID:           os.Getpid(),
		Timestamp:     now.UTC(),
		State:         m.decider.State().String(),
		Paused:        m.paused,
		AnyAlive:      m.tracker.AnyAlive(),
		IdleSeconds:   idle.Seconds(),
		RemainSeconds: m.decider.Remaining(idle).Seconds(),
		StopAttempts:  m.decider.Attempts(),
		LastError:     m.lastErr,
	}
}

func (m *Monitor) writeStatus(now time.Time) {
	if err := m.status.Write(m.record(now)); err != nil {
		m.logger.Warn("status write failed", "error", err)
	}
}

func (m *Monitor) writeFinal(now time.Time, reason string) {
	rec := m.record(now)
	rec.ExitReason = reason
	if err := m.status.Write(rec); err != nil {
		m.logger.Warn("final status write failed", "error", err)
	}
	m.logger.Info("monitor exiting", "run_id", m.runID, "reason", reason, "state", rec.State)
}
