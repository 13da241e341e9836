// Package decider holds the shutdown state machine: it turns the liveness
// signal and the configured timeout into an exactly-once decision to stop
// the remote instance, with a bounded retry budget for failed stop calls.
package decider

import (
	"fmt"
	"time"
)

// State is the decision state of one monitor run.
type State int32

const (
	// StateIdle: watched processes alive, or nothing idle yet.
	StateIdle State = iota
	// StateCounting: idle span in progress, below the timeout.
	StateCounting
	// StateTriggered: timeout reached, stop call not yet confirmed.
	StateTriggered
	// StateStopped: terminal. Stop acknowledged or run cancelled.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCounting:
		return "counting"
	case StateTriggered:
		return "triggered"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// validTransitions guards every state change. Idle and Counting swap freely
// as processes disappear and reappear; Triggered only ever moves to Stopped;
// nothing leaves Stopped.
var validTransitions = map[State]map[State]bool{
	StateIdle:      {StateCounting: true, StateStopped: true},
	StateCounting:  {StateIdle: true, StateTriggered: true, StateStopped: true},
	StateTriggered: {StateStopped: true},
	StateStopped:   {},
}

// RetryPolicy bounds stop retries after transient remote failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy matches the shipped configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialBackoff: 10 * time.Second, MaxBackoff: 2 * time.Minute}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	return p
}

// Backoff returns the delay before the next attempt after n failed ones:
// the initial backoff doubled per failure, capped at MaxBackoff.
func (p RetryPolicy) Backoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := p.InitialBackoff
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Decider evaluates one monitor run. It is owned and mutated by exactly one
// goroutine; all methods take explicit times so behavior is deterministic
// under test.
type Decider struct {
	timeout time.Duration
	retry   RetryPolicy

	state         State
	triggeredAt   time.Time
	attempts      int
	nextAttemptAt time.Time
	exhausted     bool
	onTransition  func(from, to State)
}

// New builds a decider for one run. Zero retry fields fall back to
// DefaultRetryPolicy.
func New(timeout time.Duration, retry RetryPolicy) *Decider {
	return &Decider{timeout: timeout, retry: retry.withDefaults(), state: StateIdle}
}

// OnTransition installs a hook invoked after every state change.
func (d *Decider) OnTransition(fn func(from, to State)) { d.onTransition = fn }

// State returns the current decision state.
func (d *Decider) State() State { return d.state }

// Timeout returns the configured idle timeout.
func (d *Decider) Timeout() time.Duration { return d.timeout }

// Attempts returns the number of stop attempts made this run.
func (d *Decider) Attempts() int { return d.attempts }

// Exhausted reports whether the stop retry budget is spent.
func (d *Decider) Exhausted() bool { return d.exhausted }

// TriggeredAt returns when the trigger fired (zero before that).
func (d *Decider) TriggeredAt() time.Time { return d.triggeredAt }

// Remaining returns the idle time still needed before the trigger fires.
// Zero once triggered or stopped.
func (d *Decider) Remaining(idleFor time.Duration) time.Duration {
	if d.state == StateTriggered || d.state == StateStopped {
		return 0
	}
	if idleFor >= d.timeout {
		return 0
	}
	return d.timeout - idleFor
}

// Evaluate advances the state machine for one tick. Reappearance resets
// Counting to Idle; Triggered is sticky: once the timeout has been reached
// the shutdown proceeds even if a watched process comes back.
func (d *Decider) Evaluate(anyAlive bool, idleFor time.Duration, now time.Time) State {
	switch d.state {
	case StateIdle, StateCounting:
		if anyAlive {
			d.reset()
			return d.state
		}
		if d.state == StateIdle {
			d.mustTransition(StateCounting)
		}
		if idleFor >= d.timeout {
			d.mustTransition(StateTriggered)
			d.triggeredAt = now
		}
	case StateTriggered, StateStopped:
		// Sticky; stop-call bookkeeping drives any further movement.
	}
	return d.state
}

// ShouldAttemptStop reports whether the loop may attempt a stop call now:
// triggered, budget left, and past the backoff window.
func (d *Decider) ShouldAttemptStop(now time.Time) bool {
	if d.state != StateTriggered || d.exhausted {
		return false
	}
	return !now.Before(d.nextAttemptAt)
}

// RecordStopAttempt counts a stop call the loop is about to make.
func (d *Decider) RecordStopAttempt() { d.attempts++ }

// RecordStopSuccess moves Triggered to Stopped.
func (d *Decider) RecordStopSuccess() error {
	if d.state != StateTriggered {
		return fmt.Errorf("stop success recorded in state %s", d.state)
	}
	return d.transition(StateStopped)
}

// RecordStopFailure notes a transient stop failure and schedules the next
// attempt. It returns false once the retry budget is exhausted; the state
// stays Triggered so the failure remains externally visible.
func (d *Decider) RecordStopFailure(now time.Time) bool {
	if d.attempts >= d.retry.MaxAttempts {
		d.exhausted = true
		return false
	}
	d.nextAttemptAt = now.Add(d.retry.Backoff(d.attempts))
	return true
}

// Cancel moves any live state to Stopped without a remote call. Cancelling
// an already stopped run is a no-op.
func (d *Decider) Cancel() error {
	if d.state == StateStopped {
		return nil
	}
	return d.transition(StateStopped)
}

// Reset snaps Counting back to Idle and clears retry bookkeeping, as when
// monitoring pauses. It has no effect once the run is Triggered or Stopped.
func (d *Decider) Reset() {
	if d.state == StateIdle || d.state == StateCounting {
		d.reset()
	}
}

// ForceTrigger drives a live run straight to Triggered, as when an
// immediate stop is commanded. No-op once Triggered or Stopped.
func (d *Decider) ForceTrigger(now time.Time) {
	switch d.state {
	case StateIdle:
		d.mustTransition(StateCounting)
		fallthrough
	case StateCounting:
		d.mustTransition(StateTriggered)
		d.triggeredAt = now
	}
}

func (d *Decider) reset() {
	if d.state == StateCounting {
		d.mustTransition(StateIdle)
	}
	d.attempts = 0
	d.nextAttemptAt = time.Time{}
}

func (d *Decider) transition(next State) error {
	if d.state == next {
		return nil
	}
	if !validTransitions[d.state][next] {
		return fmt.Errorf("invalid state transition %s -> %s", d.state, next)
	}
	from := d.state
	d.state = next
	if d.onTransition != nil {
		d.onTransition(from, next)
	}
	return nil
}

// mustTransition is for transitions the table guarantees valid.
func (d *Decider) mustTransition(next State) {
	if err := d.transition(next); err != nil {
		panic(err)
	}
}
