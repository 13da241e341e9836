// Package ipc implements the file mailboxes connecting the monitor unit to
// its controller: a single-slot status record written by the monitor and a
// single-slot command written by the controller. Both live under the data
// directory and are replaced atomically (temp file + rename), so a reader
// never observes a partially written record and no sockets or shared memory
// are involved.
package ipc

import (
	"time"
)

// Mailbox file names inside the data directory.
const (
	StatusFile  = "status.json"
	CommandFile = "command.json"
)

// Actions a controller may send through the command channel.
const (
	ActionStopMonitoring = "stop-monitoring"
	ActionPause          = "pause"
	ActionResume         = "resume"
	ActionStopNow        = "stop-now"
)

// Exit reasons carried by the final status record of a run.
const (
	ExitStopped   = "stopped"
	ExitCancelled = "cancelled"
	ExitFatal     = "fatal"
)

// StatusRecord is the monitor's externally visible snapshot. Every write
// replaces the previous record; no history is retained.
type StatusRecord struct {
	RunID         string    `json:"run_id"`
	PID           int       `json:"pid"`
	Timestamp     time.Time `json:"timestamp"`
	State         string    `json:"state"`
	Paused        bool      `json:"paused"`
	AnyAlive      bool      `json:"any_alive"`
	IdleSeconds   float64   `json:"idle_seconds"`
	RemainSeconds float64   `json:"time_remaining_seconds"`
	StopAttempts  int       `json:"stop_attempts"`
	LastError     string    `json:"last_error,omitempty"`
	ExitReason    string    `json:"exit_reason,omitempty"`
}

// Final reports whether the record is the last one of a run.
func (r StatusRecord) Final() bool { return r.ExitReason != "" }

// Age returns how old the record is relative to now.
func (r StatusRecord) Age(now time.Time) time.Duration { return now.Sub(r.Timestamp) }

// Command is a single pending instruction from the controller. At most one
// is outstanding; a newer write replaces an unconsumed older one.
type Command struct {
	ID       string    `json:"id"`
	Action   string    `json:"action"`
	IssuedAt time.Time `json:"issued_at"`
}

// ValidAction reports whether a is a known command action.
func ValidAction(a string) bool {
	switch a {
	case ActionStopMonitoring, ActionPause, ActionResume, ActionStopNow:
		return true
	}
	return false
}
