// Package tracker folds raw process samples into a liveness signal: which
// watched names are running right now, and for how long none of them have
// been.
package tracker

import (
	"strings"
	"time"
)

// Tracker maintains the last-active timestamp for a fixed set of watched
// process names and derives the continuous idle span from it. Matching is
// case-insensitive substring containment, so the watch entry "blender"
// matches a process named "Blender.exe". The tracker is owned and mutated
// by exactly one goroutine.
//
// Idle time is measured from the last sample in which a watched name was
// observed (or from the first sample of the run when nothing was ever
// observed), not from the first sample in which everything was absent: a
// process seen at t=50s and gone from t=60s on has been idle for 60s at
// t=110s.
type Tracker struct {
	watch      []string
	lastSeen   map[string]time.Time
	lastActive time.Time
	idle       bool
	anyAlive   bool
}

// New builds a tracker for the given watch set. Entries are lowercased and
// trimmed; empty and duplicate entries are dropped. The watch set is
// immutable for the tracker's lifetime.
func New(watch []string) *Tracker {
	t := &Tracker{lastSeen: make(map[string]time.Time)}
	seen := make(map[string]struct{}, len(watch))
	for _, w := range watch {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		t.watch = append(t.watch, w)
	}
	return t
}

// Watch returns a copy of the normalized watch set.
func (t *Tracker) Watch() []string {
	out := make([]string, len(t.watch))
	copy(out, t.watch)
	return out
}

// Update folds one sample into the liveness state. Any reappearance of a
// watched name resets the idle clock unconditionally; idle time is never
// carried across gaps.
func (t *Tracker) Update(sample []string, now time.Time) {
	alive := false
	for _, w := range t.watch {
		if sampleMatches(sample, w) {
			t.lastSeen[w] = now
			alive = true
		}
	}
	t.anyAlive = alive
	if alive {
		t.lastActive = now
		t.idle = false
		return
	}
	if t.lastActive.IsZero() {
		// Never observed this run: idle accounting starts here.
		t.lastActive = now
	}
	t.idle = true
}

// AnyAlive reports whether the most recent sample matched a watched name.
func (t *Tracker) AnyAlive() bool { return t.anyAlive }

// Idle reports whether an idle span is in progress.
func (t *Tracker) Idle() bool { return t.idle }

// IdleSince returns the timestamp the current idle span is measured from.
// The second return is false when no idle span is in progress.
func (t *Tracker) IdleSince() (time.Time, bool) {
	if !t.idle {
		return time.Time{}, false
	}
	return t.lastActive, true
}

// IdleFor returns the continuous idle duration as of now, zero when a
// watched process is alive or no sample has been folded yet.
func (t *Tracker) IdleFor(now time.Time) time.Duration {
	if !t.idle {
		return 0
	}
	return now.Sub(t.lastActive)
}

// LastSeen returns when the watch entry last matched a sample. The second
// return is false when the entry never matched this run.
func (t *Tracker) LastSeen(name string) (time.Time, bool) {
	ts, ok := t.lastSeen[strings.ToLower(strings.TrimSpace(name))]
	return ts, ok
}

// ClearIdle drops an in-progress idle span and the timestamp it was
// measured from, without touching per-name last-seen records. Used when
// monitoring pauses: idle time accrued before the pause never counts toward
// a trigger after resume.
func (t *Tracker) ClearIdle() {
	t.idle = false
	t.lastActive = time.Time{}
}

func sampleMatches(sample []string, watch string) bool {
	for _, name := range sample {
		if strings.Contains(strings.ToLower(name), watch) {
			return true
		}
	}
	return false
}
