// Package sampler snapshots the process names currently running on the host.
package sampler

import (
	"context"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// SampleError marks a failed snapshot of the host process table. It is
// transient: the caller logs it and retries on the next tick.
type SampleError struct {
	Err error
}

func (e *SampleError) Error() string { return "sample process table: " + e.Err.Error() }
func (e *SampleError) Unwrap() error { return e.Err }

// Sampler enumerates running process names. A Sample call is a pure read
// with no side effects on host state.
type Sampler interface {
	// Sample returns the lowercase names of all currently running
	// processes. It fails with *SampleError when the process table cannot
	// be enumerated at all; individual unreadable processes are skipped.
	Sample(ctx context.Context) ([]string, error)
	// Describe returns a human-readable description of the sampling method.
	Describe() string
}

// HostSampler reads the live process table via gopsutil.
type HostSampler struct{}

// NewHostSampler returns a sampler for the local host.
func NewHostSampler() *HostSampler { return &HostSampler{} }

// Describe implements Sampler.
func (s *HostSampler) Describe() string { return "host process table" }

// Sample implements Sampler.
func (s *HostSampler) Sample(ctx context.Context) ([]string, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, &SampleError{Err: err}
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			// Processes exit between enumeration and inspection; skip them.
			continue
		}
		names = append(names, strings.ToLower(name))
	}
	return names, nil
}
