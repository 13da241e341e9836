package metrics

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ResourceCollector periodically walks the host process table and exports
// CPU and memory gauges aggregated per watched name. It is best effort:
// unreadable processes are skipped, and a failed walk only skips one round.
type ResourceCollector struct {
	watch    []string // lowercase
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewResourceCollector builds a collector for the given watched names.
// Matching mirrors the liveness rule: case-insensitive substring.
func NewResourceCollector(watch []string, interval time.Duration) *ResourceCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	lowered := make([]string, 0, len(watch))
	for _, w := range watch {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			lowered = append(lowered, w)
		}
	}
	return &ResourceCollector{
		watch:    lowered,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic collection until the context ends or Stop is called.
func (c *ResourceCollector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collectOnce(ctx)
			}
		}
	}()
}

// Stop halts collection and waits for the worker to exit.
func (c *ResourceCollector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

type resourceTotals struct {
	cpu   float64
	memMB float64
	count int
}

// collectOnce aggregates resource usage of every process matching each
// watched name and publishes the gauges. Names with no live match keep a
// zero count so dashboards show the gap instead of a stale value.
func (c *ResourceCollector) collectOnce(ctx context.Context) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		slog.Debug("resource collection skipped", "error", err)
		return
	}

	totals := make(map[string]*resourceTotals, len(c.watch))
	for _, w := range c.watch {
		totals[w] = &resourceTotals{}
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		lower := strings.ToLower(name)
		for _, w := range c.watch {
			if !strings.Contains(lower, w) {
				continue
			}
			t := totals[w]
			t.count++
			if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
				t.cpu += cpu
			}
			if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
				t.memMB += float64(mem.RSS) / 1024 / 1024
			}
		}
	}

	for w, t := range totals {
		if t.count == 0 {
			clearProcessResources(w)
			continue
		}
		setProcessResources(w, t.cpu, t.memMB, t.count)
	}
}
