package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vastwatch",
			Name:      "ticks_total",
			Help:      "Number of completed monitor ticks.",
		},
	)
	sampleErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vastwatch",
			Name:      "sample_errors_total",
			Help:      "Number of failed process table samples.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vastwatch",
			Name:      "state_transitions_total",
			Help:      "Number of decision state transitions.",
		}, []string{"from", "to"},
	)
	stopAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vastwatch",
			Name:      "stop_attempts_total",
			Help:      "Number of remote stop calls attempted.",
		},
	)
	idleSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vastwatch",
			Name:      "idle_seconds",
			Help:      "Current continuous idle time of the watched set.",
		},
	)
	watchedAlive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vastwatch",
			Name:      "watched_alive",
			Help:      "Whether any watched process is currently running (0/1).",
		},
	)

	processCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vastwatch",
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage of processes matching a watched name.",
		}, []string{"name"},
	)
	processMemoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vastwatch",
			Subsystem: "process",
			Name:      "memory_mb",
			Help:      "Resident memory of processes matching a watched name.",
		}, []string{"name"},
	)
	processCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vastwatch",
			Subsystem: "process",
			Name:      "count",
			Help:      "Number of running processes matching a watched name.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		ticks, sampleErrors, stateTransitions, stopAttempts, idleSeconds, watchedAlive,
		processCPUPercent, processMemoryMB, processCount,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncTick() {
	if regOK.Load() {
		ticks.Inc()
	}
}

func IncSampleError() {
	if regOK.Load() {
		sampleErrors.Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func IncStopAttempt() {
	if regOK.Load() {
		stopAttempts.Inc()
	}
}

func SetIdleSeconds(seconds float64) {
	if regOK.Load() {
		idleSeconds.Set(seconds)
	}
}

func SetWatchedAlive(alive bool) {
	if regOK.Load() {
		var value float64
		if alive {
			value = 1
		}
		watchedAlive.Set(value)
	}
}

func setProcessResources(name string, cpu, memMB float64, count int) {
	if regOK.Load() {
		processCPUPercent.WithLabelValues(name).Set(cpu)
		processMemoryMB.WithLabelValues(name).Set(memMB)
		processCount.WithLabelValues(name).Set(float64(count))
	}
}

func clearProcessResources(name string) {
	if regOK.Load() {
		processCPUPercent.DeleteLabelValues(name)
		processMemoryMB.DeleteLabelValues(name)
		processCount.WithLabelValues(name).Set(0)
	}
}
