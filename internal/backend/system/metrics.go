package system

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values.
const (
	outcomeOK           = "ok"
	outcomeTimeout      = "timeout"
	outcomeInterrupted  = "interrupted"
	outcomeSpawnFailure = "spawn_failure"
	outcomeIOError      = "io_error"
)

var (
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_system_executions_total",
			Help: "Total number of OS commands run by the system backend, by outcome.",
		},
		[]string{"outcome"},
	)

	executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anvil_system_execution_seconds",
			Help:    "Wall-clock duration of OS commands from spawn to joined output, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	runningProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anvil_system_running_processes",
			Help: "Number of OS processes currently spawned by the system backend.",
		},
	)
)

func init() {
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(executionDuration)
	prometheus.MustRegister(runningProcesses)

	// Pre-initialize outcome labels so they appear in /metrics from startup.
	for _, o := range []string{outcomeOK, outcomeTimeout, outcomeInterrupted, outcomeSpawnFailure, outcomeIOError} {
		executionsTotal.WithLabelValues(o)
	}
}
