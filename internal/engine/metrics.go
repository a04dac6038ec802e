package engine

import "github.com/prometheus/client_golang/prometheus"

// Completion outcome label values.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

var (
	requestsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anvil_engine_requests_submitted_total",
			Help: "Total number of requests submitted to the engine.",
		},
	)

	requestsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_engine_requests_completed_total",
			Help: "Total number of completion notifications, by outcome.",
		},
		[]string{"outcome"},
	)

	dispatchRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anvil_engine_dispatch_rejected_total",
			Help: "Total number of requests the worker pool refused to schedule.",
		},
	)

	invariantViolations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anvil_engine_invariant_violations_total",
			Help: "Total number of internal queue invariant violations detected.",
		},
	)

	activeQueues = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anvil_engine_active_queues",
			Help: "Number of queues holding at least one pending request.",
		},
	)

	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anvil_engine_pending_requests",
			Help: "Number of requests queued or in flight across all queues.",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsSubmitted)
	prometheus.MustRegister(requestsCompleted)
	prometheus.MustRegister(dispatchRejected)
	prometheus.MustRegister(invariantViolations)
	prometheus.MustRegister(activeQueues)
	prometheus.MustRegister(pendingRequests)

	requestsCompleted.WithLabelValues(outcomeSuccess)
	requestsCompleted.WithLabelValues(outcomeFailure)
}
