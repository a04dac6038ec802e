// Package engine provides the asynchronous command-execution engine.
//
// Requests are grouped into named queues. Within a queue at most one request
// is in flight and completions are delivered in submission order; distinct
// queues run in parallel on a shared elastic worker pool. Every submitted
// request, whether it ran, failed to spawn, or was rejected during shutdown,
// produces exactly one completion notification, delivered outside the
// registry lock. A finished head leaves its queue only after its notification
// returns, so a snapshot may briefly show a completed head.
package engine
