package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/model"
)

// Config holds engine construction options.
type Config struct {
	// MaxRunning caps concurrently running commands. Zero means unbounded.
	MaxRunning int64

	// Strict panics on internal invariant violations instead of logging and
	// continuing.
	Strict bool
}

// Request is one command submitted to a queue.
type Request struct {
	// Token correlates the completion notification with the submission.
	Token string

	// Command is the opaque command line handed to Backend.
	Command string

	// Timeout bounds the run; zero or negative means unbounded.
	Timeout time.Duration

	// Backend runs the command.
	Backend backend.Backend
}

// request is the engine's bookkeeping for a submitted Request. state is only
// touched under Engine.mu; result is written once by the executing worker
// before it takes the lock to finish.
type request struct {
	Request
	queue     string
	state     string
	submitted time.Time
	result    model.ExecutionResult
}

type queue struct {
	id    string
	items []*request // items[0] is the in-flight request
}

// Engine serializes requests per queue and dispatches queue heads onto the
// worker pool.
type Engine struct {
	mu     sync.Mutex
	queues map[string]*queue

	pool     *Pool
	notifier Notifier
	strict   bool
	logger   *slog.Logger

	// ctx is handed to every backend execution; Abort cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an engine. The engine owns its worker pool; call Shutdown when
// done.
func New(cfg Config, logger *slog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		queues: make(map[string]*queue),
		pool:   NewPool(cfg.MaxRunning),
		strict: cfg.Strict,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe installs the completion listener. See Notifier.Subscribe.
func (e *Engine) Subscribe(l Listener) (unsubscribe func()) {
	return e.notifier.Subscribe(l)
}

// Submit appends req to the named queue and returns immediately. If the
// queue was empty the request is dispatched at once; otherwise it runs after
// every earlier request of the queue has completed and been notified.
func (e *Engine) Submit(queueID string, req Request) {
	r := &request{
		Request:   req,
		queue:     queueID,
		state:     model.StateQueued,
		submitted: time.Now(),
	}
	requestsSubmitted.Inc()

	if q, rejected := e.enqueue(r); rejected != nil {
		e.settle(q, rejected)
	}
}

func (e *Engine) enqueue(r *request) (*queue, *request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, ok := e.queues[r.queue]
	if !ok {
		q = &queue{id: r.queue}
		e.queues[r.queue] = q
		activeQueues.Inc()
	}
	q.items = append(q.items, r)
	pendingRequests.Inc()

	if len(q.items) == 1 {
		return q, e.dispatchLocked(q)
	}
	return q, nil
}

// dispatchLocked schedules the head of q. A head the pool refuses is failed
// and completed but stays at the head; it is returned for the caller to
// settle after unlock.
func (e *Engine) dispatchLocked(q *queue) *request {
	head := q.items[0]
	err := e.pool.Submit(func() { e.run(head) })
	if err == nil {
		e.transition(head, model.StateDispatched)
		return nil
	}

	dispatchRejected.Inc()
	e.logger.Warn("dispatch rejected",
		"queue", q.id,
		"token", head.Token,
		"error", err,
	)
	e.transition(head, model.StateRejected)
	head.result = model.Failed()
	e.transition(head, model.StateCompleted)
	return head
}

// settle notifies the listener of done, the completed head of q, then pops
// it and dispatches the next request, repeating for heads the pool refuses.
// A head leaves its queue only after its notification returned, so no
// successor of the same queue can be notified first. Called without e.mu.
func (e *Engine) settle(q *queue, done *request) {
	for done != nil {
		e.deliver(done)
		done = e.advance(q, done)
	}
}

// advance pops done off q and dispatches the next head. It returns the next
// head if the pool refused it.
func (e *Engine) advance(q *queue, done *request) *request {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(q.items) == 0 || q.items[0] != done {
		e.violation("settled request is not the queue head", done)
		return nil
	}
	e.popLocked(q)
	if len(q.items) == 0 {
		return nil
	}
	return e.dispatchLocked(q)
}

// popLocked removes the head of q and drops q from the registry once empty.
func (e *Engine) popLocked(q *queue) {
	q.items[0] = nil
	q.items = q.items[1:]
	pendingRequests.Dec()
	if len(q.items) == 0 {
		e.dropLocked(q)
	}
}

func (e *Engine) dropLocked(q *queue) {
	if e.queues[q.id] == q {
		delete(e.queues, q.id)
		activeQueues.Dec()
	}
}

// run is the worker body for one dispatched request.
func (e *Engine) run(r *request) {
	e.mu.Lock()
	e.transition(r, model.StateRunning)
	e.mu.Unlock()

	r.result = e.execute(r)

	if q := e.complete(r); q != nil {
		e.settle(q, r)
		return
	}
	e.deliver(r)
}

func (e *Engine) execute(r *request) (result model.ExecutionResult) {
	logger := e.logger.With("queue", r.queue, "token", r.Token)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("backend panicked", "command", r.Command, "panic", p)
			result = model.Failed()
		}
	}()

	if r.Backend == nil {
		logger.Error("request has no backend", "command", r.Command)
		return model.Failed()
	}

	res, err := r.Backend.Execute(e.ctx, backend.CommandSpec{
		Command: r.Command,
		Timeout: r.Timeout,
		Token:   r.Token,
		Spawn:   e.pool.Go,
	})
	if err != nil {
		logger.Debug("execution failed", "error", err)
	}
	return res
}

// complete marks r completed and returns its queue, which the caller then
// settles. A request that is not the head of a registered queue breaks the
// registry's invariants: it is reported, dropped from the books and nil is
// returned, leaving the queue's real head untouched.
func (e *Engine) complete(r *request) *queue {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, ok := e.queues[r.queue]
	if !ok {
		e.violation("finished request has no queue", r)
		e.transition(r, model.StateCompleted)
		return nil
	}

	if len(q.items) == 0 || q.items[0] != r {
		head := ""
		if len(q.items) > 0 {
			head = q.items[0].Token
		}
		e.violation("finished request is not the queue head", r, "head", head)
		for i, item := range q.items {
			if item == r {
				q.items = append(q.items[:i], q.items[i+1:]...)
				pendingRequests.Dec()
				break
			}
		}
		if len(q.items) == 0 {
			e.dropLocked(q)
		}
		e.transition(r, model.StateCompleted)
		return nil
	}

	e.transition(r, model.StateCompleted)
	return q
}

// deliver notifies the listener of one completed request. It must be called
// without e.mu held.
func (e *Engine) deliver(r *request) {
	outcome := outcomeFailure
	if r.result.Success {
		outcome = outcomeSuccess
	}
	requestsCompleted.WithLabelValues(outcome).Inc()

	e.notifier.Deliver(r.Token, r.result)
}

// transition moves r to state to, flagging moves the request lifecycle does
// not allow. Callers hold e.mu.
func (e *Engine) transition(r *request, to string) {
	if !model.ValidTransition(r.state, to) {
		e.violation("invalid request state transition", r, "from", r.state, "to", to)
	}
	r.state = to
}

// violation reports a broken internal invariant. Callers hold e.mu.
func (e *Engine) violation(msg string, r *request, args ...any) {
	invariantViolations.Inc()
	if e.strict {
		panic(fmt.Sprintf("engine: %s (queue=%s token=%s)", msg, r.queue, r.Token))
	}

	attrs := append([]any{
		"kind", "internal_invariant_violation",
		"queue", r.queue,
		"token", r.Token,
	}, args...)
	e.logger.Error(msg, attrs...)
}

// Shutdown stops dispatch of new work. Running commands are not killed;
// requests still queued behind them are rejected as each head finishes.
// When wait is true, Shutdown blocks until in-flight work ends, bounded by a
// positive timeout.
func (e *Engine) Shutdown(wait bool, timeout time.Duration) error {
	e.pool.Close()
	e.logger.Info("engine shutting down", "wait", wait, "timeout", timeout)

	if !wait {
		return nil
	}
	if err := e.pool.Wait(timeout); err != nil {
		return fmt.Errorf("engine shutdown: %w", err)
	}
	return nil
}

// Abort forcibly terminates every running command. Intended for use after
// Shutdown timed out, so that commands do not outlive the host.
func (e *Engine) Abort() {
	e.cancel()
}

// QueueInfo describes one live queue.
type QueueInfo struct {
	ID        string    `json:"id"`
	Depth     int       `json:"depth"`
	Head      string    `json:"head"`
	HeadState string    `json:"head_state"`
	Command   string    `json:"command"`
	Since     time.Time `json:"since"`
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Queues  []QueueInfo `json:"queues"`
	Pending int         `json:"pending"`
	Running int64       `json:"running"`
	Closed  bool        `json:"closed"`
}

// Snapshot returns the live queues sorted by id.
func (e *Engine) Snapshot() Stats {
	e.mu.Lock()
	infos := make([]QueueInfo, 0, len(e.queues))
	pending := 0
	for _, q := range e.queues {
		head := q.items[0]
		infos = append(infos, QueueInfo{
			ID:        q.id,
			Depth:     len(q.items),
			Head:      head.Token,
			HeadState: head.state,
			Command:   head.Command,
			Since:     head.submitted,
		})
		pending += len(q.items)
	}
	e.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return Stats{
		Queues:  infos,
		Pending: pending,
		Running: e.pool.Active(),
		Closed:  e.pool.Closed(),
	}
}
