package engine

import (
	"sync"

	"github.com/seantiz/anvil/internal/model"
)

// Listener receives exactly one completion per submitted request.
type Listener interface {
	OnCompleted(token string, result model.ExecutionResult)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(token string, result model.ExecutionResult)

// OnCompleted calls f.
func (f ListenerFunc) OnCompleted(token string, result model.ExecutionResult) {
	f(token, result)
}

// Notifier holds the single completion listener.
//
// Subscriptions are token based: the unsubscribe function returned by
// Subscribe only clears the slot if no newer listener replaced it.
type Notifier struct {
	mu       sync.RWMutex
	listener Listener
	gen      uint64
}

// Subscribe installs l, replacing any previous listener.
func (n *Notifier) Subscribe(l Listener) (unsubscribe func()) {
	n.mu.Lock()
	n.gen++
	gen := n.gen
	n.listener = l
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.gen == gen {
			n.listener = nil
		}
	}
}

// Deliver hands result to the current listener. It reports false when no
// listener was registered. Must not be called with engine locks held.
func (n *Notifier) Deliver(token string, result model.ExecutionResult) bool {
	n.mu.RLock()
	l := n.listener
	n.mu.RUnlock()

	if l == nil {
		return false
	}
	l.OnCompleted(token, result)
	return true
}

// Completion is one delivered result.
type Completion struct {
	Token  string
	Result model.ExecutionResult
}

// ChannelListener delivers completions on a bounded channel. When the
// channel is full the finishing worker blocks until the host drains it.
type ChannelListener struct {
	ch chan Completion
}

// NewChannelListener creates a listener with the given buffer size.
func NewChannelListener(size int) *ChannelListener {
	return &ChannelListener{ch: make(chan Completion, size)}
}

// OnCompleted enqueues the completion.
func (c *ChannelListener) OnCompleted(token string, result model.ExecutionResult) {
	c.ch <- Completion{Token: token, Result: result}
}

// C returns the receive side of the completion channel.
func (c *ChannelListener) C() <-chan Completion {
	return c.ch
}
