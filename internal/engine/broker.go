package engine

import (
	"slices"
	"sync"

	"github.com/seantiz/anvil/internal/model"
)

// ResultBroker hands a finished request's result to the callers blocked on
// its correlation token. It is safe for concurrent use.
//
// The broker only tracks tokens that currently have waiters. A caller that
// subscribes after Close gets a channel that never fires, so it must check
// the execution history after subscribing and before blocking.
type ResultBroker struct {
	mu      sync.Mutex
	waiters map[string][]chan model.ExecutionResult
}

// NewResultBroker creates an empty broker.
func NewResultBroker() *ResultBroker {
	return &ResultBroker{
		waiters: make(map[string][]chan model.ExecutionResult),
	}
}

// Subscribe registers a waiter for token. The returned channel receives the
// result at most once and is closed by Close. The cancel function removes the
// waiter and is safe to call more than once.
func (b *ResultBroker) Subscribe(token string) (<-chan model.ExecutionResult, func()) {
	// One slot: a token completes exactly once.
	ch := make(chan model.ExecutionResult, 1)

	b.mu.Lock()
	b.waiters[token] = append(b.waiters[token], ch)
	b.mu.Unlock()

	return ch, func() { b.remove(token, ch) }
}

func (b *ResultBroker) remove(token string, ch chan model.ExecutionResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ws, ok := b.waiters[token]
	if !ok {
		return
	}
	ws = slices.DeleteFunc(ws, func(w chan model.ExecutionResult) bool { return w == ch })
	if len(ws) == 0 {
		delete(b.waiters, token)
		return
	}
	b.waiters[token] = ws
}

// Publish sends result to the current waiters of token. Tokens nobody waits
// on are ignored.
func (b *ResultBroker) Publish(token string, result model.ExecutionResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.waiters[token] {
		select {
		case ch <- result:
		default:
		}
	}
}

// Close closes every waiter channel of token and forgets the token.
func (b *ResultBroker) Close(token string) {
	b.mu.Lock()
	ws := b.waiters[token]
	delete(b.waiters, token)
	b.mu.Unlock()

	for _, ch := range ws {
		close(ch)
	}
}

// Len returns the number of tokens with at least one waiter.
func (b *ResultBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}
