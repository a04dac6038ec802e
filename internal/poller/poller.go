// Package poller runs declared commands periodically and caches the latest
// output of each, so frequently read values ("data items") are always at hand
// without re-running the command.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/anvil/internal/config"
	"github.com/seantiz/anvil/internal/gateway"
	"github.com/seantiz/anvil/internal/model"
)

var (
	// ErrUnknownPoller is returned for a poller name that was never declared.
	ErrUnknownPoller = errors.New("unknown poller")

	// ErrReadOnly is returned by Change for a poller without a change command.
	ErrReadOnly = errors.New("poller is read-only")

	// ErrEmptyChange is returned by Change when the change command renders
	// to nothing for the requested value.
	ErrEmptyChange = errors.New("change command is empty")
)

// Dispatcher submits commands. *gateway.Gateway satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, c gateway.Command) (gateway.Route, error)
}

// Value is the cached state of one poller.
type Value struct {
	Name      string        `json:"name"`
	Queue     string        `json:"queue"`
	Executor  string        `json:"executor"`
	Command   string        `json:"command"`
	Period    time.Duration `json:"period"`
	Writable  bool          `json:"writable"`
	Value     string        `json:"value"`
	Valid     bool          `json:"valid"`
	Pending   int           `json:"pending"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

type poller struct {
	spec      config.Poller
	value     string
	valid     bool
	updatedAt *time.Time
	pending   int
}

// Manager owns the declared pollers.
type Manager struct {
	dispatcher Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	order   []string
	pollers map[string]*poller
	tokens  map[string]string // in-flight token -> poller name

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a manager for specs. Pollers do not run until Start.
func New(specs []config.Poller, d Dispatcher, logger *slog.Logger) *Manager {
	m := &Manager{
		dispatcher: d,
		logger:     logger.With("component", "poller"),
		pollers:    make(map[string]*poller, len(specs)),
		tokens:     make(map[string]string),
		stopCh:     make(chan struct{}),
	}
	for _, s := range specs {
		m.order = append(m.order, s.Name)
		m.pollers[s.Name] = &poller{spec: s}
	}
	return m
}

// Start launches one loop per poller. Each loop submits its command at once
// and then again after every period.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("starting pollers", "count", len(m.order))
	for _, name := range m.order {
		m.wg.Add(1)
		go m.loop(ctx, name, m.pollers[name].spec.Period)
	}
}

// Stop ends all poller loops and waits for them. In-flight commands still
// complete through Handle.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("pollers stopped")
}

func (m *Manager) loop(ctx context.Context, name string, period time.Duration) {
	defer m.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if err := m.Refresh(ctx, name); err != nil {
				m.logger.Error("poll failed", "poller", name, "error", err)
			}
			timer.Reset(period)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Refresh submits the poller's command immediately.
func (m *Manager) Refresh(ctx context.Context, name string) error {
	token := model.NewID()

	m.mu.Lock()
	p, ok := m.pollers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownPoller, name)
	}
	spec := p.spec
	// Registered before dispatch: the completion may arrive before Dispatch returns.
	m.tokens[token] = name
	p.pending++
	m.mu.Unlock()

	_, err := m.dispatcher.Dispatch(ctx, gateway.Command{
		Token:     token,
		Queue:     spec.Queue,
		CommandID: spec.Name,
		Executor:  spec.Executor,
		Command:   spec.Command,
		Timeout:   spec.Timeout,
	})
	if err != nil {
		m.mu.Lock()
		if _, still := m.tokens[token]; still {
			delete(m.tokens, token)
			p.pending--
		}
		m.mu.Unlock()
		return fmt.Errorf("dispatch %s: %w", name, err)
	}
	return nil
}

// Change requests a new value for a writable poller. The rendered change
// command goes onto the poller's queue, followed by a refresh, so the cached
// value is re-read only after the change ran.
func (m *Manager) Change(ctx context.Context, name, value string) error {
	m.mu.Lock()
	p, ok := m.pollers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownPoller, name)
	}
	spec := p.spec
	m.mu.Unlock()

	if !spec.Writable() {
		return fmt.Errorf("%w: %q", ErrReadOnly, name)
	}

	command, err := spec.ChangeCommand(value)
	if err != nil {
		return fmt.Errorf("change %s: %w", name, err)
	}
	if command == "" {
		m.logger.Warn("change command is empty", "poller", name, "value", value)
		return fmt.Errorf("%w: %q", ErrEmptyChange, name)
	}

	route, err := m.dispatcher.Dispatch(ctx, gateway.Command{
		Queue:     spec.Queue,
		CommandID: spec.Name,
		Executor:  spec.Executor,
		Command:   command,
		Timeout:   spec.ChangeTimeout,
	})
	if err != nil {
		return fmt.Errorf("dispatch change %s: %w", name, err)
	}
	m.logger.Info("change requested", "poller", name, "token", route.Token)

	return m.Refresh(ctx, name)
}

// Handle consumes a completion if it belongs to a poller and reports whether
// it did. Successful output is trimmed and cached; a failure clears the value.
func (m *Manager) Handle(token string, result model.ExecutionResult) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.tokens[token]
	if !ok {
		return false
	}
	delete(m.tokens, token)

	p := m.pollers[name]
	p.pending--
	now := time.Now().UTC()
	p.updatedAt = &now
	if result.Success {
		p.value = strings.TrimSpace(string(result.Stdout))
		p.valid = true
	} else {
		p.value = ""
		p.valid = false
		m.logger.Warn("poll command failed", "poller", name, "token", token)
	}
	return true
}

// Get returns the cached state of one poller.
func (m *Manager) Get(name string) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pollers[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownPoller, name)
	}
	return p.snapshot(), nil
}

// List returns the cached state of every poller in declaration order.
func (m *Manager) List() []Value {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Value, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.pollers[name].snapshot())
	}
	return out
}

func (p *poller) snapshot() Value {
	return Value{
		Name:      p.spec.Name,
		Queue:     p.spec.Queue,
		Executor:  p.spec.Executor,
		Command:   p.spec.Command,
		Period:    p.spec.Period,
		Writable:  p.spec.Writable(),
		Value:     p.value,
		Valid:     p.valid,
		Pending:   p.pending,
		UpdatedAt: p.updatedAt,
	}
}
