package backend

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

var (
	// ErrUnknownExecutor is returned when no backend is registered under an id.
	ErrUnknownExecutor = errors.New("unknown executor")

	// ErrInvalidExecutorID is returned for ids not matching idPattern.
	ErrInvalidExecutorID = errors.New("invalid executor id")

	// ErrRegistrySealed is returned when registering after Seal.
	ErrRegistrySealed = errors.New("executor registry is sealed")
)

// idPattern defines a valid executor identifier.
var idPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*$`)

// ExecutorInfo pairs an executor id with its backend capabilities.
type ExecutorInfo struct {
	ID           string       `json:"id"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry maps executor ids to backends. Registration is only allowed until
// the registry is sealed, after which it is read-only.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	sealed   bool
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend under id. Registering the same backend twice under
// the same id is a no-op.
func (r *Registry) Register(id string, b Backend) error {
	if b == nil {
		return fmt.Errorf("register %q: backend is nil", id)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("register %q: %w", id, ErrInvalidExecutorID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register %q: %w", id, ErrRegistrySealed)
	}
	if existing, ok := r.backends[id]; ok {
		if existing == b {
			return nil
		}
		return fmt.Errorf("executor %q is already registered", id)
	}
	r.backends[id] = b
	return nil
}

// Seal forbids further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Resolve returns the backend registered under id.
func (r *Registry) Resolve(id string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[id]
	if !ok {
		return nil, fmt.Errorf("executor %q: %w", id, ErrUnknownExecutor)
	}
	return b, nil
}

// List returns all registered executors sorted by id for a stable API response.
func (r *Registry) List() []ExecutorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ExecutorInfo, 0, len(r.backends))
	for id, b := range r.backends {
		infos = append(infos, ExecutorInfo{
			ID:           id,
			Capabilities: b.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos
}
