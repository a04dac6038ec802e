package backend

import (
	"context"
	"time"

	"github.com/seantiz/anvil/internal/model"
)

// Backend runs a single command and reports what it produced.
type Backend interface {
	// Execute runs the command described by spec. The returned result is always
	// usable: failures are reported as Success=false with whatever output was
	// captured. The error, if any, carries the root cause for diagnostics only.
	// Cancelling ctx forcibly terminates the command.
	Execute(ctx context.Context, spec CommandSpec) (model.ExecutionResult, error)

	// Capabilities describes the backend for listing endpoints.
	Capabilities() Capabilities
}

// CommandSpec describes one command to run.
type CommandSpec struct {
	// Command is the opaque command line.
	Command string `json:"command"`

	// Timeout bounds the run; zero or negative means unbounded.
	Timeout time.Duration `json:"timeout"`

	// Token is the correlation token of the originating request, used for logging.
	Token string `json:"token"`

	// Spawn runs fn asynchronously on the caller's worker pool. Backends use it
	// for auxiliary work such as draining output streams. When nil, fn runs on
	// a fresh goroutine.
	Spawn func(fn func()) `json:"-"`
}

// Go runs fn through Spawn, or on a new goroutine when Spawn is unset.
func (s CommandSpec) Go(fn func()) {
	if s.Spawn != nil {
		s.Spawn(fn)
		return
	}
	go fn()
}

// Capabilities describes a backend.
type Capabilities struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Shell    bool   `json:"shell"`
	WorkDir  string `json:"work_dir"`
}
