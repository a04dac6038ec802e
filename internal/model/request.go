package model

import "time"

// Request lifecycle states.
const (
	StateQueued     = "queued"
	StateDispatched = "dispatched"
	StateRunning    = "running"
	StateRejected   = "rejected"
	StateCompleted  = "completed"
)

// Execution record statuses as persisted in history.
const (
	StatusQueued    = "queued"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// validTransitions maps each request state to the set of states it may move to.
var validTransitions = map[string]map[string]bool{
	StateQueued: {
		StateDispatched: true,
		StateRejected:   true,
	},
	StateDispatched: {
		StateRunning: true,
	},
	StateRunning: {
		StateCompleted: true,
	},
	StateRejected: {
		StateCompleted: true,
	},
}

// ValidTransition reports whether a request may move from one state to another.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Execution is the history record of one submitted command.
type Execution struct {
	ID         string     `json:"id"`
	Queue      string     `json:"queue"`
	Topic      string     `json:"topic,omitempty"`
	Executor   string     `json:"executor"`
	Command    string     `json:"command"`
	TimeoutMS  int64      `json:"timeout_ms"`
	Status     string     `json:"status"`
	Success    *bool      `json:"success,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Stdout     string     `json:"stdout"`
	Stderr     string     `json:"stderr"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
