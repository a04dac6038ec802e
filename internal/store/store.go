package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/anvil/internal/model"
)

// ErrAlreadyCompleted is returned when completing an execution twice.
var ErrAlreadyCompleted = errors.New("execution already completed")

// ExecutionStats holds aggregate history statistics.
type ExecutionStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByQueue  map[string]int `json:"count_by_queue"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for execution history.
type Store interface {
	CreateExecution(ctx context.Context, e *model.Execution) error
	CompleteExecution(ctx context.Context, id string, result model.ExecutionResult, finishedAt time.Time) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	ListExecutions(ctx context.Context, queue string, limit, offset int) ([]*model.Execution, int, error)
	GetExecutionStats(ctx context.Context) (*ExecutionStats, error)
	Close() error
}
