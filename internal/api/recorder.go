package api

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/anvil/internal/engine"
	"github.com/seantiz/anvil/internal/store"
)

// Record consumes engine completions until ctx is cancelled, then drains
// whatever is still buffered. Each completion is persisted before it is
// published, so waiters always read a final record.
func (s *Server) Record(ctx context.Context, completions <-chan engine.Completion) {
	for {
		select {
		case c := <-completions:
			s.recordCompletion(c)
		case <-ctx.Done():
			for {
				select {
				case c := <-completions:
					s.recordCompletion(c)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) recordCompletion(c engine.Completion) {
	ctx := context.Background()
	logger := s.logger.With("token", c.Token)

	err := s.store.CompleteExecution(ctx, c.Token, c.Result, time.Now().UTC())
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Warn("completion for unrecorded execution")
	case errors.Is(err, store.ErrAlreadyCompleted):
		logger.Error("execution completed twice", "kind", "internal_invariant_violation")
	case err != nil:
		logger.Error("record completion", "error", err)
	}

	queue := ""
	if exec, err := s.store.GetExecution(ctx, c.Token); err == nil {
		queue = exec.Queue
	}
	s.stats.Observe(queue, c.Result)

	if s.pollers != nil {
		s.pollers.Handle(c.Token, c.Result)
	}

	s.broker.Publish(c.Token, c.Result)
	s.broker.Close(c.Token)

	logger.Debug("completion recorded", "queue", queue, "success", c.Result.Success)
}
