package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/store"
)

// listExecutionsResponse wraps the paginated list response.
type listExecutionsResponse struct {
	Executions []*model.Execution `json:"executions"`
	Total      int                `json:"total"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	execs, total, err := s.store.ListExecutions(r.Context(), r.URL.Query().Get("queue"), limit, offset)
	if err != nil {
		s.logger.Error("list executions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []*model.Execution{}
	}

	s.writeJSON(w, http.StatusOK, listExecutionsResponse{
		Executions: execs,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	exec, err := s.store.GetExecution(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.logger.Error("get execution", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}

	s.writeJSON(w, http.StatusOK, exec)
}

// handleWaitExecution streams a single "result" event once the execution
// finishes, followed by "done". A finished execution is answered at once.
func (s *Server) handleWaitExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Subscribe before reading the record so a completion landing in between
	// is not lost.
	ch, unsub := s.broker.Subscribe(id)
	defer unsub()

	exec, err := s.store.GetExecution(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.logger.Error("get execution", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if exec.Status == model.StatusQueued {
		waitStreams.Inc()
		defer waitStreams.Dec()

		// Disable write timeout for long-lived SSE connections.
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			s.logger.Error("set write deadline for SSE", "error", err)
		}

		w.WriteHeader(http.StatusOK)
		flusher, canFlush := w.(http.Flusher)
		if canFlush {
			flusher.Flush()
		}

		select {
		case <-ch:
		case <-r.Context().Done():
			return
		}

		// The recorder persists before it publishes, so the stored record is
		// final by now.
		if fresh, err := s.store.GetExecution(r.Context(), id); err == nil {
			exec = fresh
		} else {
			s.logger.Error("reload execution", "id", id, "error", err)
		}
	} else {
		w.WriteHeader(http.StatusOK)
	}

	data, err := json.Marshal(exec)
	if err != nil {
		s.logger.Error("encode execution", "id", id, "error", err)
		return
	}
	if err := writeSSEEvent(w, "result", string(data)); err != nil {
		return
	}
	_ = writeSSEEvent(w, "done", "")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
