package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/anvil/internal/poller"
)

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleListExecutors(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleListPollers(w http.ResponseWriter, r *http.Request) {
	values := []poller.Value{}
	if s.pollers != nil {
		values = append(values, s.pollers.List()...)
	}
	s.writeJSON(w, http.StatusOK, values)
}

func (s *Server) handleGetPoller(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.pollers == nil {
		s.writeError(w, http.StatusNotFound, "poller not found")
		return
	}

	v, err := s.pollers.Get(name)
	if errors.Is(err, poller.ErrUnknownPoller) {
		s.writeError(w, http.StatusNotFound, "poller not found")
		return
	}
	if err != nil {
		s.logger.Error("get poller", "name", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get poller")
		return
	}

	s.writeJSON(w, http.StatusOK, v)
}

// handleRefreshPoller submits the poller's command now, outside its period.
func (s *Server) handleRefreshPoller(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.pollers == nil {
		s.writeError(w, http.StatusNotFound, "poller not found")
		return
	}

	err := s.pollers.Refresh(r.Context(), name)
	if errors.Is(err, poller.ErrUnknownPoller) {
		s.writeError(w, http.StatusNotFound, "poller not found")
		return
	}
	if err != nil {
		s.logger.Error("refresh poller", "name", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to refresh poller")
		return
	}

	v, _ := s.pollers.Get(name)
	s.writeJSON(w, http.StatusAccepted, v)
}

type changePollerRequest struct {
	Value string `json:"value"`
}

// handleChangePoller runs a writable poller's change command for the
// requested value, then refreshes it.
func (s *Server) handleChangePoller(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.pollers == nil {
		s.writeError(w, http.StatusNotFound, "poller not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req changePollerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.pollers.Change(r.Context(), name, req.Value)
	switch {
	case err == nil:
	case errors.Is(err, poller.ErrUnknownPoller):
		s.writeError(w, http.StatusNotFound, "poller not found")
		return
	case errors.Is(err, poller.ErrReadOnly):
		s.writeError(w, http.StatusConflict, "poller is read-only")
		return
	case errors.Is(err, poller.ErrEmptyChange):
		s.writeError(w, http.StatusBadRequest, "change command is empty for this value")
		return
	default:
		s.writeRouteError(w, err)
		return
	}

	v, _ := s.pollers.Get(name)
	s.writeJSON(w, http.StatusAccepted, v)
}
