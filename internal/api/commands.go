package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/gateway"
	"github.com/seantiz/anvil/internal/model"
)

// submitCommandRequest is the JSON body for POST /v1/commands.
type submitCommandRequest struct {
	Queue     string `json:"queue"`
	Executor  string `json:"executor"`
	Command   string `json:"command"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// publishMessageRequest is the JSON body for POST /v1/messages.
type publishMessageRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// submitResponse is returned for an accepted command.
type submitResponse struct {
	Route     gateway.Route    `json:"route"`
	Execution *model.Execution `json:"execution,omitempty"`
}

func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req submitCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TimeoutMS < 0 {
		s.writeError(w, http.StatusBadRequest, "timeout_ms must not be negative")
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	route, err := s.gateway.Execute(r.Context(), req.Queue, req.Executor, req.Command, timeout)
	if err != nil {
		s.writeRouteError(w, err)
		return
	}
	s.writeAccepted(w, r, route)
}

func (s *Server) handlePublishMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req publishMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	route, err := s.gateway.Publish(r.Context(), req.Topic, req.Payload)
	if err != nil {
		s.writeRouteError(w, err)
		return
	}
	s.writeAccepted(w, r, route)
}

func (s *Server) writeAccepted(w http.ResponseWriter, r *http.Request, route gateway.Route) {
	resp := submitResponse{Route: route}
	exec, err := s.store.GetExecution(r.Context(), route.Token)
	if err != nil {
		s.logger.Warn("read back routed execution", "token", route.Token, "error", err)
	} else {
		resp.Execution = exec
	}
	w.Header().Set("Location", "/v1/executions/"+route.Token)
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) writeRouteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidTopic), errors.Is(err, gateway.ErrInvalidPayload):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backend.ErrUnknownExecutor):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("route command", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit command")
	}
}
