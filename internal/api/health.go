package api

import (
	"context"
	"net/http"
	"time"
)

const healthPingTimeout = 2 * time.Second

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Engine   string `json:"engine"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Engine: "running"}
	status := http.StatusOK

	if s.engine.Snapshot().Closed {
		resp.Engine = "closed"
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	if p, ok := s.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Error("database ping", "error", err)
			resp.Database = "unreachable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}

	s.writeJSON(w, status, resp)
}
