package api

import (
	"net/http"

	"github.com/seantiz/anvil/internal/engine"
	"github.com/seantiz/anvil/internal/stats"
	"github.com/seantiz/anvil/internal/store"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	History *store.ExecutionStats `json:"history"`
	Live    stats.Snapshot        `json:"live"`
	Engine  engineStats           `json:"engine"`
}

type engineStats struct {
	Queues  int   `json:"queues"`
	Pending int   `json:"pending"`
	Running int64 `json:"running"`
	Closed  bool  `json:"closed"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.GetExecutionStats(r.Context())
	if err != nil {
		s.logger.Error("get execution stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		History: history,
		Live:    s.stats.Snapshot(),
		Engine:  summarize(s.engine.Snapshot()),
	})
}

func summarize(st engine.Stats) engineStats {
	return engineStats{
		Queues:  len(st.Queues),
		Pending: st.Pending,
		Running: st.Running,
		Closed:  st.Closed,
	}
}
