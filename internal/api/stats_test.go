package api

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestGetStatsEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET /v1/stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.History == nil || body.History.Total != 0 {
		t.Errorf("history = %+v, want total 0", body.History)
	}
	if body.Live.Count != 0 {
		t.Errorf("live count = %d, want 0", body.Live.Count)
	}
	if body.Engine.Closed {
		t.Error("engine reported closed")
	}
}

func TestGetStatsCountsOutcomes(t *testing.T) {
	env := newTestEnv(t)
	waitFinished(t, env.srv, submit(t, env, "s", "ok"))
	waitFinished(t, env.srv, submit(t, env, "s", "fail now"))
	waitFinished(t, env.srv, submit(t, env, "t", "ok"))

	resp, err := http.Get(env.ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET /v1/stats: %v", err)
	}
	defer resp.Body.Close()

	var body statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if body.History.Total != 3 {
		t.Errorf("history total = %d, want 3", body.History.Total)
	}
	if body.History.CountByStatus["succeeded"] != 2 || body.History.CountByStatus["failed"] != 1 {
		t.Errorf("by status = %v, want 2 succeeded 1 failed", body.History.CountByStatus)
	}
	if body.History.CountByQueue["s"] != 2 {
		t.Errorf("queue s = %d, want 2", body.History.CountByQueue["s"])
	}
}
