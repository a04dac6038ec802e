package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/seantiz/anvil/internal/model"
)

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

// waitFinished polls the store until the execution leaves the queued status.
func waitFinished(t *testing.T, srv *Server, id string) *model.Execution {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := srv.store.GetExecution(context.Background(), id)
		if err == nil && exec.Status != model.StatusQueued {
			return exec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s did not finish", id)
	return nil
}

func TestSubmitCommandAccepted(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.ts.URL+"/v1/commands", `{"queue":"q1","executor":"echo","command":"hello world","timeout_ms":1000}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var body submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Route.Token) != 26 {
		t.Errorf("token length = %d, want 26", len(body.Route.Token))
	}
	if body.Route.Queue != "q1" {
		t.Errorf("queue = %q, want %q", body.Route.Queue, "q1")
	}
	if body.Route.Timeout != time.Second {
		t.Errorf("timeout = %v, want 1s", body.Route.Timeout)
	}
	if body.Execution == nil || body.Execution.ID != body.Route.Token {
		t.Fatalf("execution = %+v, want record for token %s", body.Execution, body.Route.Token)
	}
	if loc := resp.Header.Get("Location"); loc != "/v1/executions/"+body.Route.Token {
		t.Errorf("Location = %q", loc)
	}

	exec := waitFinished(t, env.srv, body.Route.Token)
	if exec.Status != model.StatusSucceeded {
		t.Errorf("status = %q, want %q", exec.Status, model.StatusSucceeded)
	}
	if exec.Stdout != "hello world\n" {
		t.Errorf("stdout = %q, want %q", exec.Stdout, "hello world\n")
	}
}

func TestSubmitCommandValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "not json", http.StatusBadRequest},
		{"missing queue", `{"executor":"echo","command":"x"}`, http.StatusBadRequest},
		{"queue with slash", `{"queue":"a/b","executor":"echo","command":"x"}`, http.StatusBadRequest},
		{"empty command", `{"queue":"q","executor":"echo","command":"   "}`, http.StatusBadRequest},
		{"negative timeout", `{"queue":"q","executor":"echo","command":"x","timeout_ms":-1}`, http.StatusBadRequest},
		{"unknown executor", `{"queue":"q","executor":"nope","command":"x"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, env.ts.URL+"/v1/commands", tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var errResp map[string]string
			json.NewDecoder(resp.Body).Decode(&errResp)
			if errResp["error"] == "" {
				t.Error("expected error message in response")
			}
		})
	}
}

func TestPublishMessage(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.ts.URL+"/v1/messages", `{"topic":"lights/cmd42/5","payload":"@echo status"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var body submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Route.ReplyTopic != "lights/cmd42" {
		t.Errorf("reply topic = %q, want %q", body.Route.ReplyTopic, "lights/cmd42")
	}
	if body.Route.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", body.Route.Timeout)
	}

	exec := waitFinished(t, env.srv, body.Route.Token)
	if exec.Topic != "lights/cmd42" {
		t.Errorf("record topic = %q, want %q", exec.Topic, "lights/cmd42")
	}
	if exec.Stdout != "status\n" {
		t.Errorf("stdout = %q, want %q", exec.Stdout, "status\n")
	}
}

func TestPublishMessageInvalid(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"single level topic", `{"topic":"lights","payload":"@echo x"}`},
		{"zero timeout level", `{"topic":"lights/c/0","payload":"@echo x"}`},
		{"payload without executor", `{"topic":"lights/c","payload":"echo x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, env.ts.URL+"/v1/messages", tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSubmitCommandsRunInQueueOrder(t *testing.T) {
	env := newTestEnv(t)

	var tokens []string
	for _, cmd := range []string{"first", "second", "third"} {
		resp := postJSON(t, env.ts.URL+"/v1/commands", `{"queue":"ordered","executor":"echo","command":"`+cmd+`"}`)
		var body submitResponse
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		tokens = append(tokens, body.Route.Token)
	}

	var prev time.Time
	for i, tok := range tokens {
		exec := waitFinished(t, env.srv, tok)
		if exec.FinishedAt == nil {
			t.Fatalf("execution %d has no finish time", i)
		}
		if exec.FinishedAt.Before(prev) {
			t.Errorf("execution %d finished before its predecessor", i)
		}
		prev = *exec.FinishedAt
	}
}
