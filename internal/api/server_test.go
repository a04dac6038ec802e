package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/config"
	"github.com/seantiz/anvil/internal/engine"
	"github.com/seantiz/anvil/internal/gateway"
	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/poller"
	"github.com/seantiz/anvil/internal/stats"
	"github.com/seantiz/anvil/internal/store"
)

// echoBackend succeeds with the command line as stdout. Commands starting
// with "fail" fail, and "block" waits for release. "set X" stores X and
// "level" prints it.
type echoBackend struct {
	release chan struct{}

	mu    sync.Mutex
	level string
}

func (b *echoBackend) Execute(ctx context.Context, spec backend.CommandSpec) (model.ExecutionResult, error) {
	switch {
	case strings.HasPrefix(spec.Command, "fail"):
		return model.Failed(), nil
	case strings.HasPrefix(spec.Command, "set "):
		b.mu.Lock()
		b.level = strings.TrimPrefix(spec.Command, "set ")
		b.mu.Unlock()
	case spec.Command == "level":
		b.mu.Lock()
		defer b.mu.Unlock()
		return model.ExecutionResult{Success: true, Stdout: []byte(b.level + "\n")}, nil
	case spec.Command == "block":
		select {
		case <-b.release:
		case <-ctx.Done():
			return model.Failed(), ctx.Err()
		}
	}
	return model.ExecutionResult{
		Success:  true,
		Stdout:   []byte(spec.Command + "\n"),
		Duration: time.Millisecond,
	}, nil
}

func (b *echoBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Name: "echo", Platform: "test"}
}

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	release chan struct{}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	release := make(chan struct{})
	reg := backend.NewRegistry()
	if err := reg.Register("echo", &echoBackend{release: release}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.Seal()

	eng := engine.New(engine.Config{}, logger)
	listener := engine.NewChannelListener(64)
	eng.Subscribe(listener)

	gw := gateway.New(eng, reg, s, logger)
	pollers := poller.New([]config.Poller{
		{
			Name:     "greeting",
			Queue:    config.DefaultPollerQueue,
			Executor: "echo",
			Command:  "hello",
			Period:   time.Hour,
		},
		{
			Name:     "level",
			Queue:    config.DefaultPollerQueue,
			Executor: "echo",
			Command:  "level",
			Period:   time.Hour,
			Change:   "{{if .Value}}set {{.Value}}{{end}}",
		},
	}, gw, logger)

	srv := NewServer(":0", Deps{
		Store:    s,
		Registry: reg,
		Engine:   eng,
		Gateway:  gw,
		Broker:   engine.NewResultBroker(),
		Pollers:  pollers,
		Stats:    stats.NewRecorder(),
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Record(ctx, listener.C())
	}()

	ts := httptest.NewServer(srv.Router())

	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
		eng.Shutdown(true, 5*time.Second)
		cancel()
		<-done
		ts.Close()
	})

	return &testEnv{srv: srv, ts: ts, release: release}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestEnv(t).srv
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	var reqID string
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		reqID = r.Header.Get("X-Request-Id")
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	req.Header.Set("X-Request-Id", "abc123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if reqID != "abc123" {
		t.Errorf("request id = %q, want %q", reqID, "abc123")
	}
}

func TestPanicRecovery(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/test", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /test: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}
