package gateway_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/engine"
	"github.com/seantiz/anvil/internal/gateway"
	"github.com/seantiz/anvil/internal/model"
)

type stubBackend struct{}

func (stubBackend) Execute(context.Context, backend.CommandSpec) (model.ExecutionResult, error) {
	return model.ExecutionResult{Success: true}, nil
}

func (stubBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Name: "stub"}
}

type submission struct {
	queue string
	req   engine.Request
}

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []submission
}

func (r *recordingSubmitter) Submit(queueID string, req engine.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, submission{queue: queueID, req: req})
}

type memJournal struct {
	records []*model.Execution
	err     error
}

func (j *memJournal) CreateExecution(_ context.Context, e *model.Execution) error {
	if j.err != nil {
		return j.err
	}
	j.records = append(j.records, e)
	return nil
}

func newGateway(t *testing.T, journal gateway.Journal) (*gateway.Gateway, *recordingSubmitter) {
	t.Helper()
	reg := backend.NewRegistry()
	require.NoError(t, reg.Register("cmd", stubBackend{}))
	sub := &recordingSubmitter{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return gateway.New(sub, reg, journal, logger), sub
}

func TestPublishRoutesToQueue(t *testing.T) {
	journal := &memJournal{}
	gw, sub := newGateway(t, journal)

	route, err := gw.Publish(context.Background(), "backup/nightly/30", "@cmd tar czf out.tgz data")
	require.NoError(t, err)

	assert.Equal(t, "backup", route.Queue)
	assert.Equal(t, "nightly", route.CommandID)
	assert.Equal(t, "backup/nightly", route.ReplyTopic)
	assert.Equal(t, "cmd", route.Executor)
	assert.Equal(t, 30*time.Second, route.Timeout)
	assert.Len(t, route.Token, 26)

	require.Len(t, sub.subs, 1)
	assert.Equal(t, "backup", sub.subs[0].queue)
	assert.Equal(t, route.Token, sub.subs[0].req.Token)
	assert.Equal(t, "tar czf out.tgz data", sub.subs[0].req.Command)
	assert.Equal(t, 30*time.Second, sub.subs[0].req.Timeout)
	assert.NotNil(t, sub.subs[0].req.Backend)

	require.Len(t, journal.records, 1)
	rec := journal.records[0]
	assert.Equal(t, route.Token, rec.ID)
	assert.Equal(t, model.StatusQueued, rec.Status)
	assert.Equal(t, "backup/nightly", rec.Topic)
	assert.Equal(t, int64(30000), rec.TimeoutMS)
}

func TestPublishTokensAreUnique(t *testing.T) {
	gw, _ := newGateway(t, nil)

	r1, err := gw.Publish(context.Background(), "q/same", "@cmd true")
	require.NoError(t, err)
	r2, err := gw.Publish(context.Background(), "q/same", "@cmd true")
	require.NoError(t, err)

	assert.NotEqual(t, r1.Token, r2.Token)
	assert.Equal(t, r1.ReplyTopic, r2.ReplyTopic)
}

func TestPublishRejectsBadInput(t *testing.T) {
	gw, sub := newGateway(t, nil)

	_, err := gw.Publish(context.Background(), "onlyqueue", "@cmd ls")
	assert.ErrorIs(t, err, gateway.ErrInvalidTopic)

	_, err = gw.Publish(context.Background(), "q/c", "ls")
	assert.ErrorIs(t, err, gateway.ErrInvalidPayload)

	_, err = gw.Publish(context.Background(), "q/c", "@ssh ls")
	assert.ErrorIs(t, err, backend.ErrUnknownExecutor)

	assert.Empty(t, sub.subs)
}

func TestPublishJournalFailureDoesNotSubmit(t *testing.T) {
	gw, sub := newGateway(t, &memJournal{err: errors.New("disk full")})

	_, err := gw.Publish(context.Background(), "q/c", "@cmd ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, sub.subs)
}

func TestExecuteGeneratesCommandID(t *testing.T) {
	gw, sub := newGateway(t, nil)

	route, err := gw.Execute(context.Background(), "maint", "cmd", " df -h ", -time.Second)
	require.NoError(t, err)

	assert.Equal(t, "maint", route.Queue)
	assert.NotEmpty(t, route.CommandID)
	assert.Equal(t, "maint/"+route.CommandID, route.ReplyTopic)
	assert.Equal(t, "df -h", route.Command)
	assert.Zero(t, route.Timeout)
	require.Len(t, sub.subs, 1)
}

func TestExecuteValidates(t *testing.T) {
	gw, _ := newGateway(t, nil)

	_, err := gw.Execute(context.Background(), "", "cmd", "ls", 0)
	assert.ErrorIs(t, err, gateway.ErrInvalidTopic)

	_, err = gw.Execute(context.Background(), "a/b", "cmd", "ls", 0)
	assert.ErrorIs(t, err, gateway.ErrInvalidTopic)

	_, err = gw.Execute(context.Background(), "q", "cmd", "  ", 0)
	assert.ErrorIs(t, err, gateway.ErrInvalidPayload)

	_, err = gw.Execute(context.Background(), "q", "nope", "ls", 0)
	assert.ErrorIs(t, err, backend.ErrUnknownExecutor)
}

func TestGatewayWithEngine(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := engine.New(engine.Config{}, logger)
	l := engine.NewChannelListener(4)
	eng.Subscribe(l)

	reg := backend.NewRegistry()
	require.NoError(t, reg.Register("cmd", stubBackend{}))
	gw := gateway.New(eng, reg, nil, logger)

	route, err := gw.Publish(context.Background(), "q/c", "@cmd anything")
	require.NoError(t, err)

	select {
	case c := <-l.C():
		assert.Equal(t, route.Token, c.Token)
		assert.True(t, c.Result.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("no completion")
	}
	require.NoError(t, eng.Shutdown(true, time.Second))
}

func TestDispatchKeepsCallerToken(t *testing.T) {
	gw, sub := newGateway(t, nil)

	route, err := gw.Dispatch(context.Background(), gateway.Command{
		Token:    "poll-1",
		Queue:    "pollers",
		Executor: "cmd",
		Command:  "uptime",
	})
	require.NoError(t, err)

	assert.Equal(t, "poll-1", route.Token)
	require.Len(t, sub.subs, 1)
	assert.Equal(t, "poll-1", sub.subs[0].req.Token)
}

func TestDispatchRejectsSlashInCommandID(t *testing.T) {
	gw, _ := newGateway(t, nil)

	_, err := gw.Dispatch(context.Background(), gateway.Command{
		Queue: "q", CommandID: "a/b", Executor: "cmd", Command: "ls",
	})
	assert.ErrorIs(t, err, gateway.ErrInvalidTopic)
}
