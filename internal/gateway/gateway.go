package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/engine"
	"github.com/seantiz/anvil/internal/model"
)

// Submitter accepts requests for a queue. *engine.Engine satisfies it.
type Submitter interface {
	Submit(queueID string, req engine.Request)
}

// Journal records an execution before it is submitted, so its completion
// always finds a record to update. *store.SQLiteStore satisfies it.
type Journal interface {
	CreateExecution(ctx context.Context, e *model.Execution) error
}

// Route describes where a published command went.
type Route struct {
	Token      string        `json:"token"`
	Queue      string        `json:"queue"`
	CommandID  string        `json:"command_id"`
	ReplyTopic string        `json:"reply_topic"`
	Executor   string        `json:"executor"`
	Command    string        `json:"command"`
	Timeout    time.Duration `json:"timeout"`
}

// Gateway maps routed messages onto engine requests.
type Gateway struct {
	engine   Submitter
	registry *backend.Registry
	journal  Journal
	logger   *slog.Logger
}

// New creates a gateway. journal may be nil.
func New(eng Submitter, reg *backend.Registry, journal Journal, logger *slog.Logger) *Gateway {
	return &Gateway{
		engine:   eng,
		registry: reg,
		journal:  journal,
		logger:   logger.With("component", "gateway"),
	}
}

// Command is a fully specified submission. Empty Token and CommandID are
// generated.
type Command struct {
	Token     string
	Queue     string
	CommandID string
	Executor  string
	Command   string
	Timeout   time.Duration
}

// Publish routes payload "@executor command" published on topic
// "queue/commandId[/timeoutSeconds]". Each publication gets a fresh
// correlation token; the reply topic is "queue/commandId".
func (g *Gateway) Publish(ctx context.Context, topic, payload string) (Route, error) {
	t, err := ParseTopic(topic)
	if err != nil {
		return Route{}, err
	}
	executor, command, err := ParsePayload(payload)
	if err != nil {
		return Route{}, err
	}
	return g.Dispatch(ctx, Command{
		Queue:     t.Queue,
		CommandID: t.CommandID,
		Executor:  executor,
		Command:   command,
		Timeout:   t.Timeout,
	})
}

// Execute submits command to executor on queue under a generated command id.
// A non-positive timeout means unbounded.
func (g *Gateway) Execute(ctx context.Context, queue, executor, command string, timeout time.Duration) (Route, error) {
	return g.Dispatch(ctx, Command{
		Queue:    queue,
		Executor: executor,
		Command:  command,
		Timeout:  timeout,
	})
}

// Dispatch validates c, records it in the journal and submits it to the
// engine. The completion is later delivered under the returned route's token.
func (g *Gateway) Dispatch(ctx context.Context, c Command) (Route, error) {
	if c.Queue == "" || strings.Contains(c.Queue, "/") {
		return Route{}, fmt.Errorf("%w: queue %q", ErrInvalidTopic, c.Queue)
	}
	if strings.Contains(c.CommandID, "/") {
		return Route{}, fmt.Errorf("%w: command id %q", ErrInvalidTopic, c.CommandID)
	}
	c.Command = strings.TrimSpace(c.Command)
	if c.Command == "" {
		return Route{}, fmt.Errorf("%w: empty command", ErrInvalidPayload)
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.CommandID == "" {
		c.CommandID = model.NewID()
	}
	if c.Token == "" {
		c.Token = model.NewID()
	}

	b, err := g.registry.Resolve(c.Executor)
	if err != nil {
		g.logger.Error("unknown executor", "queue", c.Queue, "command_id", c.CommandID, "executor", c.Executor)
		return Route{}, err
	}

	route := Route{
		Token:      c.Token,
		Queue:      c.Queue,
		CommandID:  c.CommandID,
		ReplyTopic: c.Queue + "/" + c.CommandID,
		Executor:   c.Executor,
		Command:    c.Command,
		Timeout:    c.Timeout,
	}

	if g.journal != nil {
		rec := &model.Execution{
			ID:        route.Token,
			Queue:     route.Queue,
			Topic:     route.ReplyTopic,
			Executor:  route.Executor,
			Command:   route.Command,
			TimeoutMS: route.Timeout.Milliseconds(),
			Status:    model.StatusQueued,
			CreatedAt: time.Now().UTC(),
		}
		if err := g.journal.CreateExecution(ctx, rec); err != nil {
			return Route{}, fmt.Errorf("record execution: %w", err)
		}
	}

	g.engine.Submit(route.Queue, engine.Request{
		Token:   route.Token,
		Command: route.Command,
		Timeout: route.Timeout,
		Backend: b,
	})

	g.logger.Debug("command routed",
		"token", route.Token,
		"queue", route.Queue,
		"executor", route.Executor,
		"command", route.Command,
	)
	return route, nil
}
