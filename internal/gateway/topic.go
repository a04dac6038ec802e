package gateway

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidTopic is returned for topics not of the form
	// "queue/commandId[/timeoutSeconds]".
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrInvalidPayload is returned for payloads not of the form
	// "@executor command".
	ErrInvalidPayload = errors.New("invalid payload")
)

// Topic is a parsed routing topic.
type Topic struct {
	Queue     string
	CommandID string
	Timeout   time.Duration // zero when the topic carries no timeout level
}

// Reply returns the topic on which the command's result is reported.
func (t Topic) Reply() string {
	return t.Queue + "/" + t.CommandID
}

// String renders the topic in its wire form.
func (t Topic) String() string {
	if t.Timeout > 0 {
		return fmt.Sprintf("%s/%s/%d", t.Queue, t.CommandID, int64(t.Timeout/time.Second))
	}
	return t.Reply()
}

// ParseTopic parses "queue/commandId" or "queue/commandId/timeoutSeconds".
// The optional third level must be a positive integer number of seconds.
func ParseTopic(topic string) (Topic, error) {
	levels := strings.Split(topic, "/")
	if len(levels) < 2 || len(levels) > 3 {
		return Topic{}, fmt.Errorf("%w: %q: want 2 or 3 levels", ErrInvalidTopic, topic)
	}
	for _, l := range levels {
		if l == "" {
			return Topic{}, fmt.Errorf("%w: %q: empty level", ErrInvalidTopic, topic)
		}
	}

	t := Topic{Queue: levels[0], CommandID: levels[1]}
	if len(levels) == 3 {
		secs, err := strconv.Atoi(levels[2])
		if err != nil || secs <= 0 {
			return Topic{}, fmt.Errorf("%w: %q: timeout must be a positive number of seconds", ErrInvalidTopic, topic)
		}
		t.Timeout = time.Duration(secs) * time.Second
	}
	return t, nil
}

// ParsePayload splits "@executor command" into the executor id and the
// command line handed to that executor.
func ParsePayload(payload string) (executor, command string, err error) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, "@") {
		return "", "", fmt.Errorf("%w: missing @executor prefix", ErrInvalidPayload)
	}

	executor, command, ok := strings.Cut(payload[1:], " ")
	executor = strings.TrimSpace(executor)
	command = strings.TrimSpace(command)
	if !ok || executor == "" || command == "" {
		return "", "", fmt.Errorf("%w: want \"@executor command\"", ErrInvalidPayload)
	}
	return executor, command, nil
}
