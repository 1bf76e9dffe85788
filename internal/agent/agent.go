// Package agent defines the streaming contract with the language-model collaborator.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// EventType classifies a stream event.
type EventType string

const (
	EventTextDelta EventType = "text-delta"
	EventToolStart EventType = "tool-invocation-start"
	EventFinal     EventType = "final-result"
	EventError     EventType = "error"
)

// Event is one element of a query stream.
type Event struct {
	Type EventType
	Text string // delta or final text
	Tool string // tool name for EventToolStart
	Err  error  // set for EventError
}

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

// Agent answers prompts with a stream that stays open until a final-result
// or error event. The channel is closed after the last event.
type Agent interface {
	Query(ctx context.Context, prompt string, history []Message) (<-chan Event, error)
}

// Func adapts a function to Agent.
type Func func(ctx context.Context, prompt string, history []Message) (<-chan Event, error)

// Query implements Agent.
func (f Func) Query(ctx context.Context, prompt string, history []Message) (<-chan Event, error) {
	return f(ctx, prompt, history)
}

// ErrNoFinal is returned when a stream closes without a final-result event.
var ErrNoFinal = errors.New("agent stream ended without a final result")

// Collect drains stream and returns the final text. onEvent, if set, sees
// every event as it arrives. A final event with empty text yields the
// concatenated deltas.
func Collect(ctx context.Context, stream <-chan Event, onEvent func(Event)) (string, error) {
	var deltas strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				return "", ErrNoFinal
			}
			if onEvent != nil {
				onEvent(ev)
			}
			switch ev.Type {
			case EventTextDelta:
				deltas.WriteString(ev.Text)
			case EventError:
				if ev.Err == nil {
					return "", fmt.Errorf("agent error: %s", ev.Text)
				}
				return "", ev.Err
			case EventFinal:
				if ev.Text == "" {
					return deltas.String(), nil
				}
				return ev.Text, nil
			}
		}
	}
}

// Ask sends prompt and collects the final text.
func Ask(ctx context.Context, a Agent, prompt string, history []Message, onEvent func(Event)) (string, error) {
	stream, err := a.Query(ctx, prompt, history)
	if err != nil {
		return "", err
	}
	return Collect(ctx, stream, onEvent)
}
