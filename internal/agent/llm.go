package agent

import (
	"context"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
)

// LLM is an Agent backed by a chat-completion provider. Tool calls the model
// requests are announced as tool-invocation-start events; executing them is
// the caller's business.
type LLM struct {
	provider llm.Provider
	system   string
	logger   *logging.Logger
}

// NewLLM wraps provider. system, if non-empty, is sent as the first message.
func NewLLM(provider llm.Provider, system string) *LLM {
	return &LLM{
		provider: provider,
		system:   system,
		logger:   logging.New().WithComponent("agent"),
	}
}

// Query implements Agent.
func (a *LLM) Query(ctx context.Context, prompt string, history []Message) (<-chan Event, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	if a.system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: a.system})
	}
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: prompt})

	out := make(chan Event, 8)
	go func() {
		defer close(out)
		start := time.Now()
		resp, err := a.provider.Chat(ctx, llm.ChatRequest{Messages: messages})
		if err != nil {
			a.logger.Warn("chat failed", map[string]interface{}{"error": err.Error()})
			send(ctx, out, Event{Type: EventError, Err: err})
			return
		}
		a.logger.Debug("chat complete", map[string]interface{}{
			"duration_ms": time.Since(start).Milliseconds(),
			"tool_calls":  len(resp.ToolCalls),
		})
		for _, tc := range resp.ToolCalls {
			if !send(ctx, out, Event{Type: EventToolStart, Tool: tc.Name}) {
				return
			}
		}
		if resp.Content != "" {
			if !send(ctx, out, Event{Type: EventTextDelta, Text: resp.Content}) {
				return
			}
		}
		send(ctx, out, Event{Type: EventFinal, Text: resp.Content})
	}()
	return out, nil
}

// send delivers ev unless ctx ends first.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
