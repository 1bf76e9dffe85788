package permission

import (
	"context"
	"sync"
)

// Provider answers requests that static policy and remembered decisions
// cannot settle. Implementations may block indefinitely.
type Provider interface {
	Ask(ctx context.Context, req Request) (Outcome, error)
}

// AlwaysDeny refuses every request once. It is the headless default.
type AlwaysDeny struct{}

// Ask implements Provider.
func (AlwaysDeny) Ask(context.Context, Request) (Outcome, error) {
	return DenyOnce, nil
}

// Scripted replays predetermined outcomes in order and denies once it runs out.
type Scripted struct {
	mu       sync.Mutex
	outcomes []Outcome
	asked    []Request
}

// NewScripted returns a provider that answers with outcomes in sequence.
func NewScripted(outcomes ...Outcome) *Scripted {
	return &Scripted{outcomes: outcomes}
}

// Ask implements Provider.
func (s *Scripted) Ask(ctx context.Context, req Request) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return DenyOnce, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, req)
	if len(s.outcomes) == 0 {
		return DenyOnce, nil
	}
	o := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return o, nil
}

// Asked returns the requests the provider has seen.
func (s *Scripted) Asked() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.asked))
	copy(out, s.asked)
	return out
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Outcome, error)

// Ask implements Provider.
func (f ProviderFunc) Ask(ctx context.Context, req Request) (Outcome, error) {
	return f(ctx, req)
}
