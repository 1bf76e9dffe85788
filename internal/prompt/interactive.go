package prompt

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/vinayprograms/warden/internal/permission"
)

// decisionItems maps menu positions to outcomes.
var decisionItems = []struct {
	item    Item
	outcome permission.Outcome
}{
	{Item{"Allow once", ""}, permission.AllowOnce},
	{Item{"Allow this resource for the session", ""}, permission.AllowResource},
	{Item{"Allow this action for the session", "(any resource)"}, permission.AllowAction},
	{Item{"Deny once", ""}, permission.DenyOnce},
	{Item{"Deny this resource for the session", ""}, permission.DenyResource},
	{Item{"Deny this action for the session", "(any resource)"}, permission.DenyAction},
}

// Interactive asks the operator on a terminal. Requests are serialized: a
// pending prompt blocks every other caller until it is answered.
type Interactive struct {
	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

// NewInteractive creates a provider reading keys from in and drawing to out.
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: in, out: out}
}

// Ask implements permission.Provider. Cancelling the menu denies once.
func (p *Interactive) Ask(ctx context.Context, req permission.Request) (permission.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, err := Run(ctx, decisionMenu(req), p.in, p.out)
	if err != nil {
		return permission.DenyOnce, fmt.Errorf("permission prompt: %w", err)
	}
	if idx < 0 {
		return permission.DenyOnce, nil
	}
	return decisionItems[idx].outcome, nil
}

// decisionMenu builds the menu for req.
func decisionMenu(req permission.Request) Menu {
	items := make([]Item, len(decisionItems))
	for i, d := range decisionItems {
		items[i] = d.item
	}
	m := NewMenu("Permission required", items)
	m.Detail = []string{
		fmt.Sprintf("Action:   %s", req.Action),
		fmt.Sprintf("Resource: %s", req.Resource),
	}
	if req.Details != "" {
		m.Detail = append(m.Detail, fmt.Sprintf("Details:  %s", req.Details))
	}
	if req.Action.Risk() == permission.RiskHigh {
		m.Warning = "⚠ high-risk action"
	}
	return m
}
