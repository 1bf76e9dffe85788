package permission

import (
	"context"
	"fmt"
	"sync"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/warden/internal/audit"
)

// Auditor receives one entry per resolved request.
type Auditor interface {
	Append(entry audit.Entry) error
}

type cacheKey struct {
	action   Action
	resource string
}

// Engine resolves permission requests for one session. Its caches live as
// long as the Engine and are never shared.
type Engine struct {
	provider Provider
	auditor  Auditor
	rules    []*Rule
	logger   *logging.Logger

	mu        sync.Mutex
	resources map[cacheKey]bool
	actions   map[Action]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules installs rules consulted before the caches.
func WithRules(rules []*Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// NewEngine creates an engine. A nil provider denies; a nil auditor discards entries.
func NewEngine(provider Provider, auditor Auditor, opts ...Option) *Engine {
	if provider == nil {
		provider = AlwaysDeny{}
	}
	e := &Engine{
		provider:  provider,
		auditor:   auditor,
		logger:    logging.New().WithComponent("permission"),
		resources: make(map[cacheKey]bool),
		actions:   make(map[Action]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide resolves req under tier. A denial is a Decision, not an error; an
// error means the provider failed or ctx ended while waiting for an answer.
func (e *Engine) Decide(ctx context.Context, req Request, tier Tier) (Decision, error) {
	switch Static(tier, req.Action.Risk()) {
	case VerdictAllow:
		return e.resolve(req, tier, Decision{Allowed: true}, audit.SourcePolicy), nil
	case VerdictDeny:
		return e.resolve(req, tier, Decision{Allowed: false}, audit.SourcePolicy), nil
	}

	if allowed, ok := e.matchRules(req); ok {
		return e.resolve(req, tier, Decision{Allowed: allowed}, audit.SourcePolicy), nil
	}

	if allowed, source, ok := e.lookup(req); ok {
		return e.resolve(req, tier, Decision{Allowed: allowed, Remember: true}, source), nil
	}

	outcome, err := e.provider.Ask(ctx, req)
	if err != nil {
		return Decision{}, fmt.Errorf("asking for %s: %w", req, err)
	}
	e.remember(req, outcome)
	return e.resolve(req, tier, outcome.Decision(), audit.SourcePrompt), nil
}

// matchRules returns the effect of the first matching rule.
func (e *Engine) matchRules(req Request) (allowed, ok bool) {
	for _, r := range e.rules {
		matched, err := r.Match(req)
		if err != nil {
			e.logger.Warn("permission rule failed", map[string]interface{}{
				"expr":  r.Expr(),
				"error": err.Error(),
			})
			continue
		}
		if matched {
			return r.Allow(), true
		}
	}
	return false, false
}

// lookup consults the per-resource cache, then the per-action cache.
func (e *Engine) lookup(req Request) (bool, audit.Source, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.resources[cacheKey{req.Action, req.Resource}]; ok {
		return v, audit.SourceCached, true
	}
	if v, ok := e.actions[req.Action]; ok {
		return v, audit.SourceAlways, true
	}
	return false, "", false
}

// remember stores a "forever" outcome. The latest answer for a key replaces any earlier one.
func (e *Engine) remember(req Request, o Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch o {
	case AllowResource, DenyResource:
		e.resources[cacheKey{req.Action, req.Resource}] = o.Allowed()
	case AllowAction, DenyAction:
		e.actions[req.Action] = o.Allowed()
	}
}

// Remembered reports the cached decision for (action, resource), if any.
func (e *Engine) Remembered(action Action, resource string) (allowed, ok bool) {
	v, _, ok := e.lookup(Request{Action: action, Resource: resource})
	return v, ok
}

func (e *Engine) resolve(req Request, tier Tier, d Decision, source audit.Source) Decision {
	if e.auditor != nil {
		_ = e.auditor.Append(audit.Entry{
			Action:   string(req.Action),
			Resource: req.Resource,
			Details:  req.Details,
			Allowed:  d.Allowed,
			Remember: d.Remember,
			Tier:     string(tier),
			Source:   source,
		})
	}
	e.logger.Debug("permission resolved", map[string]interface{}{
		"action":   string(req.Action),
		"resource": req.Resource,
		"allowed":  d.Allowed,
		"source":   string(source),
	})
	return d
}
