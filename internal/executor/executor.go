// Package executor runs declared steps in order, resolving templates, fanning
// out over glob matches, retrying failures and consulting the permission
// engine before any sensitive effect.
package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/warden/internal/agent"
	"github.com/vinayprograms/warden/internal/audit"
	"github.com/vinayprograms/warden/internal/faults"
	"github.com/vinayprograms/warden/internal/permission"
	"github.com/vinayprograms/warden/internal/tools"
	"github.com/vinayprograms/warden/internal/workflow"
)

// Vars is the variable context of one run. Step outputs are bound into it by name.
type Vars map[string]interface{}

// with returns a copy of v with name bound to value.
func (v Vars) with(name string, value interface{}) Vars {
	out := make(Vars, len(v)+1)
	for k, val := range v {
		out[k] = val
	}
	out[name] = value
	return out
}

// Decider is the part of the permission engine the executor needs.
type Decider interface {
	Decide(ctx context.Context, req permission.Request, tier permission.Tier) (permission.Decision, error)
}

// Status represents the execution status.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Result represents the outcome of a workflow run.
type Result struct {
	Status  Status `json:"status"`
	Outputs Vars   `json:"outputs"`
	Error   string `json:"error,omitempty"`
}

// Config holds executor defaults.
type Config struct {
	Tier        permission.Tier
	BackoffBase time.Duration // retry delay base when a step sets none
	BackoffCap  time.Duration // exponential cap when a step sets none

	// Auditor receives an entry for every failed step. Optional.
	Auditor permission.Auditor
}

// Executor runs steps for one session.
type Executor struct {
	tools  *tools.Registry
	engine Decider
	agent  agent.Agent
	tier   permission.Tier
	base   time.Duration
	cap    time.Duration
	audit  permission.Auditor
	logger *logging.Logger

	// sleep waits between attempts; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error

	// Callbacks
	OnStepStart    func(name string)
	OnStepComplete func(name string, result interface{})
	OnStepError    func(name string, err error)
	OnRetry        func(name string, attempt int, delay time.Duration, err error)
	OnDenied       func(req permission.Request)
	OnAgentEvent   func(ev agent.Event)
}

// New creates an executor. registry and a may be nil when no step needs them.
func New(registry *tools.Registry, engine Decider, a agent.Agent, cfg Config) *Executor {
	if cfg.Tier == "" {
		cfg.Tier = permission.TierBalanced
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	return &Executor{
		tools:  registry,
		engine: engine,
		agent:  a,
		tier:   cfg.Tier,
		base:   cfg.BackoffBase,
		cap:    cfg.BackoffCap,
		audit:  cfg.Auditor,
		logger: logging.New().WithComponent("executor"),
		sleep:  sleepContext,
	}
}

// Tier returns the escalation tier the executor asks the engine under.
func (e *Executor) Tier() permission.Tier {
	return e.tier
}

// RunWorkflow binds inputs over the workflow's declared defaults and runs its steps.
func (e *Executor) RunWorkflow(ctx context.Context, wf *workflow.Workflow, inputs map[string]string) (*Result, error) {
	startTime := time.Now()
	name := wf.Name
	if name == "" {
		name = "unnamed"
	}
	e.logger.ExecutionStart(name)
	ctx, span := e.startWorkflowSpan(ctx, name)

	vars := make(Vars, len(wf.Inputs)+len(inputs))
	for k, v := range wf.Inputs {
		vars[k] = v
	}
	for k, v := range inputs {
		vars[k] = v
	}

	result := &Result{Status: StatusRunning, Outputs: vars}
	if err := e.Run(ctx, wf.Steps, vars); err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		e.logger.ExecutionComplete(name, time.Since(startTime), string(StatusFailed))
		e.endWorkflowSpan(span, string(StatusFailed), err)
		return result, err
	}
	result.Status = StatusComplete
	e.logger.ExecutionComplete(name, time.Since(startTime), string(StatusComplete))
	e.endWorkflowSpan(span, string(StatusComplete), nil)
	return result, nil
}

// Run executes steps in declared order, binding each output into vars before
// the next step starts. A nil vars starts from an empty context.
// Cancellation aborts immediately.
func (e *Executor) Run(ctx context.Context, steps []workflow.Step, vars Vars) error {
	if vars == nil {
		vars = make(Vars)
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.OnStepStart != nil {
			e.OnStepStart(step.Name)
		}

		stepCtx, span := e.startStepSpan(ctx, step)
		result, err := e.Execute(stepCtx, step, vars)
		e.endStepSpan(span, err)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			switch step.ErrorPolicy() {
			case workflow.OnErrorContinue:
				e.auditStepFailure(step, vars, err)
				if e.OnStepError != nil {
					e.OnStepError(step.Name, err)
				}
				e.logger.Warn("step failed, continuing", map[string]interface{}{
					"step":  step.Name,
					"kind":  string(faults.KindOf(err)),
					"error": err.Error(),
				})
				e.bind(vars, step.Output, nil)
			case workflow.OnErrorSkip:
				e.logger.Debug("step skipped", map[string]interface{}{"step": step.Name})
			default:
				e.auditStepFailure(step, vars, err)
				if e.OnStepError != nil {
					e.OnStepError(step.Name, err)
				}
				return faults.Wrap(faults.KindWorkflowStepFailure, err, "step %q", step.Name)
			}
			continue
		}

		e.bind(vars, step.Output, result)
		if e.OnStepComplete != nil {
			e.OnStepComplete(step.Name, result)
		}
	}
	return nil
}

func (e *Executor) bind(vars Vars, name string, value interface{}) {
	if name != "" {
		vars[name] = value
	}
}

// Execute runs one step, including its fan-out and retries, and returns its result.
func (e *Executor) Execute(ctx context.Context, step workflow.Step, vars Vars) (interface{}, error) {
	if step.ForEach != "" {
		return e.fanOut(ctx, step, vars)
	}
	return e.withRetry(ctx, step, func(ctx context.Context) (interface{}, error) {
		return e.invoke(ctx, step, vars)
	})
}

// fanOut runs the step once per glob match, concurrently. Each expansion sees
// its match, relative to the workspace, as {{item}}. Results keep match order.
func (e *Executor) fanOut(ctx context.Context, step workflow.Step, vars Vars) (interface{}, error) {
	if e.tools == nil {
		return nil, fmt.Errorf("step %q: fan-out needs a tool registry", step.Name)
	}
	matches, err := e.tools.Glob(Resolve(step.ForEach, vars))
	if err != nil {
		return nil, err
	}

	body := step
	body.ForEach = ""
	results := make([]interface{}, len(matches))

	g, gctx := errgroup.WithContext(ctx)
	for i, match := range matches {
		item, err := filepath.Rel(e.tools.Workspace(), match)
		if err != nil {
			item = match
		}
		scope := vars.with("item", item)
		g.Go(func() error {
			r, err := e.Execute(gctx, body, scope)
			if err != nil {
				return fmt.Errorf("%s: %w", item, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("fan-out complete", map[string]interface{}{
		"step":    step.Name,
		"matches": len(matches),
	})
	return results, nil
}

// invoke performs one attempt of a step.
func (e *Executor) invoke(ctx context.Context, step workflow.Step, vars Vars) (interface{}, error) {
	if step.IsPrompt() {
		if e.agent == nil {
			return nil, fmt.Errorf("step %q: no agent configured", step.Name)
		}
		return agent.Ask(ctx, e.agent, Resolve(step.Prompt, vars), nil, e.OnAgentEvent)
	}

	if e.tools == nil {
		return nil, fmt.Errorf("step %q: no tool registry", step.Name)
	}
	tool, ok := e.tools.Get(step.Tool)
	if !ok {
		return nil, fmt.Errorf("step %q: unknown tool %q", step.Name, step.Tool)
	}
	args := ResolveArgs(step.Args, vars)
	resource, err := tool.Resource(args)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, tool.Action(), resource, step.Name); err != nil {
		return nil, err
	}
	return e.call(ctx, tool, args)
}

func (e *Executor) call(ctx context.Context, tool tools.Tool, args map[string]interface{}) (interface{}, error) {
	start := time.Now()
	result, err := tool.Call(ctx, args)
	e.logger.ToolResult(tool.Name(), time.Since(start), err)
	return result, err
}

// authorize obtains a decision for sensitive actions. A deny becomes a
// PermissionDenied failure.
func (e *Executor) authorize(ctx context.Context, action permission.Action, resource, details string) error {
	if !action.Sensitive() {
		return nil
	}
	req := permission.Request{Action: action, Resource: resource, Details: details}
	if e.engine == nil {
		return faults.New(faults.KindPermissionDenied, "%s: no policy engine", req)
	}
	d, err := e.engine.Decide(ctx, req, e.tier)
	if err != nil {
		return err
	}
	if !d.Allowed {
		if e.OnDenied != nil {
			e.OnDenied(req)
		}
		return faults.New(faults.KindPermissionDenied, "%s denied", req)
	}
	return nil
}

// auditStepFailure records a failed workflow step. Action and resource are
// filled in when the step's tool can still resolve them.
func (e *Executor) auditStepFailure(step workflow.Step, vars Vars, err error) {
	action, resource := "prompt", ""
	if !step.IsPrompt() {
		action = step.Tool
		if e.tools != nil {
			if tool, ok := e.tools.Get(step.Tool); ok {
				action = string(tool.Action())
				if r, rerr := tool.Resource(ResolveArgs(step.Args, vars)); rerr == nil {
					resource = r
				}
			}
		}
	}
	e.recordFailure(action, resource, step.Name, err)
}

// recordFailure appends a failure entry. Denials are skipped: the engine has
// already recorded the decision.
func (e *Executor) recordFailure(action, resource, details string, err error) {
	if e.audit == nil || faults.IsKind(err, faults.KindPermissionDenied) {
		return
	}
	e.audit.Append(audit.Entry{
		Action:   action,
		Resource: resource,
		Details:  details,
		Allowed:  false,
		Tier:     string(e.tier),
		Source:   audit.SourceFailure,
		Error:    err.Error(),
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
