// Package main provides the runtime shared by the executing commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/warden/internal/agent"
	"github.com/vinayprograms/warden/internal/audit"
	"github.com/vinayprograms/warden/internal/config"
	"github.com/vinayprograms/warden/internal/executor"
	"github.com/vinayprograms/warden/internal/permission"
	"github.com/vinayprograms/warden/internal/plan"
	"github.com/vinayprograms/warden/internal/prompt"
	"github.com/vinayprograms/warden/internal/tools"
)

const systemPrompt = `You are an operations assistant working inside a single workspace directory.
Propose and perform only what the user asked for. Every side effect is checked
against the operator's permission policy before it happens.`

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig(g *Globals) (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.Tier != "" {
		cfg.Permission.Tier = g.Tier
	}
	if g.Workspace != "" {
		cfg.Agent.Workspace = g.Workspace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runtime holds the components of one session.
type runtime struct {
	cfg       *config.Config
	creds     *credentials.Credentials
	workspace string

	// Components
	provider permission.Provider
	agent    agent.Agent
	auditLog *audit.Log
	engine   *permission.Engine
	registry *tools.Registry
	telem    telemetry.Exporter
	exec     *executor.Executor
	plans    *plan.Manager

	// Cleanup
	closers []func()
}

// newRuntime creates a runtime from loaded configuration.
func newRuntime(cfg *config.Config, creds *credentials.Credentials) *runtime {
	return &runtime{
		cfg:   cfg,
		creds: creds,
		plans: plan.NewManager(cfg.PlansDir()),
	}
}

// setup builds every component. Cleanup must be called afterwards.
func (rt *runtime) setup() error {
	ws, err := rt.cfg.WorkspacePath()
	if err != nil {
		return err
	}
	if info, err := os.Stat(ws); err != nil || !info.IsDir() {
		return fmt.Errorf("workspace %s is not a directory", ws)
	}
	rt.workspace = ws

	if err := rt.createAgent(); err != nil {
		return err
	}
	if err := rt.setupTelemetry(); err != nil {
		return err
	}
	if err := rt.createEngine(); err != nil {
		return err
	}
	rt.registry = tools.NewRegistry(rt.workspace, tools.Options{
		CommandTimeout: config.Duration(rt.cfg.Executor.CommandTimeout, tools.DefaultCommandTimeout),
	})
	rt.createExecutor()
	rt.setupCallbacks()
	return nil
}

// createAgent builds the LLM-backed agent. Without a model the agent stays nil
// and only tool steps can run.
func (rt *runtime) createAgent() error {
	if rt.cfg.LLM.Model == "" {
		return nil
	}
	llmProvider := rt.cfg.LLM.Provider
	if llmProvider == "" {
		llmProvider = llm.InferProviderFromModel(rt.cfg.LLM.Model)
	}

	var apiKey string
	if rt.creds != nil {
		apiKey = rt.creds.GetAPIKey(llmProvider)
	}
	if apiKey == "" {
		apiKey = rt.cfg.GetAPIKey()
	}

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider:    llmProvider,
		Model:       rt.cfg.LLM.Model,
		APIKey:      apiKey,
		MaxTokens:   rt.cfg.LLM.MaxTokens,
		BaseURL:     rt.cfg.LLM.BaseURL,
		Thinking:    llm.ThinkingConfig{Level: llm.ThinkingLevel(rt.cfg.LLM.Thinking)},
		RetryConfig: parseRetryConfig(rt.cfg.LLM.MaxRetries, rt.cfg.LLM.RetryBackoff),
	})
	if err != nil {
		return fmt.Errorf("error creating LLM provider: %w", err)
	}
	rt.agent = agent.NewLLM(provider, systemPrompt)
	return nil
}

// requireAgent fails commands that cannot work without a model.
func (rt *runtime) requireAgent() error {
	if rt.agent == nil {
		return fmt.Errorf("LLM model not configured (run 'warden setup' or set [llm] model)")
	}
	return nil
}

func (rt *runtime) setupTelemetry() error {
	if !rt.cfg.Telemetry.Enabled {
		rt.telem = telemetry.NewNoopExporter()
		return nil
	}
	telem, err := telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("error creating telemetry exporter: %w", err)
	}
	rt.telem = telem
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

// createEngine wires the decision provider, audit log and rules into a
// per-session policy engine.
func (rt *runtime) createEngine() error {
	rules, err := permission.CompileRules(rt.cfg.Permission.Rules)
	if err != nil {
		return err
	}
	rt.provider = decisionProvider(rt.cfg.Permission.Interactive, isTerminal(os.Stdin) && isTerminal(os.Stderr))
	rt.auditLog = audit.New(rt.cfg.AuditLogPath())
	rt.engine = permission.NewEngine(rt.provider, rt.auditLog, permission.WithRules(rules))
	return nil
}

// decisionProvider picks the interactive prompt when a user can answer it.
func decisionProvider(mode string, tty bool) permission.Provider {
	switch mode {
	case "always":
		return prompt.NewInteractive(os.Stdin, os.Stderr)
	case "never":
		return permission.AlwaysDeny{}
	}
	if tty {
		return prompt.NewInteractive(os.Stdin, os.Stderr)
	}
	return permission.AlwaysDeny{}
}

func (rt *runtime) createExecutor() {
	rt.exec = executor.New(rt.registry, rt.engine, rt.agent, executor.Config{
		Tier:        rt.cfg.Tier(),
		BackoffBase: config.Duration(rt.cfg.Executor.BackoffBase, time.Second),
		BackoffCap:  config.Duration(rt.cfg.Executor.BackoffCap, 30*time.Second),
		Auditor:     rt.auditLog,
	})
}

func (rt *runtime) setupCallbacks() {
	rt.exec.OnStepStart = func(name string) {
		fmt.Fprintf(os.Stderr, "▶ Starting step: %s\n", name)
		rt.telem.LogEvent("step_started", map[string]interface{}{"step": name})
	}
	rt.exec.OnStepComplete = func(name string, result interface{}) {
		fmt.Fprintf(os.Stderr, "✓ Completed step: %s\n", name)
		rt.telem.LogEvent("step_complete", map[string]interface{}{"step": name})
	}
	rt.exec.OnStepError = func(name string, err error) {
		fmt.Fprintf(os.Stderr, "✗ Step failed [%s]: %v\n", name, err)
		rt.telem.LogEvent("step_error", map[string]interface{}{"step": name, "error": err.Error()})
	}
	rt.exec.OnRetry = func(name string, attempt int, delay time.Duration, err error) {
		fmt.Fprintf(os.Stderr, "  ↻ Retrying %s (attempt %d) in %s: %v\n", name, attempt, delay, err)
		rt.telem.LogEvent("step_retry", map[string]interface{}{
			"step":    name,
			"attempt": attempt,
			"delay":   delay.String(),
		})
	}
	rt.exec.OnDenied = func(req permission.Request) {
		fmt.Fprintf(os.Stderr, "  ⊘ Denied: %s\n", req)
		rt.telem.LogEvent("permission_denied", map[string]interface{}{
			"action":   string(req.Action),
			"resource": req.Resource,
		})
	}
	rt.exec.OnAgentEvent = func(ev agent.Event) {
		switch ev.Type {
		case agent.EventToolStart:
			fmt.Fprintf(os.Stderr, "  → Tool: %s\n", ev.Tool)
			rt.telem.LogEvent("tool_call", map[string]interface{}{"tool": ev.Tool})
		case agent.EventError:
			fmt.Fprintf(os.Stderr, "  ✗ LLM error: %v\n", ev.Err)
			rt.telem.LogEvent("llm_error", map[string]interface{}{"error": fmt.Sprint(ev.Err)})
		}
	}
}

// signalContext is cancelled on interrupt or termination.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// cleanup runs all registered cleanup functions in reverse order.
func (rt *runtime) cleanup() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// addCloser registers a cleanup function.
func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// start loads configuration and builds a ready runtime.
func start(g *Globals) (*runtime, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	rt := newRuntime(cfg, globalCreds)
	if err := rt.setup(); err != nil {
		rt.cleanup()
		return nil, err
	}
	return rt, nil
}
