package executor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vinayprograms/warden/internal/agent"
	"github.com/vinayprograms/warden/internal/faults"
	"github.com/vinayprograms/warden/internal/permission"
	"github.com/vinayprograms/warden/internal/plan"
)

// PlanStore persists plan progress. *plan.Manager satisfies it.
type PlanStore interface {
	UpdateStatus(id string, status plan.Status) error
	UpdateStepStatus(id, stepID string, status plan.StepStatus) error
}

// ExecutePlan carries out p's pending steps in order, persisting every status
// change through store. The first failing step fails the plan and leaves the
// remaining steps pending. p is updated in place.
func (e *Executor) ExecutePlan(ctx context.Context, p *plan.Plan, store PlanStore) error {
	if err := store.UpdateStatus(p.ID, plan.StatusExecuting); err != nil {
		return err
	}
	p.Status = plan.StatusExecuting

	startTime := time.Now()
	e.logger.ExecutionStart(p.ID)
	ctx, span := e.startPlanSpan(ctx, p)

	fail := func(step *plan.Step, err error) error {
		if step != nil {
			if serr := store.UpdateStepStatus(p.ID, step.ID, plan.StepFailed); serr != nil {
				e.logger.Error("failed to record step status", map[string]interface{}{
					"plan":  p.ID,
					"step":  step.ID,
					"error": serr.Error(),
				})
			} else {
				step.Status = plan.StepFailed
			}
		}
		if serr := store.UpdateStatus(p.ID, plan.StatusFailed); serr != nil {
			e.logger.Error("failed to record plan status", map[string]interface{}{
				"plan":  p.ID,
				"error": serr.Error(),
			})
		} else {
			p.Status = plan.StatusFailed
		}
		e.logger.ExecutionComplete(p.ID, time.Since(startTime), string(plan.StatusFailed))
		e.endPlanSpan(span, plan.StatusFailed, err)
		return err
	}

	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Status.IsTerminal() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fail(nil, err)
		}
		if e.OnStepStart != nil {
			e.OnStepStart(step.Name)
		}

		result, err := e.runPlanStep(ctx, step)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fail(nil, ctxErr)
			}
			e.recordFailure(string(step.Action), step.Target, step.Name, err)
			if e.OnStepError != nil {
				e.OnStepError(step.Name, err)
			}
			return fail(step, faults.Wrap(faults.KindWorkflowStepFailure, err, "plan %s step %s (%s)", p.ID, step.ID, step.Name))
		}

		if err := store.UpdateStepStatus(p.ID, step.ID, plan.StepCompleted); err != nil {
			return fail(nil, err)
		}
		step.Status = plan.StepCompleted
		if e.OnStepComplete != nil {
			e.OnStepComplete(step.Name, result)
		}
	}

	if err := store.UpdateStatus(p.ID, plan.StatusCompleted); err != nil {
		return fail(nil, err)
	}
	p.Status = plan.StatusCompleted
	e.logger.ExecutionComplete(p.ID, time.Since(startTime), string(plan.StatusCompleted))
	e.endPlanSpan(span, plan.StatusCompleted, nil)
	return nil
}

// runPlanStep authorizes the step's own action on its target, then performs it
// with the matching tool. Writes and modifications take their content from the agent.
func (e *Executor) runPlanStep(ctx context.Context, step *plan.Step) (interface{}, error) {
	if e.tools == nil {
		return nil, fmt.Errorf("no tool registry")
	}
	if err := e.authorize(ctx, step.Action, step.Target, step.Purpose); err != nil {
		return nil, err
	}

	var (
		toolName string
		args     map[string]interface{}
	)
	switch step.Action {
	case permission.ActionRead:
		toolName, args = "read_file", map[string]interface{}{"path": step.Target}
	case permission.ActionDelete:
		toolName, args = "delete_file", map[string]interface{}{"path": step.Target}
	case permission.ActionExecute:
		toolName, args = "bash", map[string]interface{}{"command": step.Target}
	case permission.ActionNetwork:
		toolName, args = "http_get", map[string]interface{}{"url": step.Target}
	case permission.ActionWrite, permission.ActionModify:
		content, err := e.draftContent(ctx, step)
		if err != nil {
			return nil, err
		}
		toolName, args = "write_file", map[string]interface{}{"path": step.Target, "content": content}
	default:
		return nil, fmt.Errorf("step %s: unsupported action %q", step.ID, step.Action)
	}

	tool, ok := e.tools.Get(toolName)
	if !ok {
		return nil, fmt.Errorf("step %s: tool %q is not registered", step.ID, toolName)
	}
	return e.call(ctx, tool, args)
}

// draftContent asks the agent for the complete new content of the step's target.
func (e *Executor) draftContent(ctx context.Context, step *plan.Step) (string, error) {
	if e.agent == nil {
		return "", fmt.Errorf("step %s: %s needs an agent to draft content", step.ID, step.Action)
	}
	path, err := e.tools.ResolvePath(step.Target)
	if err != nil {
		return "", err
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write the complete new content of the file %s.\n", step.Target)
	fmt.Fprintf(&prompt, "Purpose: %s\n", step.Purpose)
	if current, err := os.ReadFile(path); err == nil {
		fmt.Fprintf(&prompt, "\nCurrent content:\n```\n%s\n```\n", current)
	}
	prompt.WriteString("\nReply with the file content only, without commentary.")

	text, err := agent.Ask(ctx, e.agent, prompt.String(), nil, e.OnAgentEvent)
	if err != nil {
		return "", err
	}
	return stripFence(text), nil
}

// stripFence removes a single surrounding Markdown code fence.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return s
	}
	body := strings.TrimSuffix(trimmed, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		return s
	}
	return strings.TrimSuffix(body, "\n") + "\n"
}

var _ PlanStore = (*plan.Manager)(nil)
