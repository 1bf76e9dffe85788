// Tracing instrumentation for the executor.
package executor

import (
	"context"
	"unicode/utf8"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/warden/internal/plan"
	"github.com/vinayprograms/warden/internal/workflow"
)

// startWorkflowSpan starts a span for the workflow execution.
func (e *Executor) startWorkflowSpan(ctx context.Context, workflowName string) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "workflow.run")
	span.SetAttributes(
		attribute.String("workflow.name", workflowName),
		attribute.String("permission.tier", string(e.tier)),
	)
	return ctx, span
}

// endWorkflowSpan ends the workflow span with result info.
func (e *Executor) endWorkflowSpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("workflow.status", status))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startStepSpan starts a span for one step.
func (e *Executor) startStepSpan(ctx context.Context, step workflow.Step) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "step."+step.Name)
	kind := "tool"
	if step.IsPrompt() {
		kind = "prompt"
	}
	span.SetAttributes(
		attribute.String("step.name", step.Name),
		attribute.String("step.kind", kind),
		attribute.String("step.tool", step.Tool),
		attribute.Int("step.max_attempts", step.Retry.Attempts()),
	)
	if step.ForEach != "" {
		span.SetAttributes(attribute.String("step.for_each", step.ForEach))
	}
	return ctx, span
}

// endStepSpan ends the step span.
func (e *Executor) endStepSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startPlanSpan starts a span for a plan execution.
func (e *Executor) startPlanSpan(ctx context.Context, p *plan.Plan) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "plan.exec")
	span.SetAttributes(
		attribute.String("plan.id", p.ID),
		attribute.Int("plan.steps", len(p.Steps)),
	)
	if tracer.Debug() {
		span.SetAttributes(attribute.String("plan.query", truncateForLog(p.Query, 2000)))
	}
	return ctx, span
}

// endPlanSpan ends the plan span with its final status.
func (e *Executor) endPlanSpan(span trace.Span, status plan.Status, err error) {
	span.SetAttributes(attribute.String("plan.status", string(status)))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// truncateForLog truncates a string for logging purposes.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
