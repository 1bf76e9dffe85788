package executor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/vinayprograms/warden/internal/faults"
	"github.com/vinayprograms/warden/internal/workflow"
)

// withRetry calls fn until it succeeds, the attempts run out, or a failure
// falls outside the step's retry_on list.
func (e *Executor) withRetry(ctx context.Context, step workflow.Step, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	policy := step.Retry
	attempts := policy.Attempts()
	schedule := e.schedule(policy)

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		kind := faults.KindOf(err)
		if attempt >= attempts || !policy.Retries(kind) {
			return nil, err
		}

		delay := schedule.NextBackOff()
		e.logger.Warn("step attempt failed, retrying", map[string]interface{}{
			"step":    step.Name,
			"attempt": attempt,
			"kind":    string(kind),
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		if e.OnRetry != nil {
			e.OnRetry(step.Name, attempt, delay, err)
		}
		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// schedule builds the delay sequence for a policy. Exponential delays are
// min(base*2^(n-1), cap); linear delays are n*base, capped only when the step sets a cap.
func (e *Executor) schedule(p workflow.RetryPolicy) backoff.BackOff {
	base := time.Duration(p.Base)
	if base <= 0 {
		base = e.base
	}
	limit := time.Duration(p.Cap)

	if p.Backoff == workflow.BackoffLinear {
		b := &linearBackOff{base: base, cap: limit}
		b.Reset()
		return b
	}

	if limit <= 0 {
		limit = e.cap
	}
	if base > limit {
		base = limit
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         limit,
	}
	b.Reset()
	return b
}

// linearBackOff waits n*base before the n-th retry.
type linearBackOff struct {
	base time.Duration
	cap  time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	d := time.Duration(b.n) * b.base
	if b.cap > 0 && d > b.cap {
		d = b.cap
	}
	return d
}

func (b *linearBackOff) Reset() {
	b.n = 0
}
