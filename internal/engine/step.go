package engine

import (
	"context"
	"time"
)

// Step is a unit of pipeline work with a three-phase lifecycle. The driver
// calls the phases in order: Prep, Exec (wrapped in the node's retry policy),
// Post.
//
// Prep extracts whatever the step needs from the shared context; it is never
// retried by the engine. Exec performs the work and is the only retried
// phase; implementations must tolerate being re-invoked with the same
// prepRes. ExecFallback runs exactly once after every attempt has failed; it
// may supply a degraded result or re-raise (return the error unchanged),
// which aborts the run. Post is the only sanctioned place to write results
// into the shared context; its return value is the step's externally visible
// result and the input to transition selection.
type Step interface {
	Name() string
	Prep(ctx context.Context, shared *Context) (any, error)
	Exec(ctx context.Context, prepRes any) (any, error)
	ExecFallback(ctx context.Context, prepRes any, execErr error) (any, error)
	Post(ctx context.Context, shared *Context, prepRes, execRes any) (any, error)
}

// RetryPolicy bounds Exec retries for one node. MaxAttempts is the total
// number of Exec invocations (minimum 1); Delay is the blocking pause between
// failed attempts. No delay follows a success or the final failure.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// normalize clamps the policy to at least one attempt.
func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

type paramsKey struct{}

// withParams attaches a node's fixed parameters to the step context.
func withParams(ctx context.Context, params map[string]any) context.Context {
	if len(params) == 0 {
		return ctx
	}
	return context.WithValue(ctx, paramsKey{}, params)
}

// ParamsFrom returns the parameters fixed on the executing node before the
// run, or nil. Parameters are read-only during execution.
func ParamsFrom(ctx context.Context) map[string]any {
	params, _ := ctx.Value(paramsKey{}).(map[string]any)
	return params
}
