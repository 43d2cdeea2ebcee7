package engine

import (
	"context"
	"errors"

	"github.com/avelez/codetour/pkg/schema"
)

// IsRetryable classifies whether an exec error is worth another attempt.
// Context cancellation means the run is shutting down and is never retried.
// Typed errors carry their own verdict; anything else defaults to retryable
// and lets the policy bound the attempts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ce *schema.CodetourError
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return true
}

// classifyExecError types the terminal failure of a step's exec phase.
// attempts is the number of Exec invocations actually made.
func classifyExecError(step string, attempts int, err error) error {
	switch {
	case !IsRetryable(err):
		return schema.NewErrorf(schema.ErrCodeNonRetryable,
			"non-retryable error: %s", err.Error()).WithStep(step).WithCause(err)
	case attempts > 1:
		return schema.NewErrorf(schema.ErrCodeRetryExhausted,
			"retries exhausted after %d attempts: %s", attempts, err.Error()).WithStep(step).WithCause(err)
	default:
		return schema.NewError(schema.ErrCodeStepFailed, err.Error()).WithStep(step).WithCause(err)
	}
}
