package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelez/codetour/pkg/schema"
)

func TestIsRetryable_Nil(t *testing.T) {
	assert.False(t, IsRetryable(nil))
}

func TestIsRetryable_ContextCanceled(t *testing.T) {
	assert.False(t, IsRetryable(context.Canceled))
}

func TestIsRetryable_TypedError_UsesCode(t *testing.T) {
	assert.False(t, IsRetryable(schema.NewError(schema.ErrCodeValidation, "bad input")))
	assert.False(t, IsRetryable(schema.NewError(schema.ErrCodeNotFound, "gone")))
	assert.True(t, IsRetryable(schema.NewError(schema.ErrCodeLLM, "rate limit")))
	assert.True(t, IsRetryable(schema.NewError(schema.ErrCodeFetch, "timeout")))
}

func TestIsRetryable_PlainErrorDefaultsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("boom")))
}

func TestRetry_NonRetryableStopsEarly(t *testing.T) {
	permanent := schema.NewError(schema.ErrCodeValidation, "bad input")
	step := &stubStep{
		name: "strict",
		exec: func(ctx context.Context, _ any) (any, error) { return nil, permanent },
	}

	b := NewBuilder(testLogger())
	node := b.Node(step, RetryPolicy{MaxAttempts: 4})
	d := NewDriver(node, testLogger())

	_, err := d.Run(context.Background(), nil)
	require.Error(t, err)
	// No point burning the remaining attempts on a permanent failure.
	assert.Equal(t, 1, step.execCalls)
	assert.Equal(t, 1, step.fallbackCalls)

	var ce *schema.CodetourError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, schema.ErrCodeNonRetryable, ce.Code)
	assert.Equal(t, "strict", ce.Step)
	assert.ErrorIs(t, err, permanent)
}

func TestRetry_ExhaustionReturnsTypedError(t *testing.T) {
	failure := errors.New("still down")
	step := &stubStep{
		name: "flaky_forever",
		exec: func(ctx context.Context, _ any) (any, error) { return nil, failure },
	}

	b := NewBuilder(testLogger())
	node := b.Node(step, RetryPolicy{MaxAttempts: 3})
	d := NewDriver(node, testLogger())

	_, err := d.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 3, step.execCalls)
	assert.Equal(t, 1, step.fallbackCalls)

	var ce *schema.CodetourError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, schema.ErrCodeRetryExhausted, ce.Code)
	assert.Equal(t, "flaky_forever", ce.Step)
	assert.False(t, ce.IsRetryable())
	assert.ErrorIs(t, err, failure)
}

func TestRetry_SingleAttemptFailureIsStepFailed(t *testing.T) {
	step := &stubStep{
		name: "once",
		exec: func(ctx context.Context, _ any) (any, error) { return nil, errors.New("nope") },
	}

	b := NewBuilder(testLogger())
	node := b.Node(step, RetryPolicy{MaxAttempts: 1})
	d := NewDriver(node, testLogger())

	_, err := d.Run(context.Background(), nil)
	require.Error(t, err)

	var ce *schema.CodetourError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, schema.ErrCodeStepFailed, ce.Code)
	assert.Equal(t, "once", ce.Step)
}
