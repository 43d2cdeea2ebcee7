package tutorial

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/avelez/codetour/internal/engine"
	"github.com/avelez/codetour/internal/logging"
	"github.com/avelez/codetour/internal/store"
)

// EventRecorder appends progress events to a run's log. *store.LibSQLStore
// satisfies this.
type EventRecorder interface {
	AppendEvent(ctx context.Context, event *store.RunEvent) error
}

// recordedStep wraps a Step and emits step lifecycle events around its
// execution phase. Recording failures are logged and never fail the step.
type recordedStep struct {
	engine.Step
	recorder EventRecorder
	runID    string
	logger   *slog.Logger
}

func withRecording(step engine.Step, recorder EventRecorder, runID string, logger *slog.Logger) engine.Step {
	if recorder == nil || runID == "" {
		return step
	}
	return &recordedStep{Step: step, recorder: recorder, runID: runID, logger: logger}
}

// Exec runs once per attempt; the first attempt opens the step's event trail
// and later attempts mark a retry instead of a second start.
func (r *recordedStep) Exec(ctx context.Context, prepRes any) (any, error) {
	if attempt := logging.Attempt(ctx); attempt > 1 {
		r.record(ctx, store.EventStepRetrying, map[string]any{"attempt": attempt})
	} else {
		r.record(ctx, store.EventStepStarted, nil)
	}
	res, err := r.Step.Exec(ctx, prepRes)
	if err != nil {
		r.record(ctx, store.EventStepFailed, map[string]any{
			"error":     err.Error(),
			"retryable": engine.IsRetryable(err),
		})
		return nil, err
	}
	r.record(ctx, store.EventStepCompleted, nil)
	return res, nil
}

func (r *recordedStep) record(ctx context.Context, eventType string, payload map[string]any) {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	err := r.recorder.AppendEvent(ctx, &store.RunEvent{
		RunID:   r.runID,
		Step:    r.Step.Name(),
		Type:    eventType,
		Payload: raw,
	})
	if err != nil {
		r.logger.Warn("failed to record run event", "run_id", r.runID, "step", r.Step.Name(), "error", err)
	}
}
