package tutorial

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avelez/codetour/internal/github"
	"github.com/avelez/codetour/internal/llm"
	"github.com/avelez/codetour/internal/logging"
	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/pkg/schema"
)

// RunnerConfig wires a Runner. Store is optional; without it runs are not
// persisted and no events are recorded.
type RunnerConfig struct {
	GitHub    *github.Client
	Generator llm.Generator
	Writer    *Writer
	Store     store.Store
	OutputDir string
	UseCache  bool
	Logger    *slog.Logger
}

// Runner executes tutorial generation runs end to end: it assigns a run ID,
// persists the run record, drives the pipeline and records lifecycle events.
// Safe for concurrent use; each call builds a fresh pipeline.
type Runner struct {
	github    *github.Client
	generator llm.Generator
	writer    *Writer
	store     store.Store
	outputDir string
	useCache  bool
	logger    *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	writer := cfg.Writer
	if writer == nil {
		writer = NewWriter(logger)
	}
	return &Runner{
		github:    cfg.GitHub,
		generator: cfg.Generator,
		writer:    writer,
		store:     cfg.Store,
		outputDir: cfg.OutputDir,
		useCache:  cfg.UseCache,
		logger:    logger,
	}
}

// Run generates a tutorial for req and returns it together with the run ID.
// The run record tracks pending -> running -> completed/failed; persistence
// failures are logged but never abort a generation already in flight.
func (r *Runner) Run(ctx context.Context, req *schema.TutorialRequest) (*schema.Tutorial, string, error) {
	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)

	r.createRecord(ctx, runID, req)
	r.recordEvent(ctx, runID, store.EventRunStarted, nil)

	var recorder EventRecorder
	if r.store != nil {
		recorder = r.store
	}
	driver := NewFlow(Config{
		GitHub:    r.github,
		Generator: r.generator,
		Writer:    r.writer,
		UseCache:  r.useCache,
		Recorder:  recorder,
		RunID:     runID,
		Logger:    r.logger,
	})

	result, err := driver.Run(ctx, RunParams(req, r.outputDir))
	if err != nil {
		r.finishRecord(ctx, runID, store.RunUpdate{
			Status: runStatusPtr(schema.RunStatusFailed),
			Error:  strPtr(err.Error()),
		})
		r.recordEvent(ctx, runID, store.EventRunFailed, map[string]any{"error": err.Error()})
		return nil, runID, err
	}

	tut, ok := result.(*schema.Tutorial)
	if !ok {
		err := schema.NewErrorf(schema.ErrCodeExecution,
			"pipeline returned %T, expected tutorial", result)
		r.finishRecord(ctx, runID, store.RunUpdate{
			Status: runStatusPtr(schema.RunStatusFailed),
			Error:  strPtr(err.Error()),
		})
		r.recordEvent(ctx, runID, store.EventRunFailed, map[string]any{"error": err.Error()})
		return nil, runID, err
	}

	chapterCount := len(tut.Chapters)
	r.finishRecord(ctx, runID, store.RunUpdate{
		Status:       runStatusPtr(schema.RunStatusCompleted),
		ProjectName:  strPtr(tut.ProjectName),
		OutputDir:    strPtr(tut.OutputDir),
		ChapterCount: &chapterCount,
	})
	r.recordEvent(ctx, runID, store.EventRunCompleted, map[string]any{
		"output_dir": tut.OutputDir,
		"chapters":   chapterCount,
	})

	return tut, runID, nil
}

func (r *Runner) createRecord(ctx context.Context, runID string, req *schema.TutorialRequest) {
	if r.store == nil {
		return
	}
	raw, err := json.Marshal(req)
	if err != nil {
		raw = nil
	}
	now := time.Now().UTC()
	language := req.Language
	if language == "" {
		language = "english"
	}
	run := &store.Run{
		ID:        runID,
		RepoURL:   req.RepoURL,
		Language:  language,
		Status:    schema.RunStatusRunning,
		Request:   raw,
		CreatedAt: now,
		StartedAt: &now,
		UpdatedAt: now,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		logging.LogWith(ctx, r.logger).Warn("create run record failed",
			slog.String("error", err.Error()))
	}
}

func (r *Runner) finishRecord(ctx context.Context, runID string, update store.RunUpdate) {
	if r.store == nil {
		return
	}
	now := time.Now().UTC()
	update.CompletedAt = &now
	if err := r.store.UpdateRun(ctx, runID, update); err != nil {
		logging.LogWith(ctx, r.logger).Warn("update run record failed",
			slog.String("error", err.Error()))
	}
}

func (r *Runner) recordEvent(ctx context.Context, runID, eventType string, payload map[string]any) {
	if r.store == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	event := &store.RunEvent{
		RunID:     runID,
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		logging.LogWith(ctx, r.logger).Warn("record run event failed",
			slog.String("event", eventType), slog.String("error", err.Error()))
	}
}

func runStatusPtr(s schema.RunStatus) *schema.RunStatus { return &s }

func strPtr(s string) *string { return &s }
