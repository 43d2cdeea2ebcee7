package tutorial

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelez/codetour/internal/github"
	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/pkg/schema"
)

func newRunnerStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunner_PersistsCompletedRun(t *testing.T) {
	server := newRepoServer(t)
	st := newRunnerStore(t)
	logger := slog.New(slog.DiscardHandler)

	gen := &scriptedGenerator{responses: []string{
		`[{"name": "Parser", "description": "Turns text into tokens.", "file_indices": [0]}]`,
		`{"summary": "Demo.", "details": []}`,
		`[0]`,
		"# Chapter 1: Parser\n\nBody.",
	}}

	runner := NewRunner(RunnerConfig{
		GitHub:    github.NewClient(github.Config{BaseURL: server.URL}, logger),
		Generator: gen,
		Store:     st,
		OutputDir: t.TempDir(),
		Logger:    logger,
	})

	tut, runID, err := runner.Run(context.Background(), &schema.TutorialRequest{
		RepoURL: "https://github.com/acme/demo",
	})
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	assert.Equal(t, "demo", tut.ProjectName)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, "demo", run.ProjectName)
	assert.Equal(t, 1, run.ChapterCount)
	assert.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.Error)

	events, err := st.GetEvents(context.Background(), runID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, store.EventRunStarted, events[0].Type)
	assert.Equal(t, store.EventRunCompleted, events[len(events)-1].Type)

	// Step lifecycle events sit between the run markers.
	var stepCompleted int
	for _, ev := range events {
		if ev.Type == store.EventStepCompleted {
			stepCompleted++
		}
	}
	assert.Equal(t, 6, stepCompleted)
}

func TestRunner_PersistsFailedRun(t *testing.T) {
	st := newRunnerStore(t)
	logger := slog.New(slog.DiscardHandler)

	runner := NewRunner(RunnerConfig{
		GitHub:    github.NewClient(github.Config{}, logger),
		Generator: &scriptedGenerator{},
		Store:     st,
		OutputDir: t.TempDir(),
		Logger:    logger,
	})

	// Missing repository URL aborts the first step's prepare phase.
	_, runID, err := runner.Run(context.Background(), &schema.TutorialRequest{})
	require.Error(t, err)

	run, getErr := st.GetRun(context.Background(), runID)
	require.NoError(t, getErr)
	assert.Equal(t, schema.RunStatusFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	assert.NotNil(t, run.CompletedAt)

	events, evErr := st.GetEvents(context.Background(), runID, 0)
	require.NoError(t, evErr)
	assert.Equal(t, store.EventRunFailed, events[len(events)-1].Type)
}

func TestRunner_WorksWithoutStore(t *testing.T) {
	server := newRepoServer(t)
	logger := slog.New(slog.DiscardHandler)

	gen := &scriptedGenerator{responses: []string{
		`[{"name": "Parser", "description": "Turns text into tokens.", "file_indices": [0]}]`,
		`{"summary": "Demo.", "details": []}`,
		`[0]`,
		"# Chapter 1: Parser\n\nBody.",
	}}

	runner := NewRunner(RunnerConfig{
		GitHub:    github.NewClient(github.Config{BaseURL: server.URL}, logger),
		Generator: gen,
		OutputDir: t.TempDir(),
		Logger:    logger,
	})

	tut, runID, err := runner.Run(context.Background(), &schema.TutorialRequest{
		RepoURL: "https://github.com/acme/demo",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	assert.Len(t, tut.Chapters, 1)
}
