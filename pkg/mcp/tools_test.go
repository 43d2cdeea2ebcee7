package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/pkg/schema"
)

// --- Mock Store ---

type mockStore struct {
	store.Store // embed for unimplemented methods

	runs   []*store.Run
	events []*store.RunEvent
}

func (m *mockStore) GetRun(_ context.Context, id string) (*store.Run, error) {
	for _, run := range m.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, schema.NewError(schema.ErrCodeNotFound, "run not found")
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]*store.Run, error) {
	result := make([]*store.Run, 0)
	for _, run := range m.runs {
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.RepoURL != "" && run.RepoURL != filter.RepoURL {
			continue
		}
		result = append(result, run)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *mockStore) GetEvents(_ context.Context, runID string, since int64) ([]*store.RunEvent, error) {
	result := make([]*store.RunEvent, 0)
	for _, ev := range m.events {
		if ev.RunID == runID && ev.Sequence > since {
			result = append(result, ev)
		}
	}
	return result, nil
}

// --- Mock Runner ---

type mockRunner struct {
	tutorial *schema.Tutorial
	runID    string
	err      error
	lastReq  *schema.TutorialRequest
}

func (m *mockRunner) Run(_ context.Context, req *schema.TutorialRequest) (*schema.Tutorial, string, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.runID, m.err
	}
	return m.tutorial, m.runID, nil
}

// --- Helper ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// --- Tests ---

func TestGenerateTool(t *testing.T) {
	runner := &mockRunner{
		runID: "run-9",
		tutorial: &schema.Tutorial{
			Title:     "example Tutorial",
			RepoURL:   "https://github.com/golang/example",
			OutputDir: "output/example",
			Chapters:  []string{"01_parser.md"},
		},
	}
	s := NewCodetourServer(CodetourServerDeps{Runner: runner, Store: &mockStore{}})

	req := buildRequest("tutorial.generate", map[string]any{
		"repo_url":         "https://github.com/golang/example",
		"language":         "spanish",
		"include_patterns": []any{"*.go"},
		"max_file_size":    50000,
	})

	result, err := s.handleGenerate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	require.NotNil(t, runner.lastReq)
	assert.Equal(t, "https://github.com/golang/example", runner.lastReq.RepoURL)
	assert.Equal(t, "spanish", runner.lastReq.Language)
	assert.Equal(t, []string{"*.go"}, runner.lastReq.IncludePatterns)
	assert.EqualValues(t, 50000, runner.lastReq.MaxFileSize)
}

func TestGenerateToolMissingRepoURL(t *testing.T) {
	s := NewCodetourServer(CodetourServerDeps{Runner: &mockRunner{}, Store: &mockStore{}})

	result, err := s.handleGenerate(context.Background(), buildRequest("tutorial.generate", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGenerateToolRunFailure(t *testing.T) {
	runner := &mockRunner{
		runID: "run-10",
		err:   schema.NewError(schema.ErrCodeFetch, "repository unreachable"),
	}
	s := NewCodetourServer(CodetourServerDeps{Runner: runner, Store: &mockStore{}})

	req := buildRequest("tutorial.generate", map[string]any{
		"repo_url": "https://github.com/owner/gone",
	})

	result, err := s.handleGenerate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStatusTool(t *testing.T) {
	ms := &mockStore{
		runs: []*store.Run{
			{ID: "run-1", RepoURL: "https://github.com/golang/example", Status: schema.RunStatusCompleted},
		},
		events: []*store.RunEvent{
			{RunID: "run-1", Type: store.EventRunStarted, Sequence: 1, Timestamp: time.Now().UTC()},
			{RunID: "run-1", Type: store.EventRunCompleted, Sequence: 2, Timestamp: time.Now().UTC()},
		},
	}
	s := NewCodetourServer(CodetourServerDeps{Runner: &mockRunner{}, Store: ms})

	result, err := s.handleStatus(context.Background(), buildRequest("tutorial.status", map[string]any{
		"run_id": "run-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	// Missing run.
	result, err = s.handleStatus(context.Background(), buildRequest("tutorial.status", map[string]any{
		"run_id": "nonexistent",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// Missing run_id.
	result, err = s.handleStatus(context.Background(), buildRequest("tutorial.status", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestQueryTool(t *testing.T) {
	ms := &mockStore{
		runs: []*store.Run{
			{ID: "run-1", RepoURL: "https://github.com/a/a", Status: schema.RunStatusCompleted},
			{ID: "run-2", RepoURL: "https://github.com/b/b", Status: schema.RunStatusFailed},
		},
	}
	s := NewCodetourServer(CodetourServerDeps{Runner: &mockRunner{}, Store: ms})

	result, err := s.handleQuery(context.Background(), buildRequest("tutorial.query", map[string]any{
		"status": "completed",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}
