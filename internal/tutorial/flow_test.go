package tutorial

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelez/codetour/internal/github"
	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/pkg/schema"
)

// scriptedGenerator returns canned responses in call order.
type scriptedGenerator struct {
	responses []string
	calls     int
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, useCache bool) (string, error) {
	if g.calls >= len(g.responses) {
		return "", fmt.Errorf("unexpected generate call %d", g.calls+1)
	}
	resp := g.responses[g.calls]
	g.calls++
	return resp, nil
}

// capturingRecorder collects run events in memory.
type capturingRecorder struct {
	events []*store.RunEvent
}

func (r *capturingRecorder) AppendEvent(ctx context.Context, event *store.RunEvent) error {
	r.events = append(r.events, event)
	return nil
}

func newRepoServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/repos/acme/demo/contents/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[
			{"name":"parser.go","path":"parser.go","type":"file","size":16,"download_url":"%s/raw/parser.go"},
			{"name":"renderer.go","path":"renderer.go","type":"file","size":18,"download_url":"%s/raw/renderer.go"}
		]`, server.URL, server.URL)
	})
	mux.HandleFunc("/raw/parser.go", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "package parser")
	})
	mux.HandleFunc("/raw/renderer.go", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "package renderer")
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFlow_EndToEnd(t *testing.T) {
	server := newRepoServer(t)
	outputDir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	gen := &scriptedGenerator{responses: []string{
		// identify_abstractions
		`[
			{"name": "Parser", "description": "Turns text into tokens.", "file_indices": [0]},
			{"name": "Renderer", "description": "Draws the output.", "file_indices": [1]}
		]`,
		// analyze_relationships
		`{"summary": "A tiny **demo** project.", "details": [{"from": 0, "to": 1, "label": "Feeds"}]}`,
		// order_chapters: renderer first
		`[1, 0]`,
		// chapters, in reading order
		"# Chapter 1: Renderer\n\nRenderer chapter body.",
		"Parser chapter body without a heading.",
	}}

	recorder := &capturingRecorder{}
	driver := NewFlow(Config{
		GitHub:    github.NewClient(github.Config{BaseURL: server.URL}, logger),
		Generator: gen,
		Writer:    NewWriter(logger),
		Recorder:  recorder,
		RunID:     "run-1",
		Logger:    logger,
	})

	result, err := driver.Run(context.Background(), RunParams(&schema.TutorialRequest{
		RepoURL: "https://github.com/acme/demo",
	}, outputDir))
	require.NoError(t, err)

	tut, ok := result.(*schema.Tutorial)
	require.True(t, ok, "final post result should be the tutorial")
	assert.Equal(t, "demo Tutorial", tut.Title)
	assert.Equal(t, "demo", tut.ProjectName)
	assert.Equal(t, []string{"01_renderer.md", "02_parser.md"}, tut.Chapters)

	// Index content: summary, mermaid graph and ordered chapter links.
	index, err := os.ReadFile(filepath.Join(tut.OutputDir, "index.md"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "# Tutorial: demo")
	assert.Contains(t, string(index), "A tiny **demo** project.")
	assert.Contains(t, string(index), "flowchart TD")
	assert.Contains(t, string(index), `A0 -- "Feeds" --> A1`)
	assert.Contains(t, string(index), "1. [Renderer](01_renderer.md)")
	assert.Contains(t, string(index), "2. [Parser](02_parser.md)")

	// The second chapter had no heading; it gets the canonical one.
	parser, err := os.ReadFile(filepath.Join(tut.OutputDir, "02_parser.md"))
	require.NoError(t, err)
	assert.Contains(t, string(parser), "# Chapter 2: Parser")
	assert.Contains(t, string(parser), "Generated by [codetour]")

	// All six steps recorded started and completed events with the run ID.
	var names []string
	for _, e := range recorder.events {
		assert.Equal(t, "run-1", e.RunID)
		if e.Type == store.EventStepCompleted {
			names = append(names, e.Step)
		}
	}
	assert.Equal(t, []string{
		"fetch_repo", "identify_abstractions", "analyze_relationships",
		"order_chapters", "write_chapters", "combine_tutorial",
	}, names)
}

func TestFlow_MissingRepoURLFailsFast(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	driver := NewFlow(Config{
		GitHub:    github.NewClient(github.Config{}, logger),
		Generator: &scriptedGenerator{},
		Writer:    NewWriter(logger),
		Logger:    logger,
	})

	_, err := driver.Run(context.Background(), RunParams(&schema.TutorialRequest{}, t.TempDir()))
	require.Error(t, err)
	assert.ErrorContains(t, err, "repository URL is required")
}

func TestRunParams_Defaults(t *testing.T) {
	params := RunParams(&schema.TutorialRequest{RepoURL: "https://github.com/acme/demo"}, "/srv/tutorials")

	assert.Equal(t, "english", params[KeyLanguage])
	assert.Equal(t, DefaultIncludePatterns, params[KeyIncludePatterns])
	assert.Equal(t, DefaultExcludePatterns, params[KeyExcludePatterns])
	assert.Equal(t, DefaultMaxFileSize, params[KeyMaxFileSize])
	assert.Equal(t, "/srv/tutorials", params[KeyOutputDir])

	custom := RunParams(&schema.TutorialRequest{
		RepoURL:         "https://github.com/acme/demo",
		Language:        "spanish",
		IncludePatterns: []string{"*.rs"},
		OutputDir:       "/elsewhere",
	}, "/srv/tutorials")
	assert.Equal(t, "spanish", custom[KeyLanguage])
	assert.Equal(t, []string{"*.rs"}, custom[KeyIncludePatterns])
	assert.Equal(t, "/elsewhere", custom[KeyOutputDir])
}
