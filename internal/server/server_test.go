package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/internal/validation"
	"github.com/avelez/codetour/pkg/schema"
)

type fakeRunner struct {
	tutorial *schema.Tutorial
	runID    string
	err      error
	lastReq  *schema.TutorialRequest
}

func (f *fakeRunner) Run(ctx context.Context, req *schema.TutorialRequest) (*schema.Tutorial, string, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.runID, f.err
	}
	return f.tutorial, f.runID, nil
}

func newTestServer(t *testing.T, runner TutorialRunner) (*Server, *store.LibSQLStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	return NewServer(Deps{
		Store:     st,
		Runner:    runner,
		Validator: v,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}), st
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func seedRun(t *testing.T, st *store.LibSQLStore, status schema.RunStatus) *store.Run {
	t.Helper()
	run := &store.Run{
		ID:       uuid.New().String(),
		RepoURL:  "https://github.com/golang/example",
		Language: "english",
		Status:   status,
		Request:  json.RawMessage(`{"repo_url":"https://github.com/golang/example"}`),
	}
	require.NoError(t, st.CreateRun(context.Background(), run))
	return run
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})

	rec := doRequest(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestGenerate_Success(t *testing.T) {
	runner := &fakeRunner{
		runID: "run-42",
		tutorial: &schema.Tutorial{
			Title:     "example Tutorial",
			RepoURL:   "https://github.com/golang/example",
			OutputDir: "output/example",
			Chapters:  []string{"01_parser.md", "02_renderer.md"},
		},
	}
	s, _ := newTestServer(t, runner)

	rec := doRequest(t, s, http.MethodPost, "/api/tutorials", map[string]any{
		"repo_url": "https://github.com/golang/example",
		"language": "english",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "run-42", body["run_id"])
	assert.Equal(t, "example Tutorial", body["title"])
	assert.Equal(t, "output/example", body["output_dir"])
	assert.Len(t, body["chapters"], 2)

	require.NotNil(t, runner.lastReq)
	assert.Equal(t, "https://github.com/golang/example", runner.lastReq.RepoURL)
}

func TestGenerate_InvalidJSON(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})

	req := httptest.NewRequest(http.MethodPost, "/api/tutorials", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "invalid JSON")
}

func TestGenerate_ValidationRejected(t *testing.T) {
	runner := &fakeRunner{}
	s, _ := newTestServer(t, runner)

	rec := doRequest(t, s, http.MethodPost, "/api/tutorials", map[string]any{
		"repo_url": "https://gitlab.com/owner/repo",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, runner.lastReq, "runner must not be invoked for invalid requests")
}

func TestGenerate_NotFoundMapsTo404(t *testing.T) {
	runner := &fakeRunner{
		runID: "run-err",
		err:   schema.NewError(schema.ErrCodeNotFound, "repository not found"),
	}
	s, _ := newTestServer(t, runner)

	rec := doRequest(t, s, http.MethodPost, "/api/tutorials", map[string]any{
		"repo_url": "https://github.com/owner/missing",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "not found")
}

func TestGenerate_RateLimitMapsTo429(t *testing.T) {
	runner := &fakeRunner{
		runID: "run-err",
		err:   schema.NewError(schema.ErrCodeRateLimited, "rate limit exceeded"),
	}
	s, _ := newTestServer(t, runner)

	rec := doRequest(t, s, http.MethodPost, "/api/tutorials", map[string]any{
		"repo_url": "https://github.com/owner/repo",
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGenerate_GenericErrorMapsTo500(t *testing.T) {
	runner := &fakeRunner{
		runID: "run-err",
		err:   schema.NewError(schema.ErrCodeLLM, "model unavailable"),
	}
	s, _ := newTestServer(t, runner)

	rec := doRequest(t, s, http.MethodPost, "/api/tutorials", map[string]any{
		"repo_url": "https://github.com/owner/repo",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListRuns_FiltersByStatus(t *testing.T) {
	s, st := newTestServer(t, &fakeRunner{})
	seedRun(t, st, schema.RunStatusCompleted)
	seedRun(t, st, schema.RunStatusFailed)

	rec := doRequest(t, s, http.MethodGet, "/api/tutorials?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
}

func TestGetRun(t *testing.T) {
	s, st := newTestServer(t, &fakeRunner{})
	run := seedRun(t, st, schema.RunStatusCompleted)

	rec := doRequest(t, s, http.MethodGet, "/api/tutorials/"+run.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, run.ID, decodeBody(t, rec)["id"])

	rec = doRequest(t, s, http.MethodGet, "/api/tutorials/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetEvents(t *testing.T) {
	s, st := newTestServer(t, &fakeRunner{})
	run := seedRun(t, st, schema.RunStatusRunning)

	for _, typ := range []string{store.EventRunStarted, store.EventStepStarted, store.EventStepCompleted} {
		require.NoError(t, st.AppendEvent(context.Background(), &store.RunEvent{
			RunID:     run.ID,
			Type:      typ,
			Timestamp: time.Now().UTC(),
		}))
	}

	rec := doRequest(t, s, http.MethodGet, "/api/tutorials/"+run.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decodeBody(t, rec)["count"])

	rec = doRequest(t, s, http.MethodGet, "/api/tutorials/"+run.ID+"/events?since=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = doRequest(t, s, http.MethodGet, "/api/tutorials/nonexistent/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRun(t *testing.T) {
	s, st := newTestServer(t, &fakeRunner{})
	run := seedRun(t, st, schema.RunStatusCompleted)

	rec := doRequest(t, s, http.MethodDelete, "/api/tutorials/"+run.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/tutorials/"+run.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobs_CRUD(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})

	rec := doRequest(t, s, http.MethodPost, "/api/jobs", map[string]any{
		"name":      "nightly-refresh",
		"cron_expr": "0 3 * * *",
		"enabled":   true,
		"request":   map[string]any{"repo_url": "https://github.com/golang/example"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID, ok := decodeBody(t, rec)["id"].(string)
	require.True(t, ok)

	rec = doRequest(t, s, http.MethodGet, "/api/jobs?enabled=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = doRequest(t, s, http.MethodPut, "/api/jobs/"+jobID, map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/jobs?enabled=true", nil)
	assert.EqualValues(t, 0, decodeBody(t, rec)["count"])

	rec = doRequest(t, s, http.MethodDelete, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/jobs", nil)
	assert.EqualValues(t, 0, decodeBody(t, rec)["count"])
}

func TestCreateJob_Rejections(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})

	rec := doRequest(t, s, http.MethodPost, "/api/jobs", map[string]any{
		"cron_expr": "0 3 * * *",
		"request":   map[string]any{"repo_url": "https://github.com/golang/example"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/jobs", map[string]any{
		"name":      "bad-request",
		"cron_expr": "0 3 * * *",
		"request":   map[string]any{"repo_url": ""},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
