package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/pkg/schema"
)

// handleHealth reports service liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleGenerate validates a tutorial request, runs the pipeline and returns
// the generated tutorial. Generation is synchronous; the run ID in the
// response keys the persisted record and its event log.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req schema.TutorialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if err := s.deps.Validator.ValidateRequest(&req); err != nil {
		writeCodetourError(w, err)
		return
	}

	tut, runID, err := s.deps.Runner.Run(ctx, &req)
	if err != nil {
		s.deps.Logger.Error("tutorial generation failed",
			"run_id", runID, "repo_url", req.RepoURL, "error", err)
		writeCodetourError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"run_id":     runID,
		"title":      tut.Title,
		"repo_url":   tut.RepoURL,
		"output_dir": tut.OutputDir,
		"chapters":   tut.Chapters,
	})
}

// handleListRuns lists persisted generation runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := store.RunFilter{
		RepoURL: r.URL.Query().Get("repo_url"),
		Limit:   queryInt(r, "limit", 50),
		Offset:  queryInt(r, "offset", 0),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := schema.RunStatus(v)
		filter.Status = &status
	}

	runs, err := s.deps.Store.ListRuns(ctx, filter)
	if err != nil {
		writeCodetourError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGetRun returns one run record.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCodetourError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleGetEvents returns a run's progress log. The since param resumes
// after a known sequence number.
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := r.PathValue("id")

	if _, err := s.deps.Store.GetRun(ctx, runID); err != nil {
		writeCodetourError(w, err)
		return
	}

	events, err := s.deps.Store.GetEvents(ctx, runID, queryInt64(r, "since", 0))
	if err != nil {
		writeCodetourError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleDeleteRun deletes a run record and its events.
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
		writeCodetourError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}

// handleCreateJob creates a scheduled refresh job.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Name     string                 `json:"name"`
		CronExpr string                 `json:"cron_expr"`
		Request  schema.TutorialRequest `json:"request"`
		Enabled  bool                   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Name == "" || body.CronExpr == "" {
		writeError(w, http.StatusBadRequest, "name and cron_expr are required")
		return
	}
	if err := s.deps.Validator.ValidateRequest(&body.Request); err != nil {
		writeCodetourError(w, err)
		return
	}

	raw, err := json.Marshal(body.Request)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request payload: %v", err))
		return
	}

	now := time.Now().UTC()
	job := &store.ScheduledJob{
		ID:        uuid.New().String(),
		Name:      body.Name,
		CronExpr:  body.CronExpr,
		Request:   raw,
		Enabled:   body.Enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.deps.Store.CreateScheduledJob(ctx, job); err != nil {
		writeCodetourError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": job.ID})
}

// handleListJobs lists scheduled refresh jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := store.ScheduledJobFilter{Limit: queryInt(r, "limit", 100)}
	if v := r.URL.Query().Get("enabled"); v != "" {
		enabled := v == "true"
		filter.Enabled = &enabled
	}

	jobs, err := s.deps.Store.ListScheduledJobs(r.Context(), filter)
	if err != nil {
		writeCodetourError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// handleUpdateJob updates a scheduled job.
func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var body struct {
		Name     *string `json:"name"`
		CronExpr *string `json:"cron_expr"`
		Enabled  *bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if err := s.deps.Store.UpdateScheduledJob(r.Context(), jobID, store.ScheduledJobUpdate{
		Name:     body.Name,
		CronExpr: body.CronExpr,
		Enabled:  body.Enabled,
	}); err != nil {
		writeCodetourError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "id": jobID})
}

// handleDeleteJob deletes a scheduled job.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteScheduledJob(r.Context(), r.PathValue("id")); err != nil {
		writeCodetourError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}
