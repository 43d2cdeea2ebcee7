package store

import (
	"encoding/json"
	"time"

	"github.com/avelez/codetour/pkg/schema"
)

// Run is the persisted record of one tutorial generation run.
type Run struct {
	ID           string           `json:"id"`
	RepoURL      string           `json:"repo_url"`
	ProjectName  string           `json:"project_name,omitempty"`
	Language     string           `json:"language"`
	Status       schema.RunStatus `json:"status"`
	Request      json.RawMessage  `json:"request,omitempty"`
	OutputDir    string           `json:"output_dir,omitempty"`
	ChapterCount int              `json:"chapter_count,omitempty"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// RunUpdate holds optional field updates for a run. Nil fields are left untouched.
type RunUpdate struct {
	Status       *schema.RunStatus
	ProjectName  *string
	OutputDir    *string
	ChapterCount *int
	Error        *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// RunFilter narrows ListRuns results.
type RunFilter struct {
	Status  *schema.RunStatus
	RepoURL string
	Since   *time.Time
	Limit   int
	Offset  int
}

// RunEvent is an immutable entry in a run's progress log. Sequence is
// monotonically increasing per run and assigned on append.
type RunEvent struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Step      string          `json:"step,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// Run event types.
const (
	EventRunStarted    = "run_started"
	EventRunCompleted  = "run_completed"
	EventRunFailed     = "run_failed"
	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepRetrying  = "step_retrying"
	EventStepFailed    = "step_failed"
)

// ScheduledJob re-generates a tutorial on a cron schedule so published docs
// track the upstream repository.
type ScheduledJob struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CronExpr  string          `json:"cron_expr"`
	Request   json.RawMessage `json:"request"`
	Enabled   bool            `json:"enabled"`
	LastRunID string          `json:"last_run_id,omitempty"`
	LastRunAt *time.Time      `json:"last_run_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ScheduledJobUpdate holds optional field updates for a scheduled job.
type ScheduledJobUpdate struct {
	Name      *string
	CronExpr  *string
	Request   json.RawMessage
	Enabled   *bool
	LastRunID *string
	LastRunAt *time.Time
}

// ScheduledJobFilter narrows ListScheduledJobs results.
type ScheduledJobFilter struct {
	Enabled *bool
	Limit   int
}
