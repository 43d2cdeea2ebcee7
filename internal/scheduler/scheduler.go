package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/pkg/schema"
)

// TutorialRunner is the interface the scheduler uses to regenerate
// tutorials. Satisfied by *tutorial.Runner.
type TutorialRunner interface {
	Run(ctx context.Context, req *schema.TutorialRequest) (*schema.Tutorial, string, error)
}

// Scheduler polls the store for due refresh jobs and regenerates their
// tutorials so published docs track the upstream repository.
type Scheduler struct {
	store  store.Store
	runner TutorialRunner
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, runner TutorialRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all enabled jobs and runs those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	jobs, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list scheduled jobs", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, job := range jobs {
		due, err := s.isDue(job, now)
		if err != nil {
			s.logger.Error("invalid cron expression",
				slog.String("job_id", job.ID),
				slog.String("cron", job.CronExpr),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !due {
			continue
		}
		if !s.tryAcquire(job.ID) {
			continue // already running (dedup)
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Error("failed to run scheduled job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		s.releaseJob(job.ID)
	}
}

// isDue reports whether the job's next scheduled time after its last run
// (or its creation, if it never ran) has passed.
func (s *Scheduler) isDue(job *store.ScheduledJob, now time.Time) (bool, error) {
	schedule, err := s.parser.Parse(job.CronExpr)
	if err != nil {
		return false, fmt.Errorf("parse cron expression %q: %w", job.CronExpr, err)
	}

	anchor := job.CreatedAt
	if job.LastRunAt != nil {
		anchor = *job.LastRunAt
	}
	return !schedule.Next(anchor).After(now), nil
}

// runJob regenerates the job's tutorial and records the run against the job.
func (s *Scheduler) runJob(ctx context.Context, job *store.ScheduledJob, now time.Time) error {
	s.logger.Info("running scheduled job",
		slog.String("job_id", job.ID),
		slog.String("name", job.Name),
	)

	var req schema.TutorialRequest
	if err := json.Unmarshal(job.Request, &req); err != nil {
		// Malformed request payloads still advance the anchor so a broken
		// job does not retry every tick.
		s.logger.Error("scheduled job has malformed request",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return s.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{LastRunAt: &now})
	}

	_, runID, err := s.runner.Run(ctx, &req)
	if err != nil {
		s.logger.Error("scheduled job execution failed",
			slog.String("job_id", job.ID),
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}

	return s.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{
		LastRunID: &runID,
		LastRunAt: &now,
	})
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// ValidateCronExpr checks that a cron expression parses.
func (s *Scheduler) ValidateCronExpr(cronExpr string) error {
	if _, err := s.parser.Parse(cronExpr); err != nil {
		return fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
