package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"inkflow/internal/devicesync"
	"inkflow/internal/domain"
	"inkflow/internal/providers/image"
	"inkflow/internal/schedule"
	"inkflow/internal/storage"
)

const (
	pollInterval  = time.Minute
	purgeInterval = time.Hour
)

// Service owns the recurring-job pipeline: a once-a-minute polling pass
// that executes due jobs sequentially, and an hourly sweep of expired
// sessions. It is also the sole entry point for user-facing job
// mutations, so every create/update/toggle recomputes next_run_at
// through the same recurrence rules the polling pass uses.
type Service struct {
	jobs      domain.ScheduledJobRepository
	sessions  domain.SessionRepository
	generator image.Generator
	artifacts storage.ArtifactStore
	notifier  devicesync.Notifier
	clock     clockwork.Clock
	logger    zerolog.Logger
	cron      gocron.Scheduler
}

// New wires a scheduler service. Pass clockwork.NewRealClock() outside of
// tests.
func New(
	jobs domain.ScheduledJobRepository,
	sessions domain.SessionRepository,
	generator image.Generator,
	artifacts storage.ArtifactStore,
	notifier devicesync.Notifier,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *Service {
	return &Service{
		jobs:      jobs,
		sessions:  sessions,
		generator: generator,
		artifacts: artifacts,
		notifier:  notifier,
		clock:     clock,
		logger:    logger,
	}
}

// Start registers the polling and purge tasks and begins ticking. The
// due-job pass runs immediately at startup so work queued while the
// process was down is not delayed a full interval.
func (s *Service) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return fmt.Errorf("scheduler: create gocron scheduler: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(pollInterval),
		gocron.NewTask(func() { s.RunDuePass(ctx) }),
		gocron.WithName("scheduled-jobs-poll"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register poll job: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(purgeInterval),
		gocron.NewTask(func() { s.purgeSessions(ctx) }),
		gocron.WithName("session-purge"),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register purge job: %w", err)
	}
	cron.Start()
	s.cron = cron
	s.logger.Info().Msg("scheduler: started")
	return nil
}

// Stop shuts the ticker down; an in-flight pass finishes first.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	if err := s.cron.Shutdown(); err != nil {
		s.logger.Error().Err(err).Msg("scheduler: shutdown failed")
	}
	s.logger.Info().Msg("scheduler: stopped")
}

// RunDuePass executes every currently due job, sequentially. One job's
// failure never prevents the remaining due jobs from executing.
func (s *Service) RunDuePass(ctx context.Context) {
	now := s.clock.Now().UTC()
	jobs, err := s.jobs.FindDue(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler: find due jobs failed")
		return
	}
	if len(jobs) == 0 {
		return
	}
	s.logger.Info().Int("count", len(jobs)).Msg("scheduler: executing due jobs")
	for i := range jobs {
		job := jobs[i]
		if err := s.executeJob(ctx, &job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: record run failed")
		}
	}
}

// executeJob runs one due job end to end and records the outcome. The
// returned error covers bookkeeping only; generation/store/sync failures
// are recorded on the job row and do not propagate.
func (s *Service) executeJob(ctx context.Context, job *domain.ScheduledJob) error {
	imageURL, runErr := s.generateAndDeliver(ctx, job)

	now := s.clock.Now().UTC()
	// Recompute from the original recurrence spec, never from the
	// execution time, so a slow run cannot drift the schedule.
	next, calcErr := schedule.NextRun(schedule.SpecFor(job), now)
	if calcErr != nil {
		// A spec this malformed should have been rejected at creation;
		// surface it on the job and stop rescheduling.
		s.logger.Error().Err(calcErr).Str("job_id", job.ID).Msg("scheduler: next run recompute failed")
		next = nil
		if runErr == nil {
			runErr = calcErr
		}
	}

	result := domain.RunResult{
		RanAt:     now,
		NextRunAt: next,
		Disabled:  next == nil, // one-time job exhausted (or spec went bad)
	}
	if runErr != nil {
		result.Err = runErr.Error()
		s.logger.Warn().Err(runErr).Str("job_id", job.ID).Msg("scheduler: job run failed")
	} else {
		result.ImageURL = imageURL
		s.logger.Info().Str("job_id", job.ID).Msg("scheduler: job run succeeded")
	}
	return s.jobs.RecordRun(ctx, job.ID, result)
}

// generateAndDeliver performs the generation pipeline for one job:
// preset, provider call, durable persistence, optional device sync.
func (s *Service) generateAndDeliver(ctx context.Context, job *domain.ScheduledJob) (string, error) {
	prompt := domain.ApplyStylePreset(job.Prompt, job.StylePreset)
	res, err := s.generator.Generate(ctx, image.GenerateRequest{
		Prompt:    prompt,
		Size:      job.Size,
		RequestID: job.ID,
	})
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}

	artifactID := uuid.NewString()
	if _, err := s.artifacts.Persist(ctx, res.URL, job.UserID, artifactID); err != nil {
		return "", fmt.Errorf("persist artifact: %w", err)
	}
	// The provider URL expires; from here on only the permanent URL is
	// stored or shown.
	permanentURL := s.artifacts.PermanentURL(job.UserID, artifactID)

	if job.AutoSync {
		caption := devicesync.Caption(job.Prompt)
		if err := s.notifier.Notify(ctx, permanentURL, caption, job.UserID); err != nil {
			// Sync failures never fail the run.
			if errors.Is(err, devicesync.ErrNoTarget) {
				s.logger.Debug().Str("job_id", job.ID).Msg("scheduler: no sync target, skipping")
			} else {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("scheduler: device sync failed")
			}
		}
	}
	return permanentURL, nil
}

func (s *Service) purgeSessions(ctx context.Context) {
	count, err := s.sessions.PurgeExpired(ctx, s.clock.Now().UTC())
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler: session purge failed")
		return
	}
	if count > 0 {
		s.logger.Info().Int64("purged", count).Msg("scheduler: expired sessions purged")
	}
}

// CreateJob validates the schedule, computes the first run and stores the
// job. Malformed schedules are rejected here and never reach the polling
// loop.
func (s *Service) CreateJob(ctx context.Context, job *domain.ScheduledJob) error {
	spec := schedule.SpecFor(job)
	if err := spec.Validate(); err != nil {
		return err
	}
	next, err := schedule.NextRun(spec, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.NextRunAt = next
	if next == nil {
		// Valid but already lapsed (one-time in the past): store it
		// disabled so it is never selected as due.
		job.IsEnabled = false
	}
	return s.jobs.Create(ctx, job)
}

// UpdateJob revalidates the schedule and recomputes next_run_at from the
// updated spec.
func (s *Service) UpdateJob(ctx context.Context, job *domain.ScheduledJob) error {
	spec := schedule.SpecFor(job)
	if err := spec.Validate(); err != nil {
		return err
	}
	next, err := schedule.NextRun(spec, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	job.NextRunAt = next
	if next == nil {
		job.IsEnabled = false
	}
	return s.jobs.Update(ctx, job)
}

// SetEnabled toggles a job. Enabling recomputes next_run_at so a job that
// sat disabled past its old slot picks up its next valid occurrence; a
// lapsed one-time job stays disabled.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) (*domain.ScheduledJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	job.IsEnabled = enabled
	if enabled {
		next, err := schedule.NextRun(schedule.SpecFor(job), s.clock.Now().UTC())
		if err != nil {
			return nil, err
		}
		job.NextRunAt = next
		if next == nil {
			job.IsEnabled = false
		}
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob fetches a single job.
func (s *Service) GetJob(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns the user's jobs.
func (s *Service) ListJobs(ctx context.Context, userID string) ([]domain.ScheduledJob, error) {
	return s.jobs.ListByUser(ctx, userID)
}

// DeleteJob removes a job permanently.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	return s.jobs.Delete(ctx, id)
}
