package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkflow/internal/domain"
)

// ScheduledJobRepositoryPG implements domain.ScheduledJobRepository.
type ScheduledJobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewScheduledJobRepository creates a scheduled-job repository backed by PostgreSQL.
func NewScheduledJobRepository(pool *pgxpool.Pool) *ScheduledJobRepositoryPG {
	return &ScheduledJobRepositoryPG{pool: pool}
}

const scheduledJobColumns = `id, user_id, prompt, size, style_preset, schedule_type, schedule_time,
schedule_days, scheduled_at, timezone, is_enabled, auto_sync, image_url,
last_run_at, next_run_at, run_count, last_error, created_at, updated_at`

// Create inserts a new scheduled job record.
func (r *ScheduledJobRepositoryPG) Create(ctx context.Context, job *domain.ScheduledJob) error {
	query := `
INSERT INTO scheduled_jobs (id, user_id, prompt, size, style_preset, schedule_type, schedule_time,
                            schedule_days, scheduled_at, timezone, is_enabled, auto_sync, image_url,
                            next_run_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Prompt,
		job.Size,
		job.StylePreset,
		job.ScheduleType,
		job.ScheduleTime,
		daysToInt32(job.ScheduleDays),
		job.ScheduledAt,
		job.Timezone,
		job.IsEnabled,
		job.AutoSync,
		job.ImageURL,
		job.NextRunAt,
	)
	return err
}

// Update rewrites the content and schedule fields of an existing job.
func (r *ScheduledJobRepositoryPG) Update(ctx context.Context, job *domain.ScheduledJob) error {
	query := `
UPDATE scheduled_jobs
SET prompt = $2,
    size = $3,
    style_preset = $4,
    schedule_type = $5,
    schedule_time = $6,
    schedule_days = $7,
    scheduled_at = $8,
    timezone = $9,
    is_enabled = $10,
    auto_sync = $11,
    next_run_at = $12,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Prompt,
		job.Size,
		job.StylePreset,
		job.ScheduleType,
		job.ScheduleTime,
		daysToInt32(job.ScheduleDays),
		job.ScheduledAt,
		job.Timezone,
		job.IsEnabled,
		job.AutoSync,
		job.NextRunAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a scheduled job by its identifier.
func (r *ScheduledJobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs WHERE id = $1;`
	job, err := scanScheduledJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByUser returns the user's scheduled jobs, newest first.
func (r *ScheduledJobRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.ScheduledJob, error) {
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs WHERE user_id = $1 ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.ScheduledJob
	for rows.Next() {
		job, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Delete removes a scheduled job.
func (r *ScheduledJobRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM scheduled_jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindDue returns enabled jobs whose next_run_at is at or before asOf.
// Disabled jobs and jobs without a next run are never selected.
func (r *ScheduledJobRepositoryPG) FindDue(ctx context.Context, asOf time.Time) ([]domain.ScheduledJob, error) {
	query := `
SELECT ` + scheduledJobColumns + `
FROM scheduled_jobs
WHERE is_enabled = true AND next_run_at IS NOT NULL AND next_run_at <= $1
ORDER BY next_run_at;
`
	rows, err := r.pool.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.ScheduledJob
	for rows.Next() {
		job, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// RecordRun applies the outcome of one execution attempt. run_count only
// advances on success; last_error carries the failure message and is
// cleared by a subsequent success.
func (r *ScheduledJobRepositoryPG) RecordRun(ctx context.Context, jobID string, result domain.RunResult) error {
	query := `
UPDATE scheduled_jobs
SET last_run_at = $2,
    next_run_at = $3,
    image_url = COALESCE(NULLIF($4, ''), image_url),
    last_error = $5,
    run_count = run_count + CASE WHEN $5 = '' THEN 1 ELSE 0 END,
    is_enabled = CASE WHEN $6 THEN false ELSE is_enabled END,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query,
		jobID,
		result.RanAt,
		result.NextRunAt,
		result.ImageURL,
		result.Err,
		result.Disabled,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanScheduledJob(row pgx.Row) (*domain.ScheduledJob, error) {
	var job domain.ScheduledJob
	var days []int32
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Prompt,
		&job.Size,
		&job.StylePreset,
		&job.ScheduleType,
		&job.ScheduleTime,
		&days,
		&job.ScheduledAt,
		&job.Timezone,
		&job.IsEnabled,
		&job.AutoSync,
		&job.ImageURL,
		&job.LastRunAt,
		&job.NextRunAt,
		&job.RunCount,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.ScheduleDays = daysToInt(days)
	return &job, nil
}

func daysToInt32(days []int) []int32 {
	if days == nil {
		return nil
	}
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func daysToInt(days []int32) []int {
	if days == nil {
		return nil
	}
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}
