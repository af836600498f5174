package domain

import (
	"context"
	"time"
)

// ScheduledJobRepository defines persistence for scheduled jobs.
type ScheduledJobRepository interface {
	Create(ctx context.Context, job *ScheduledJob) error
	Update(ctx context.Context, job *ScheduledJob) error
	GetByID(ctx context.Context, id string) (*ScheduledJob, error)
	ListByUser(ctx context.Context, userID string) ([]ScheduledJob, error)
	Delete(ctx context.Context, id string) error

	// FindDue returns enabled jobs whose next_run_at is at or before asOf.
	FindDue(ctx context.Context, asOf time.Time) ([]ScheduledJob, error)
	// RecordRun applies the outcome of one execution attempt.
	RecordRun(ctx context.Context, jobID string, result RunResult) error
}

// BatchRepository defines persistence for batch jobs and their items.
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch *BatchJob, items []BatchJobItem) error
	GetBatch(ctx context.Context, id string) (*BatchJob, error)
	ListByUser(ctx context.Context, userID string) ([]BatchJob, error)
	UpdateStatus(ctx context.Context, batchID string, status BatchStatus) error
	DeleteBatch(ctx context.Context, id string) error
	ListItems(ctx context.Context, batchID string) ([]BatchJobItem, error)

	// OldestActive returns the oldest batch still in pending or processing,
	// or ErrNotFound when none exists.
	OldestActive(ctx context.Context) (*BatchJob, error)
	// ClaimNextItem claims the oldest pending item of the batch, or a
	// processing item whose lease expired before asOf, stamping a fresh
	// lease and bumping attempt_count. Returns ErrNotFound when the batch
	// has no eligible items left.
	ClaimNextItem(ctx context.Context, batchID string, asOf, leaseUntil time.Time) (*BatchJobItem, error)
	// CompleteItem marks the item completed and atomically increments the
	// batch completed_count.
	CompleteItem(ctx context.Context, itemID, artifactID string) error
	// FailItem marks the item failed and atomically increments the batch
	// failed_count.
	FailItem(ctx context.Context, itemID, errMsg string) error
	// MarkItemSynced records that the item's artifact reached the device.
	MarkItemSynced(ctx context.Context, itemID string) error
}

// SessionRepository is the slice of the auth layer the scheduler touches.
type SessionRepository interface {
	PurgeExpired(ctx context.Context, asOf time.Time) (int64, error)
}
