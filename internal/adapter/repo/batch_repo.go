package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkflow/internal/domain"
)

// BatchRepositoryPG implements domain.BatchRepository.
type BatchRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewBatchRepository creates a batch repository backed by PostgreSQL.
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepositoryPG {
	return &BatchRepositoryPG{pool: pool}
}

const batchColumns = `id, user_id, name, size, style_preset, auto_sync, status,
total_count, completed_count, failed_count, created_at, updated_at`

const itemColumns = `id, batch_id, position, prompt, status, artifact_id, error_message,
attempt_count, lease_expires_at, synced_at, created_at`

// CreateBatch inserts the batch and all of its items in one transaction.
func (r *BatchRepositoryPG) CreateBatch(ctx context.Context, batch *domain.BatchJob, items []domain.BatchJobItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO batch_jobs (id, user_id, name, size, style_preset, auto_sync, status, total_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`,
		batch.ID,
		batch.UserID,
		batch.Name,
		batch.Size,
		batch.StylePreset,
		batch.AutoSync,
		batch.Status,
		batch.TotalCount,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(ctx, `
INSERT INTO batch_job_items (id, batch_id, position, prompt, status)
VALUES ($1, $2, $3, $4, $5);
`,
			item.ID, item.BatchID, item.Position, item.Prompt, item.Status,
		)
		if err != nil {
			return fmt.Errorf("insert batch item: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GetBatch fetches a batch with its current progress counters.
func (r *BatchRepositoryPG) GetBatch(ctx context.Context, id string) (*domain.BatchJob, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_jobs WHERE id = $1;`
	batch, err := scanBatch(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return batch, nil
}

// ListByUser returns the user's batches, newest first.
func (r *BatchRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.BatchJob, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_jobs WHERE user_id = $1 ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []domain.BatchJob
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *batch)
	}
	return batches, rows.Err()
}

// UpdateStatus moves the batch to the given status.
func (r *BatchRepositoryPG) UpdateStatus(ctx context.Context, batchID string, status domain.BatchStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE batch_jobs SET status = $2, updated_at = NOW() WHERE id = $1;`,
		batchID, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteBatch removes a batch; items cascade at the schema level.
func (r *BatchRepositoryPG) DeleteBatch(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM batch_jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListItems returns the batch's items in creation order.
func (r *BatchRepositoryPG) ListItems(ctx context.Context, batchID string) ([]domain.BatchJobItem, error) {
	query := `SELECT ` + itemColumns + ` FROM batch_job_items WHERE batch_id = $1 ORDER BY position;`
	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.BatchJobItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// OldestActive returns the oldest batch still in pending or processing.
func (r *BatchRepositoryPG) OldestActive(ctx context.Context) (*domain.BatchJob, error) {
	query := `
SELECT ` + batchColumns + `
FROM batch_jobs
WHERE status IN ('pending', 'processing')
ORDER BY created_at, id
LIMIT 1;
`
	batch, err := scanBatch(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return batch, nil
}

// ClaimNextItem claims the oldest eligible item of the batch: a pending
// item, or a processing item whose lease expired before asOf (crash
// recovery). The claim stamps a fresh lease and bumps attempt_count in
// the same statement so a concurrent claimer cannot pick the same row.
func (r *BatchRepositoryPG) ClaimNextItem(ctx context.Context, batchID string, asOf, leaseUntil time.Time) (*domain.BatchJobItem, error) {
	query := `
UPDATE batch_job_items
SET status = 'processing',
    lease_expires_at = $3,
    attempt_count = attempt_count + 1
WHERE id = (
    SELECT id
    FROM batch_job_items
    WHERE batch_id = $1
      AND (status = 'pending' OR (status = 'processing' AND lease_expires_at < $2))
    ORDER BY position
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + itemColumns + `;
`
	item, err := scanItem(r.pool.QueryRow(ctx, query, batchID, asOf, leaseUntil))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// CompleteItem marks the item completed and increments the batch
// completed_count in a single statement, keeping the read-modify-write
// atomic against concurrent progress reads.
func (r *BatchRepositoryPG) CompleteItem(ctx context.Context, itemID, artifactID string) error {
	query := `
WITH item AS (
    UPDATE batch_job_items
    SET status = 'completed', artifact_id = $2, error_message = '', lease_expires_at = NULL
    WHERE id = $1
    RETURNING batch_id
)
UPDATE batch_jobs b
SET completed_count = completed_count + 1, updated_at = NOW()
FROM item
WHERE b.id = item.batch_id;
`
	tag, err := r.pool.Exec(ctx, query, itemID, artifactID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FailItem marks the item failed and increments the batch failed_count
// atomically.
func (r *BatchRepositoryPG) FailItem(ctx context.Context, itemID, errMsg string) error {
	query := `
WITH item AS (
    UPDATE batch_job_items
    SET status = 'failed', error_message = $2, lease_expires_at = NULL
    WHERE id = $1
    RETURNING batch_id
)
UPDATE batch_jobs b
SET failed_count = failed_count + 1, updated_at = NOW()
FROM item
WHERE b.id = item.batch_id;
`
	tag, err := r.pool.Exec(ctx, query, itemID, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkItemSynced records that the item's artifact reached the downstream
// device.
func (r *BatchRepositoryPG) MarkItemSynced(ctx context.Context, itemID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE batch_job_items SET synced_at = NOW() WHERE id = $1;`,
		itemID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanBatch(row pgx.Row) (*domain.BatchJob, error) {
	var batch domain.BatchJob
	if err := row.Scan(
		&batch.ID,
		&batch.UserID,
		&batch.Name,
		&batch.Size,
		&batch.StylePreset,
		&batch.AutoSync,
		&batch.Status,
		&batch.TotalCount,
		&batch.CompletedCount,
		&batch.FailedCount,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &batch, nil
}

func scanItem(row pgx.Row) (*domain.BatchJobItem, error) {
	var item domain.BatchJobItem
	if err := row.Scan(
		&item.ID,
		&item.BatchID,
		&item.Position,
		&item.Prompt,
		&item.Status,
		&item.ArtifactID,
		&item.ErrorMessage,
		&item.AttemptCount,
		&item.LeaseExpiresAt,
		&item.SyncedAt,
		&item.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &item, nil
}
