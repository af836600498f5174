package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepositoryPG implements domain.SessionRepository. Token issuance
// and validation live in the auth layer; the scheduler only sweeps
// expired rows.
type SessionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a session repository backed by PostgreSQL.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepositoryPG {
	return &SessionRepositoryPG{pool: pool}
}

// PurgeExpired deletes sessions that expired before asOf and returns the
// number of rows removed.
func (r *SessionRepositoryPG) PurgeExpired(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1;`, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
