package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeviceRepositoryPG resolves per-user device sync targets. Pairing and
// management of devices belong to the surrounding application; the
// pipeline only reads the webhook URL.
type DeviceRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository creates a device repository backed by PostgreSQL.
func NewDeviceRepository(pool *pgxpool.Pool) *DeviceRepositoryPG {
	return &DeviceRepositoryPG{pool: pool}
}

// Target returns the user's device webhook URL, or "" when no device is
// paired.
func (r *DeviceRepositoryPG) Target(ctx context.Context, ownerID string) (string, error) {
	var target string
	err := r.pool.QueryRow(ctx,
		`SELECT webhook_url FROM user_devices WHERE user_id = $1 AND is_active = true LIMIT 1;`,
		ownerID,
	).Scan(&target)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return target, nil
}
