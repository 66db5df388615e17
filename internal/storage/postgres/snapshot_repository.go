package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
)

const opTimeout = 5 * time.Second

type snapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository создаёт PostgreSQL-реализацию SnapshotStore.
// Снапшоты хранятся как JSONB, один ряд на ключ кэша.
func NewSnapshotRepository(store *Store) domain.SnapshotStore {
	return &snapshotRepository{db: store.DB()}
}

func (r *snapshotRepository) Get(ctx context.Context, key string) (domain.Snapshot, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Snapshot{}, domain.ErrCacheKeyRequired
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var snap domain.Snapshot
	err := r.db.QueryRowContext(opCtx, `
		SELECT data, snapshot_at
		FROM cache_snapshots
		WHERE key = $1
	`, key).Scan(&snap.Data, &snap.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrSnapshotNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("get cache snapshot: %w", err)
	}

	return snap, nil
}

func (r *snapshotRepository) Set(ctx context.Context, key string, snap domain.Snapshot) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrCacheKeyRequired
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	data := snap.Data
	if len(data) == 0 {
		data = []byte("null")
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(opCtx, `
		INSERT INTO cache_snapshots (key, data, snapshot_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data,
		    snapshot_at = EXCLUDED.snapshot_at,
		    updated_at = NOW()
	`, key, []byte(data), snap.Timestamp)
	if err != nil {
		return fmt.Errorf("set cache snapshot: %w", err)
	}

	return nil
}

func (r *snapshotRepository) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrCacheKeyRequired
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(opCtx, `
		DELETE FROM cache_snapshots
		WHERE key = $1
	`, key); err != nil {
		return fmt.Errorf("delete cache snapshot: %w", err)
	}

	return nil
}

func (r *snapshotRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if cutoff.IsZero() {
		return 0, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(opCtx, `
		DELETE FROM cache_snapshots
		WHERE snapshot_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale cache snapshots: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("snapshot rows affected: %w", err)
	}

	return int(affected), nil
}

var _ domain.SnapshotStore = (*snapshotRepository)(nil)
