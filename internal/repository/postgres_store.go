package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/shop-session/pkg/database"
)

// postgresBlobStore implements BlobStore on the kv_blobs table
type postgresBlobStore struct {
	db  *database.Postgres
	now func() time.Time
}

// NewPostgresBlobStore creates a Postgres-backed slot store
func NewPostgresBlobStore(db *database.Postgres) BlobStore {
	return &postgresBlobStore{db: db, now: time.Now}
}

// Get reads a slot; rows past their expiry are purged and reported as absent
func (r *postgresBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	query := `
		SELECT value, expires_at
		FROM kv_blobs
		WHERE key = $1
	`

	var value []byte
	var expiresAt sql.NullTime

	err := r.db.DB.QueryRowContext(ctx, query, key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("slot %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read slot %s: %w", key, err)
	}

	if expiresAt.Valid && !r.now().Before(expiresAt.Time) {
		if err := r.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("slot %s expired: %w", key, ErrNotFound)
	}

	return value, nil
}

// Set upserts a slot
func (r *postgresBlobStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}

	query := `
		INSERT INTO kv_blobs (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
	`

	now := r.now()
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	if _, err := r.db.DB.ExecContext(ctx, query, key, value, expiresAt, now); err != nil {
		return fmt.Errorf("failed to write slot %s: %w", key, err)
	}

	return nil
}

// Delete removes slots
func (r *postgresBlobStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := r.db.DB.ExecContext(ctx, `DELETE FROM kv_blobs WHERE key = $1`, key); err != nil {
			return fmt.Errorf("failed to delete slot %s: %w", key, err)
		}
	}
	return nil
}
