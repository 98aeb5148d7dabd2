package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/shop-session/internal/domain"
)

// BlobStore is a key-value store of opaque values with optional expiry.
type BlobStore interface {
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// ProfileRepository persists the user profile snapshot.
type ProfileRepository interface {
	// Load returns ErrNotFound when no snapshot is stored.
	Load(ctx context.Context) (*domain.Profile, error)
	Save(ctx context.Context, profile *domain.Profile) error
	Clear(ctx context.Context) error
}
