package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prperemyshlev/shop-session/internal/domain"
)

// profileRepository implements ProfileRepository as a JSON snapshot in one durable slot
type profileRepository struct {
	store BlobStore
}

// NewProfileRepository creates a profile repository over a durable store
func NewProfileRepository(store BlobStore) ProfileRepository {
	return &profileRepository{store: store}
}

func (r *profileRepository) Load(ctx context.Context) (*domain.Profile, error) {
	raw, err := r.store.Get(ctx, StorageKeys.UserProfile)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	var profile domain.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile snapshot: %w", err)
	}

	return &profile, nil
}

func (r *profileRepository) Save(ctx context.Context, profile *domain.Profile) error {
	if profile == nil {
		return fmt.Errorf("nil profile")
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile snapshot: %w", err)
	}

	if err := r.store.Set(ctx, StorageKeys.UserProfile, raw, 0); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (r *profileRepository) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, StorageKeys.UserProfile); err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	return nil
}
