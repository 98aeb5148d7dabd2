package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/internal/repository"
	"github.com/prperemyshlev/shop-session/internal/utils"
	"go.uber.org/zap"
)

// CredentialStore persists the access and refresh tokens in two independent
// expiring slots. Values are sealed at rest; a slot that cannot be opened is
// treated as absent.
type CredentialStore struct {
	store      repository.BlobStore
	sealer     *utils.Sealer
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewCredentialStore creates a credential store
func NewCredentialStore(
	store repository.BlobStore,
	sealer *utils.Sealer,
	accessTTL time.Duration,
	refreshTTL time.Duration,
	logger *zap.Logger,
) *CredentialStore {
	return &CredentialStore{
		store:      store,
		sealer:     sealer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger.Named("credentials"),
		now:        time.Now,
	}
}

// SetAccess stores the access token for at most the configured access TTL
func (c *CredentialStore) SetAccess(ctx context.Context, token string) error {
	return c.set(ctx, repository.StorageKeys.AccessToken, token, c.accessTTL)
}

// SetRefresh stores the refresh token for at most the configured refresh TTL
func (c *CredentialStore) SetRefresh(ctx context.Context, token string) error {
	return c.set(ctx, repository.StorageKeys.RefreshToken, token, c.refreshTTL)
}

// GetAccess returns the access token, or "" when absent
func (c *CredentialStore) GetAccess(ctx context.Context) string {
	return c.get(ctx, repository.StorageKeys.AccessToken)
}

// GetRefresh returns the refresh token, or "" when absent
func (c *CredentialStore) GetRefresh(ctx context.Context) string {
	return c.get(ctx, repository.StorageKeys.RefreshToken)
}

// Tokens returns both credentials
func (c *CredentialStore) Tokens(ctx context.Context) domain.TokenPair {
	return domain.TokenPair{
		AccessToken:  c.GetAccess(ctx),
		RefreshToken: c.GetRefresh(ctx),
	}
}

// ClearAll removes both credentials. Clearing empty slots is not an error.
func (c *CredentialStore) ClearAll(ctx context.Context) error {
	if err := c.store.Delete(ctx, repository.StorageKeys.AccessToken, repository.StorageKeys.RefreshToken); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (c *CredentialStore) set(ctx context.Context, key, token string, ttl time.Duration) error {
	if token == "" {
		return c.store.Delete(ctx, key)
	}

	ttl = utils.EffectiveTTL(token, ttl, c.now())
	if ttl <= 0 {
		c.logger.Warn("Refusing to store expired credential", zap.String("slot", key))
		return c.store.Delete(ctx, key)
	}

	sealed, err := c.sealer.Seal([]byte(token))
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", key, err)
	}

	if err := c.store.Set(ctx, key, sealed, ttl); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (c *CredentialStore) get(ctx context.Context, key string) string {
	sealed, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			c.logger.Error("Failed to read credential slot", zap.String("slot", key), zap.Error(err))
		}
		return ""
	}

	plain, err := c.sealer.Open(sealed)
	if err != nil {
		c.logger.Warn("Discarding credential that failed to open", zap.String("slot", key), zap.Error(err))
		_ = c.store.Delete(ctx, key)
		return ""
	}

	return string(plain)
}
