package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/internal/repository"
	"github.com/prperemyshlev/shop-session/pkg/observability"
	"go.uber.org/zap"
)

// SessionManager owns the logical session state. It is the only writer of the
// credential slots and the profile snapshot.
type SessionManager struct {
	mu       sync.Mutex
	state    domain.SessionState
	creds    *CredentialStore
	profiles repository.ProfileRepository
	topic    *Topic[domain.SessionState]
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewSessionManager creates a manager in the Uninitialized state
func NewSessionManager(
	creds *CredentialStore,
	profiles repository.ProfileRepository,
	events *EventBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SessionManager {
	return &SessionManager{
		state:    domain.SessionState{Status: domain.SessionUninitialized},
		creds:    creds,
		profiles: profiles,
		topic:    events.Session,
		metrics:  metrics,
		logger:   logger.Named("session"),
	}
}

// State returns the current session snapshot
func (m *SessionManager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe streams subsequent state transitions. A slow reader may miss some.
func (m *SessionManager) Subscribe() (<-chan domain.SessionState, func()) {
	return m.topic.Subscribe()
}

// SubscribeQueued streams every subsequent state transition in order.
func (m *SessionManager) SubscribeQueued() (<-chan domain.SessionState, func()) {
	return m.topic.SubscribeQueued()
}

// Login persists both credentials and the profile, then becomes Authenticated.
// If any write fails the written slots are rolled back and the previous
// session, credentials included, is kept.
func (m *SessionManager) Login(ctx context.Context, profile domain.Profile, accessToken, refreshToken string) error {
	if accessToken == "" && refreshToken == "" {
		return fmt.Errorf("login without credentials: %w", domain.ErrCredentialAbsent)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var previous domain.TokenPair
	if m.state.IsAuthenticated() {
		previous = m.creds.Tokens(ctx)
	}

	if err := m.persistLogin(ctx, &profile, accessToken, refreshToken); err != nil {
		m.rollbackLogin(ctx, previous)
		return fmt.Errorf("failed to login: %w", err)
	}

	m.transitionLocked(domain.SessionState{Status: domain.SessionAuthenticated, Profile: &profile})
	m.logger.Info("Session authenticated",
		zap.String("user_id", profile.UserID),
		zap.String("shop_id", profile.ShopID),
		zap.String("role", string(profile.Role)),
	)
	return nil
}

// Logout clears credentials and profile. Calling it while unauthenticated is a no-op.
func (m *SessionManager) Logout(ctx context.Context) error {
	return m.logout(ctx, domain.LogoutUser)
}

// Expire is the forced logout used when credentials can no longer be renewed.
func (m *SessionManager) Expire(ctx context.Context) error {
	return m.logout(ctx, domain.LogoutExpired)
}

// Initialize reconciles the persisted profile with the stored credentials:
//
//	tokens + profile    -> Authenticated
//	no tokens           -> Unauthenticated, profile cleared
//	tokens, no profile  -> Unauthenticated, profile left untouched
//
// It must run after any persisted-state restore and is idempotent.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens := m.creds.Tokens(ctx)

	profile, err := m.profiles.Load(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		// An unreadable snapshot is treated like a missing one.
		m.logger.Error("Failed to load profile snapshot", zap.Error(err))
		profile = nil
	}

	switch {
	case tokens.Present() && profile != nil:
		m.transitionLocked(domain.SessionState{Status: domain.SessionAuthenticated, Profile: profile})
	case !tokens.Present():
		if profile != nil {
			if err := m.profiles.Clear(ctx); err != nil {
				m.logger.Error("Failed to clear orphaned profile", zap.Error(err))
			}
		}
		m.transitionLocked(domain.SessionState{Status: domain.SessionUnauthenticated, Reason: domain.LogoutNoTokens})
	default:
		// The profile may still be arriving from a restore pass; keep whatever is there.
		m.transitionLocked(domain.SessionState{Status: domain.SessionUnauthenticated, Reason: domain.LogoutNoTokens})
	}

	m.logger.Info("Session initialized", zap.String("state", m.state.Status.String()))
	return nil
}

func (m *SessionManager) logout(ctx context.Context, reason domain.LogoutReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logoutLocked(ctx, reason)
	return nil
}

func (m *SessionManager) logoutLocked(ctx context.Context, reason domain.LogoutReason) {
	var errs []error
	if err := m.creds.ClearAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.profiles.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		// The in-memory state still moves to Unauthenticated.
		m.logger.Error("Failed to clear persisted session", zap.Error(errors.Join(errs...)))
	}

	if m.state.Status == domain.SessionUnauthenticated {
		return
	}

	m.transitionLocked(domain.SessionState{Status: domain.SessionUnauthenticated, Reason: reason})
	m.logger.Info("Session ended", zap.String("reason", string(reason)))
}

func (m *SessionManager) persistLogin(ctx context.Context, profile *domain.Profile, accessToken, refreshToken string) error {
	if err := m.creds.SetAccess(ctx, accessToken); err != nil {
		return err
	}
	if err := m.creds.SetRefresh(ctx, refreshToken); err != nil {
		return err
	}
	return m.profiles.Save(ctx, profile)
}

// rollbackLogin undoes a partial login. A session that was already
// authenticated gets its previous credentials and profile back; if they cannot
// be restored the session ends instead of staying Authenticated without tokens.
func (m *SessionManager) rollbackLogin(ctx context.Context, previous domain.TokenPair) {
	if !m.state.IsAuthenticated() {
		if err := m.creds.ClearAll(ctx); err != nil {
			m.logger.Error("Failed to roll back credentials", zap.Error(err))
		}
		if err := m.profiles.Clear(ctx); err != nil {
			m.logger.Error("Failed to roll back profile", zap.Error(err))
		}
		return
	}

	if err := m.restoreLocked(ctx, previous); err != nil {
		m.logger.Error("Failed to restore previous session", zap.Error(err))
		m.logoutLocked(ctx, domain.LogoutExpired)
	}
}

func (m *SessionManager) restoreLocked(ctx context.Context, previous domain.TokenPair) error {
	if !previous.Present() {
		return fmt.Errorf("previous credentials unavailable: %w", domain.ErrCredentialAbsent)
	}
	if err := m.creds.SetAccess(ctx, previous.AccessToken); err != nil {
		return err
	}
	if err := m.creds.SetRefresh(ctx, previous.RefreshToken); err != nil {
		return err
	}
	return m.profiles.Save(ctx, m.state.Profile)
}

// transitionLocked publishes only real changes so redundant Initialize calls stay silent.
func (m *SessionManager) transitionLocked(next domain.SessionState) {
	if sameSession(m.state, next) {
		return
	}
	m.state = next
	m.metrics.SessionTransition(next.Status.String())
	m.topic.Publish(next)
}

func sameSession(a, b domain.SessionState) bool {
	if a.Status != b.Status {
		return false
	}
	if a.Status != domain.SessionAuthenticated {
		return true
	}
	return a.Profile != nil && b.Profile != nil && *a.Profile == *b.Profile
}
