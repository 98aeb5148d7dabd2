package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/internal/dto"
	"go.uber.org/zap"
)

// ErrInvalidCredentials is returned when the remote API rejects a sign-in
var ErrInvalidCredentials = errors.New("invalid phone number or password")

// AuthPaths locates the remote sign-in endpoints
type AuthPaths struct {
	Login  string
	Logout string
}

// authService implements AuthService interface
type authService struct {
	gateway *Gateway
	session *SessionManager
	creds   *CredentialStore
	paths   AuthPaths
	logger  *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	gateway *Gateway,
	session *SessionManager,
	creds *CredentialStore,
	paths AuthPaths,
	logger *zap.Logger,
) AuthService {
	return &authService{
		gateway: gateway,
		session: session,
		creds:   creds,
		paths:   paths,
		logger:  logger.Named("auth"),
	}
}

// SignIn authenticates against the remote API and starts a session
func (s *authService) SignIn(ctx context.Context, req *dto.SignInRequest) (*domain.Profile, error) {
	var result dto.LoginResult
	err := s.gateway.DoJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   s.paths.Login,
		Body:   dto.LoginPayload{PhoneNumber: req.PhoneNumber, Password: req.Password},
	}, &result)
	if err != nil {
		if errors.Is(err, domain.ErrAuthenticationExpired) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	if result.AccessToken == "" || result.User.ID == "" {
		return nil, &APIError{Kind: domain.ErrUnknown, Message: "login response without credentials or user"}
	}

	profile := result.User.ToProfile()
	if err := s.session.Login(ctx, profile, result.AccessToken, result.RefreshToken); err != nil {
		return nil, err
	}

	return &profile, nil
}

// SignOut tells the remote API to revoke the refresh credential, then always
// ends the local session.
func (s *authService) SignOut(ctx context.Context) error {
	if refreshToken := s.creds.GetRefresh(ctx); refreshToken != "" {
		err := s.gateway.DoJSON(ctx, Request{
			Method: http.MethodPost,
			Path:   s.paths.Logout,
			Body:   dto.LogoutPayload{RefreshToken: refreshToken},
		}, nil)
		if err != nil {
			s.logger.Warn("Remote logout failed", zap.Error(err))
		}
	}

	return s.session.Logout(ctx)
}
