package service

import (
	"context"

	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/internal/dto"
)

// AuthService defines sign-in and sign-out against the remote API
type AuthService interface {
	SignIn(ctx context.Context, req *dto.SignInRequest) (*domain.Profile, error)
	SignOut(ctx context.Context) error
}

// NotificationService defines the notification operations exposed to the host UI
type NotificationService interface {
	PushHandler
	Sync(ctx context.Context) error
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
	List() []domain.Notification
	UnreadCount() int
	Reset(ctx context.Context)
}
