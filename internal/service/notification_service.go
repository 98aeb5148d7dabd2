package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/pkg/observability"
	"go.uber.org/zap"
)

// notificationService implements NotificationService interface
type notificationService struct {
	store   *NotificationStore
	bridge  *DeliveryBridge
	gateway *Gateway
	session *SessionManager
	path    string
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewNotificationService creates a new notification service. path is the
// remote notification collection, e.g. /notifications.
func NewNotificationService(
	store *NotificationStore,
	bridge *DeliveryBridge,
	gateway *Gateway,
	session *SessionManager,
	path string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) NotificationService {
	return &notificationService{
		store:   store,
		bridge:  bridge,
		gateway: gateway,
		session: session,
		path:    path,
		metrics: metrics,
		logger:  logger.Named("notifications"),
	}
}

// HandlePush stores a live notification and delivers it once
func (s *notificationService) HandlePush(ctx context.Context, n domain.Notification) {
	if !s.store.UpsertOne(n) {
		s.metrics.NotificationReceived("duplicate")
		s.logger.Debug("Absorbed notification",
			zap.String("notification_id", n.ID),
			zap.Error(domain.ErrDuplicateDelivery),
		)
		return
	}

	s.metrics.NotificationReceived("new")
	s.bridge.Deliver(ctx, n)
}

// Sync pulls the notification list and loads it into an empty store.
// Pulled records never produce delivery side effects.
func (s *notificationService) Sync(ctx context.Context) error {
	if !s.session.State().IsAuthenticated() {
		return nil
	}

	var page notificationPage
	if err := s.gateway.DoJSON(ctx, Request{Method: http.MethodGet, Path: s.path}, &page); err != nil {
		return fmt.Errorf("failed to pull notifications: %w", err)
	}

	applied := s.store.ReplaceAll(page)
	s.logger.Debug("Notification pull finished",
		zap.Int("pulled", len(page)),
		zap.Bool("applied", applied),
	)
	return nil
}

// MarkAsRead marks one notification read locally, then on the remote API
func (s *notificationService) MarkAsRead(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("notification id is required: %w", domain.ErrValidationFailure)
	}

	s.bridge.Interact(ctx, id)
	if !s.store.MarkRead(id) {
		return nil
	}

	s.remote(ctx, Request{
		Method: http.MethodPatch,
		Path:   s.path + "/" + url.PathEscape(id) + "/read",
	})
	return nil
}

// MarkAllAsRead marks everything read locally, then on the remote API
func (s *notificationService) MarkAllAsRead(ctx context.Context) error {
	s.store.MarkAllRead()
	s.bridge.DismissAll(ctx)

	s.remote(ctx, Request{
		Method: http.MethodPatch,
		Path:   s.path + "/read-all",
	})
	return nil
}

func (s *notificationService) List() []domain.Notification {
	return s.store.List()
}

func (s *notificationService) UnreadCount() int {
	return s.store.UnreadCount()
}

// Reset empties the store and dismisses anything still showing
func (s *notificationService) Reset(ctx context.Context) {
	s.store.Reset()
	s.bridge.DismissAll(ctx)
}

// remote mirrors a read mark on the server. Local state already changed, so
// a failure is only logged.
func (s *notificationService) remote(ctx context.Context, req Request) {
	if err := s.gateway.DoJSON(ctx, req, nil); err != nil {
		s.logger.Warn("Failed to sync read state",
			zap.String("path", req.Path),
			zap.Error(err),
		)
	}
}

// notificationPage accepts a bare list or an object holding the list.
type notificationPage []domain.Notification

func (p *notificationPage) UnmarshalJSON(data []byte) error {
	var list []domain.Notification
	if err := json.Unmarshal(data, &list); err == nil {
		*p = list
		return nil
	}

	var wrapped struct {
		Notifications []domain.Notification `json:"notifications"`
		Items         []domain.Notification `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	if wrapped.Notifications != nil {
		*p = wrapped.Notifications
	} else {
		*p = wrapped.Items
	}
	return nil
}
