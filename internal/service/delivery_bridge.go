package service

import (
	"context"
	"sync"
	"time"

	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/pkg/observability"
	"go.uber.org/zap"
)

const sessionExpiredMessage = "Your session has expired. Please sign in again."

// DeliveryBridge turns each new live notification into user-visible side
// effects: one in-app banner and, when the host granted permission, one
// native notification that is dismissed after a fixed interval.
type DeliveryBridge struct {
	mu           sync.Mutex
	banners      *Topic[domain.Banner]
	native       NativeNotifier
	dismissAfter time.Duration
	timers       map[string]*time.Timer
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewDeliveryBridge creates a delivery bridge
func NewDeliveryBridge(
	native NativeNotifier,
	dismissAfter time.Duration,
	events *EventBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *DeliveryBridge {
	if native == nil {
		native = DisabledNotifier{}
	}
	return &DeliveryBridge{
		banners:      events.Banner,
		native:       native,
		dismissAfter: dismissAfter,
		timers:       make(map[string]*time.Timer),
		metrics:      metrics,
		logger:       logger.Named("delivery"),
	}
}

// Deliver emits the side effects for a genuinely new record. Callers must
// have deduplicated it already.
func (b *DeliveryBridge) Deliver(ctx context.Context, n domain.Notification) {
	b.banners.Publish(domain.Banner{
		Kind:           domain.BannerNotification,
		Title:          n.Type.Title(),
		Message:        n.Message,
		NotificationID: n.ID,
		Type:           n.Type,
	})
	b.metrics.NotificationDelivered("banner")

	if b.native.Permission(ctx) != domain.PermissionGranted {
		return
	}

	if err := b.native.Show(ctx, n.ID, n.Type.Title(), n.Message); err != nil {
		b.logger.Warn("Failed to show native notification", zap.String("notification_id", n.ID), zap.Error(err))
		return
	}
	b.metrics.NotificationDelivered("native")
	b.armDismiss(n.ID)
}

// Interact dismisses the native notification of id on user interaction.
func (b *DeliveryBridge) Interact(ctx context.Context, id string) {
	b.mu.Lock()
	timer, ok := b.timers[id]
	if ok {
		timer.Stop()
		delete(b.timers, id)
	}
	b.mu.Unlock()

	if ok {
		b.dismiss(ctx, id)
	}
}

// DismissAll dismisses every native notification still showing
func (b *DeliveryBridge) DismissAll(ctx context.Context) {
	b.mu.Lock()
	ids := make([]string, 0, len(b.timers))
	for id, timer := range b.timers {
		timer.Stop()
		ids = append(ids, id)
	}
	b.timers = make(map[string]*time.Timer)
	b.mu.Unlock()

	for _, id := range ids {
		b.dismiss(ctx, id)
	}
}

// SessionExpired shows the generic notice for a forced logout.
func (b *DeliveryBridge) SessionExpired() {
	b.banners.Publish(domain.Banner{
		Kind:    domain.BannerSessionExpired,
		Title:   "Session expired",
		Message: sessionExpiredMessage,
	})
}

// Showing returns the number of native notifications awaiting dismissal.
func (b *DeliveryBridge) Showing() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timers)
}

func (b *DeliveryBridge) armDismiss(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.timers[id]; ok {
		old.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(b.dismissAfter, func() {
		b.mu.Lock()
		current, ok := b.timers[id]
		if !ok || current != timer {
			b.mu.Unlock()
			return
		}
		delete(b.timers, id)
		b.mu.Unlock()

		b.dismiss(context.Background(), id)
	})
	b.timers[id] = timer
}

func (b *DeliveryBridge) dismiss(ctx context.Context, id string) {
	if err := b.native.Dismiss(ctx, id); err != nil {
		b.logger.Warn("Failed to dismiss native notification", zap.String("notification_id", id), zap.Error(err))
	}
}
