package service

import (
	"context"
	"sync"

	"github.com/prperemyshlev/shop-session/internal/domain"
)

// NativeNotifier is the permission-gated system notification capability of
// the host environment.
type NativeNotifier interface {
	Permission(ctx context.Context) domain.Permission
	RequestPermission(ctx context.Context) (domain.Permission, error)
	Show(ctx context.Context, id, title, body string) error
	Dismiss(ctx context.Context, id string) error
}

// DisabledNotifier never has permission.
type DisabledNotifier struct{}

func (DisabledNotifier) Permission(context.Context) domain.Permission {
	return domain.PermissionDenied
}

func (DisabledNotifier) RequestPermission(context.Context) (domain.Permission, error) {
	return domain.PermissionDenied, nil
}

func (DisabledNotifier) Show(context.Context, string, string, string) error { return nil }

func (DisabledNotifier) Dismiss(context.Context, string) error { return nil }

// HostNotifier relays native notifications to the host UI, which owns the
// system API and reports the permission it was granted.
type HostNotifier struct {
	mu         sync.RWMutex
	permission domain.Permission
	commands   *Topic[domain.NativeCommand]
}

// NewHostNotifier creates a notifier that has not been granted permission yet
func NewHostNotifier(events *EventBus) *HostNotifier {
	return &HostNotifier{
		permission: domain.PermissionDefault,
		commands:   events.Native,
	}
}

func (h *HostNotifier) Permission(context.Context) domain.Permission {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.permission
}

// SetPermission records the host's answer.
func (h *HostNotifier) SetPermission(p domain.Permission) {
	h.mu.Lock()
	h.permission = p
	h.mu.Unlock()
}

// RequestPermission asks the host to prompt the user. The answer arrives
// later through SetPermission; the current value is returned.
func (h *HostNotifier) RequestPermission(ctx context.Context) (domain.Permission, error) {
	current := h.Permission(ctx)
	if current == domain.PermissionDefault {
		h.commands.Publish(domain.NativeCommand{Action: domain.NativeRequestPermission})
	}
	return current, nil
}

func (h *HostNotifier) Show(_ context.Context, id, title, body string) error {
	h.commands.Publish(domain.NativeCommand{Action: domain.NativeShow, ID: id, Title: title, Body: body})
	return nil
}

func (h *HostNotifier) Dismiss(_ context.Context, id string) error {
	h.commands.Publish(domain.NativeCommand{Action: domain.NativeDismiss, ID: id})
	return nil
}
