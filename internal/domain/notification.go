package domain

import (
	"fmt"
	"strings"
	"time"
)

type NotificationType string

const (
	NotificationLowStock      NotificationType = "low_stock"
	NotificationOutOfStock    NotificationType = "out_of_stock"
	NotificationSaleCompleted NotificationType = "sale_completed"
	NotificationOther         NotificationType = "other"
)

// Notification is a server-assigned business event delivered to the user.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Normalize folds unknown types into NotificationOther.
func (n *Notification) Normalize() {
	n.ID = strings.TrimSpace(n.ID)
	switch n.Type {
	case NotificationLowStock, NotificationOutOfStock, NotificationSaleCompleted, NotificationOther:
	default:
		n.Type = NotificationOther
	}
}

// Validate reports ErrMalformedPayload when a required field is missing.
func (n Notification) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("notification without id: %w", ErrMalformedPayload)
	}
	if strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("notification %s without message: %w", n.ID, ErrMalformedPayload)
	}
	return nil
}

// BannerKind distinguishes in-app banners.
type BannerKind string

const (
	BannerNotification   BannerKind = "notification"
	BannerSessionExpired BannerKind = "session_expired"
)

// Banner is a transient in-app message shown by the host UI.
type Banner struct {
	Kind           BannerKind       `json:"kind"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	NotificationID string           `json:"notificationId,omitempty"`
	Type           NotificationType `json:"type,omitempty"`
}

// Title returns a human label for the notification type.
func (t NotificationType) Title() string {
	switch t {
	case NotificationLowStock:
		return "Low stock"
	case NotificationOutOfStock:
		return "Out of stock"
	case NotificationSaleCompleted:
		return "Sale completed"
	default:
		return "Notification"
	}
}

// Permission is the host's answer to whether native notifications may be shown.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Valid reports a known permission value
func (p Permission) Valid() bool {
	switch p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return true
	}
	return false
}

// NativeAction is what the host is asked to do with a system notification.
type NativeAction string

const (
	NativeShow              NativeAction = "show"
	NativeDismiss           NativeAction = "dismiss"
	NativeRequestPermission NativeAction = "request_permission"
)

// NativeCommand is relayed to the host, which owns the system notification API.
type NativeCommand struct {
	Action NativeAction `json:"action"`
	ID     string       `json:"id,omitempty"`
	Title  string       `json:"title,omitempty"`
	Body   string       `json:"body,omitempty"`
}
