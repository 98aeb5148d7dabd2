package dto

import (
	"time"

	"github.com/prperemyshlev/shop-session/internal/domain"
)

// SessionResponse represents the current session
type SessionResponse struct {
	State   string           `json:"state"`
	Reason  string           `json:"reason,omitempty"`
	Profile *ProfileResponse `json:"profile,omitempty"`
}

// ProfileResponse represents the signed-in user
type ProfileResponse struct {
	UserID      string `json:"userId"`
	ShopID      string `json:"shopId"`
	ShopName    string `json:"shopName"`
	PhoneNumber string `json:"phoneNumber"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// ConnectionResponse represents the real-time channel status
type ConnectionResponse struct {
	State            string `json:"state"`
	Error            string `json:"error,omitempty"`
	ReconnectPending bool   `json:"reconnectPending"`
}

// NotificationResponse represents one notification
type NotificationResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	IsRead    bool   `json:"isRead"`
	CreatedAt string `json:"createdAt"`
}

// NotificationListResponse represents the notification list
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	UnreadCount   int                    `json:"unreadCount"`
}

// PermissionResponse represents the native notification permission
type PermissionResponse struct {
	Permission string `json:"permission"`
}

func NewSessionResponse(s domain.SessionState) SessionResponse {
	resp := SessionResponse{
		State:  s.Status.String(),
		Reason: string(s.Reason),
	}
	if s.Profile != nil {
		resp.Profile = &ProfileResponse{
			UserID:      s.Profile.UserID,
			ShopID:      s.Profile.ShopID,
			ShopName:    s.Profile.ShopName,
			PhoneNumber: s.Profile.PhoneNumber,
			DisplayName: s.Profile.DisplayName,
			Role:        string(s.Profile.Role),
		}
	}
	return resp
}

func NewConnectionResponse(s domain.ConnectionStatus, reconnectPending bool) ConnectionResponse {
	return ConnectionResponse{
		State:            s.State.String(),
		Error:            s.Error,
		ReconnectPending: reconnectPending,
	}
}

func NewNotificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      string(n.Type),
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

func NewNotificationListResponse(records []domain.Notification, unread int) NotificationListResponse {
	resp := NotificationListResponse{
		Notifications: make([]NotificationResponse, 0, len(records)),
		UnreadCount:   unread,
	}
	for _, n := range records {
		resp.Notifications = append(resp.Notifications, NewNotificationResponse(n))
	}
	return resp
}
