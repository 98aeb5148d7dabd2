package dto

import (
	"time"

	"github.com/prperemyshlev/shop-session/internal/domain"
)

// LoginPayload is the body posted to the remote login endpoint
type LoginPayload struct {
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

// LogoutPayload is the body posted to the remote logout endpoint
type LogoutPayload struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// LoginResult is the unwrapped payload of a remote login response
type LoginResult struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         RemoteUser `json:"user"`
}

// RemoteUser is the user record returned by the remote API
type RemoteUser struct {
	ID          string    `json:"id"`
	ShopID      string    `json:"shopId"`
	ShopName    string    `json:"shopName"`
	PhoneNumber string    `json:"phoneNumber"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ToProfile maps the remote user to the persisted profile snapshot
func (u RemoteUser) ToProfile() domain.Profile {
	role := domain.Role(u.Role)
	if role != domain.RoleOwner {
		role = domain.RoleStaff
	}
	return domain.Profile{
		UserID:      u.ID,
		ShopID:      u.ShopID,
		ShopName:    u.ShopName,
		PhoneNumber: u.PhoneNumber,
		DisplayName: u.Name,
		Role:        role,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
