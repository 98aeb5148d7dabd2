package domain

import "time"

type Role string

const (
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
)

// Profile is the user snapshot persisted next to the credentials.
type Profile struct {
	UserID      string    `json:"userId"`
	ShopID      string    `json:"shopId"`
	ShopName    string    `json:"shopName"`
	PhoneNumber string    `json:"phoneNumber"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsOwner reports whether the user owns the shop.
func (p Profile) IsOwner() bool {
	return p.Role == RoleOwner
}
