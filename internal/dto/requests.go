package dto

import "github.com/prperemyshlev/shop-session/internal/domain"

// SignInRequest represents a sign-in request from the host UI
type SignInRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required,min=6,max=20"`
	Password    string `json:"password" binding:"required"`
}

// PermissionRequest carries the host's native notification permission
type PermissionRequest struct {
	Permission domain.Permission `json:"permission" binding:"required,oneof=default granted denied"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
