package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/internal/dto"
	"github.com/prperemyshlev/shop-session/internal/service"
)

// PermissionSetter is implemented by notifiers whose permission is reported by the host
type PermissionSetter interface {
	SetPermission(domain.Permission)
}

// NotificationHandler handles notification requests
type NotificationHandler struct {
	notifications service.NotificationService
	native        service.NativeNotifier
	setter        PermissionSetter
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications service.NotificationService, native service.NativeNotifier) *NotificationHandler {
	setter, _ := native.(PermissionSetter)
	return &NotificationHandler{
		notifications: notifications,
		native:        native,
		setter:        setter,
	}
}

// List returns notifications newest first with the unread count
// @Summary List notifications
// @Tags notifications
// @Produce json
// @Success 200 {object} dto.NotificationListResponse
// @Router /api/v1/notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewNotificationListResponse(h.notifications.List(), h.notifications.UnreadCount()))
}

// MarkRead marks one notification read
// @Summary Mark notification read
// @Tags notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} dto.NotificationListResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.notifications.MarkAsRead(c.Request.Context(), c.Param("id")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrValidationFailure) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.ErrorResponse{
			Error:   http.StatusText(status),
			Message: err.Error(),
		})
		return
	}

	h.List(c)
}

// MarkAllRead marks every notification read
// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Success 200 {object} dto.NotificationListResponse
// @Router /api/v1/notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if err := h.notifications.MarkAllAsRead(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	h.List(c)
}

// GetPermission returns the native notification permission
// @Summary Native notification permission
// @Tags notifications
// @Produce json
// @Success 200 {object} dto.PermissionResponse
// @Router /api/v1/notifications/permission [get]
func (h *NotificationHandler) GetPermission(c *gin.Context) {
	c.JSON(http.StatusOK, dto.PermissionResponse{Permission: string(h.native.Permission(c.Request.Context()))})
}

// SetPermission records the permission the host was granted
// @Summary Report native notification permission
// @Tags notifications
// @Accept json
// @Produce json
// @Param request body dto.PermissionRequest true "Permission"
// @Success 200 {object} dto.PermissionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/notifications/permission [put]
func (h *NotificationHandler) SetPermission(c *gin.Context) {
	if h.setter == nil {
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "Conflict",
			Message: "Native notifications are disabled",
		})
		return
	}

	var req dto.PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	h.setter.SetPermission(req.Permission)
	c.JSON(http.StatusOK, dto.PermissionResponse{Permission: string(req.Permission)})
}

// RequestPermission asks the host to prompt for permission
// @Summary Request native notification permission
// @Tags notifications
// @Produce json
// @Success 202 {object} dto.PermissionResponse
// @Router /api/v1/notifications/permission/request [post]
func (h *NotificationHandler) RequestPermission(c *gin.Context) {
	permission, err := h.native.RequestPermission(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.PermissionResponse{Permission: string(permission)})
}
