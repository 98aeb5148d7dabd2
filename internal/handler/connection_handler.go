package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/internal/dto"
)

// ConnectionController exposes the real-time channel to the host UI
type ConnectionController interface {
	Status() domain.ConnectionStatus
	ReconnectPending() bool
	Ping() error
}

// ConnectionHandler handles real-time channel requests
type ConnectionHandler struct {
	channel ConnectionController
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(channel ConnectionController) *ConnectionHandler {
	return &ConnectionHandler{channel: channel}
}

// Get returns the channel state and last error
// @Summary Real-time connection status
// @Tags connection
// @Produce json
// @Success 200 {object} dto.ConnectionResponse
// @Router /api/v1/connection [get]
func (h *ConnectionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewConnectionResponse(h.channel.Status(), h.channel.ReconnectPending()))
}

// Ping sends a keepalive over the channel
// @Summary Send keepalive ping
// @Tags connection
// @Produce json
// @Success 202 {object} dto.SuccessResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/connection/ping [post]
func (h *ConnectionHandler) Ping(c *gin.Context) {
	if err := h.channel.Ping(); err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			c.JSON(http.StatusConflict, dto.ErrorResponse{
				Error:   "Conflict",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "Bad gateway",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.SuccessResponse{Message: "Ping sent"})
}
