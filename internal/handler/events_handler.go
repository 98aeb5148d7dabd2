package handler

import (
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/shop-session/internal/dto"
	"github.com/prperemyshlev/shop-session/internal/service"
	"go.uber.org/zap"
)

// SSE event names
const (
	sseSession      = "session"
	sseConnection   = "connection"
	sseNotification = "notification"
	sseBanner       = "banner"
	sseNative       = "native"
)

// EventsHandler streams state changes to the host UI as server-sent events
type EventsHandler struct {
	bus     *service.EventBus
	session SessionReader
	channel ConnectionController
	logger  *zap.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(bus *service.EventBus, session SessionReader, channel ConnectionController, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		bus:     bus,
		session: session,
		channel: channel,
		logger:  logger,
		closed:  make(chan struct{}),
	}
}

// Close ends every open stream so server shutdown does not wait on them.
func (h *EventsHandler) Close() {
	h.closeOnce.Do(func() { close(h.closed) })
}

// Stream opens the event stream. The current session and connection state
// are sent first, then every change until the client goes away.
// @Summary Event stream
// @Tags events
// @Produce text/event-stream
// @Router /api/v1/events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	sessions, unsubSession := h.bus.Session.Subscribe()
	defer unsubSession()
	connections, unsubConnection := h.bus.Connection.Subscribe()
	defer unsubConnection()
	notifications, unsubNotification := h.bus.Notification.Subscribe()
	defer unsubNotification()
	banners, unsubBanner := h.bus.Banner.Subscribe()
	defer unsubBanner()
	native, unsubNative := h.bus.Native.Subscribe()
	defer unsubNative()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(sseSession, dto.NewSessionResponse(h.session.State()))
	c.SSEvent(sseConnection, dto.NewConnectionResponse(h.channel.Status(), h.channel.ReconnectPending()))
	c.Writer.Flush()

	h.logger.Debug("Event stream opened", zap.String("ip", c.ClientIP()))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-h.closed:
			return false
		case s, ok := <-sessions:
			if !ok {
				return false
			}
			c.SSEvent(sseSession, dto.NewSessionResponse(s))
		case s, ok := <-connections:
			if !ok {
				return false
			}
			c.SSEvent(sseConnection, dto.NewConnectionResponse(s, h.channel.ReconnectPending()))
		case n, ok := <-notifications:
			if !ok {
				return false
			}
			c.SSEvent(sseNotification, dto.NewNotificationResponse(n))
		case b, ok := <-banners:
			if !ok {
				return false
			}
			c.SSEvent(sseBanner, b)
		case cmd, ok := <-native:
			if !ok {
				return false
			}
			c.SSEvent(sseNative, cmd)
		}
		return true
	})

	h.logger.Debug("Event stream closed", zap.String("ip", c.ClientIP()))
}
