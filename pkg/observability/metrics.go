package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// PrometheusHandler returns a Gin handler for Prometheus metrics
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}

// Metrics holds the session subsystem instruments. A nil *Metrics is valid
// and records nothing, which keeps component tests free of telemetry setup.
type Metrics struct {
	sessionTransitions     otelmetric.Int64Counter
	renewals               otelmetric.Int64Counter
	connects               otelmetric.Int64Counter
	reconnectsScheduled    otelmetric.Int64Counter
	notificationsReceived  otelmetric.Int64Counter
	notificationsDelivered otelmetric.Int64Counter
}

// NewMetrics creates all instruments on meter
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.sessionTransitions, err = meter.Int64Counter("session_transitions_total",
		otelmetric.WithDescription("Session state transitions by resulting state.")); err != nil {
		return nil, fmt.Errorf("failed to create session_transitions_total: %w", err)
	}
	if m.renewals, err = meter.Int64Counter("credential_renewals_total",
		otelmetric.WithDescription("Credential renewal attempts by outcome.")); err != nil {
		return nil, fmt.Errorf("failed to create credential_renewals_total: %w", err)
	}
	if m.connects, err = meter.Int64Counter("realtime_connects_total",
		otelmetric.WithDescription("Real-time handshakes by outcome.")); err != nil {
		return nil, fmt.Errorf("failed to create realtime_connects_total: %w", err)
	}
	if m.reconnectsScheduled, err = meter.Int64Counter("realtime_reconnects_scheduled_total",
		otelmetric.WithDescription("Reconnect attempts scheduled after a drop.")); err != nil {
		return nil, fmt.Errorf("failed to create realtime_reconnects_scheduled_total: %w", err)
	}
	if m.notificationsReceived, err = meter.Int64Counter("notifications_received_total",
		otelmetric.WithDescription("Inbound pushed notifications by result (new, duplicate, malformed).")); err != nil {
		return nil, fmt.Errorf("failed to create notifications_received_total: %w", err)
	}
	if m.notificationsDelivered, err = meter.Int64Counter("notifications_delivered_total",
		otelmetric.WithDescription("Visible side effects emitted by channel (banner, native).")); err != nil {
		return nil, fmt.Errorf("failed to create notifications_delivered_total: %w", err)
	}

	return m, nil
}

func (m *Metrics) SessionTransition(state string) {
	if m == nil {
		return
	}
	m.sessionTransitions.Add(context.Background(), 1, otelmetric.WithAttributes(attribute.String("state", state)))
}

func (m *Metrics) Renewal(outcome string) {
	if m == nil {
		return
	}
	m.renewals.Add(context.Background(), 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) Connect(outcome string) {
	if m == nil {
		return
	}
	m.connects.Add(context.Background(), 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectsScheduled.Add(context.Background(), 1)
}

func (m *Metrics) NotificationReceived(result string) {
	if m == nil {
		return
	}
	m.notificationsReceived.Add(context.Background(), 1, otelmetric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) NotificationDelivered(channel string) {
	if m == nil {
		return
	}
	m.notificationsDelivered.Add(context.Background(), 1, otelmetric.WithAttributes(attribute.String("channel", channel)))
}
