package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SessionTransition("authenticated")
		m.Renewal("success")
		m.Connect("failed")
		m.ReconnectScheduled()
		m.NotificationReceived("new")
		m.NotificationDelivered("banner")
	})
}

func TestMetricsExportedThroughPrometheus(t *testing.T) {
	provider, handler, err := InitTelemetry("shop_session_test")
	require.NoError(t, err)

	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	m.Renewal("success")
	m.NotificationReceived("duplicate")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics", PrometheusHandler(handler))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "credential_renewals_total")
	assert.Contains(t, string(body), `result="duplicate"`)
}

func TestPrometheusHandlerWithoutHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics", PrometheusHandler(nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
