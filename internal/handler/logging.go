package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// quietPaths are polled by the host and only logged at debug level.
var quietPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// LoggerMiddleware logs every control surface request. Server errors are
// logged as warnings. Request bodies are never logged.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.Int("size", c.Writer.Size()),
		}
		if shopID := c.GetString("shop_id"); shopID != "" {
			fields = append(fields, zap.String("shop_id", shopID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		logger.Log(requestLevel(path, status), "HTTP request", fields...)
	}
}

func requestLevel(path string, status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.WarnLevel
	case strings.HasPrefix(path, "/api/v1/events"):
		// Logged once when the stream ends, which may be hours later.
		return zapcore.DebugLevel
	}
	if _, ok := quietPaths[path]; ok {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
