package observability

import (
	"go.uber.org/zap"
)

// CronLogger adapts zap to the robfig/cron Logger interface
type CronLogger struct {
	sugar *zap.SugaredLogger
}

// NewCronLogger creates a cron logger writing through logger
func NewCronLogger(logger *zap.Logger) CronLogger {
	return CronLogger{sugar: logger.Sugar()}
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
