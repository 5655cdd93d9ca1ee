package logging

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronLogger adapts a slog.Logger to cron.Logger. Cron's informational chatter
// is logged at debug level.
type CronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = (*CronLogger)(nil)

// NewCronLogger wraps logger. A nil logger uses slog.Default.
func NewCronLogger(logger *slog.Logger) *CronLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronLogger{logger: logger.With("component", "cron")}
}

func (l *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}
