// Package ratelimit provides a logger wrapper that drops log lines once
// they exceed a configured rate, for use on paths that can be driven by
// the host at arbitrary frequency (store drops, mapping failures).
package ratelimit

import (
	"time"

	"github.com/go-kit/log"
	"golang.org/x/time/rate"
)

// Logger wraps a log.Logger and silently drops calls once the configured
// rate is exceeded, so a host that repeatedly triggers the same warning
// can't flood the log.
type Logger struct {
	limiter *rate.Limiter
	logger  log.Logger
}

// New wraps logger, allowing at most logsPerSecond calls through per
// second, with a burst of one.
func New(logsPerSecond int, logger log.Logger) *Logger {
	return &Logger{
		limiter: rate.NewLimiter(rate.Limit(logsPerSecond), 1),
		logger:  logger,
	}
}

// Log implements log.Logger. A call dropped by the limiter returns nil; a
// call let through returns whatever the wrapped logger returns.
func (l *Logger) Log(keyvals ...interface{}) error {
	if !l.limiter.AllowN(time.Now(), 1) {
		return nil
	}
	return l.logger.Log(keyvals...)
}
