// Package ratelimit paces outgoing tracker requests.
// Pacing is off by default: the worklog pipeline imposes no concurrency cap,
// and a limiter is only installed when the operator configures one.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	requestWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting for the client-side rate limiter",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	requestThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_rate_limit_throttles_total",
		Help: "Total number of requests delayed by the client-side rate limiter",
	})
)

// Limiter gates requests to the tracker. A nil *Limiter or one created with
// a non-positive rate never blocks.
type Limiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewLimiter creates a limiter allowing requestsPerSecond with the given burst.
func NewLimiter(requestsPerSecond float64, burst int, logger zerolog.Logger) *Limiter {
	if requestsPerSecond <= 0 {
		return &Limiter{logger: logger}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		logger:  logger,
	}
}

// Enabled reports whether requests are paced.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}

	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	waited := time.Since(start)
	requestWaitSeconds.Observe(waited.Seconds())
	if waited > time.Millisecond {
		requestThrottlesTotal.Inc()
		l.logger.Debug().Dur("wait_duration", waited).Msg("Request throttled by rate limiter")
	}
	return nil
}
