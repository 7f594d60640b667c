// Package ratelimit provides the global call-pacing gate shared by all
// workers of one fetch batch.
package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for limiter pacing.
var (
	limiterAcquiresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_acquires_total",
		Help: "Total number of rate limiter acquisitions",
	})

	limiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratelimit_wait_seconds",
		Help:    "Time spent waiting for a rate limiter slot",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// ErrInvalidRate is returned when a limiter is constructed with qps <= 0.
var ErrInvalidRate = errors.New("qps must be greater than 0")

// Limiter enforces a global maximum request rate across any number of
// concurrent callers. Each Acquire reserves the next eligible send instant
// under the lock, then sleeps outside the lock until that instant, so
// callers never serialize their sleeps.
type Limiter struct {
	interval time.Duration

	mu   sync.Mutex
	next time.Time
}

// New creates a limiter pacing callers at the given queries per second.
func New(qps float64) (*Limiter, error) {
	if qps <= 0 {
		return nil, ErrInvalidRate
	}
	return &Limiter{
		interval: time.Duration(float64(time.Second) / qps),
	}, nil
}

// Acquire blocks until the caller may issue its request. Returns of
// concurrent Acquire calls are spaced at least 1/qps apart; the limiter
// never bursts ahead after sitting idle because the reservation floor is
// the current time.
func (l *Limiter) Acquire() {
	l.mu.Lock()
	now := time.Now()
	at := l.next
	if at.Before(now) {
		at = now
	}
	l.next = at.Add(l.interval)
	l.mu.Unlock()

	wait := time.Until(at)
	if wait > 0 {
		time.Sleep(wait)
	}

	limiterAcquiresTotal.Inc()
	limiterWaitSeconds.Observe(wait.Seconds())
}

// Interval returns the minimum spacing between request slots.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
