package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lamim/deckforge/internal/metrics"
)

// RateLimiterPool manages one rate limiter per backend so that several
// clients talking to the same service share a budget
type RateLimiterPool struct {
	limiters map[string]*rate.Limiter
	rates    map[string]int
	metrics  *metrics.Collector
	mu       sync.Mutex
}

// NewRateLimiterPool creates a new rate limiter pool
func NewRateLimiterPool(collector *metrics.Collector) *RateLimiterPool {
	return &RateLimiterPool{
		limiters: make(map[string]*rate.Limiter),
		rates:    make(map[string]int),
		metrics:  collector,
	}
}

// GetOrCreate returns an existing rate limiter or creates a new one.
// If a limiter exists with a different rate, the existing one is kept.
func (p *RateLimiterPool) GetOrCreate(backend string, requestsPerMinute int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, exists := p.limiters[backend]; exists {
		if existing := p.rates[backend]; existing != requestsPerMinute {
			slog.Warn("Rate limiter already exists with different rate, using existing rate",
				"backend", backend,
				"existing_rpm", existing,
				"requested_rpm", requestsPerMinute)
		}
		return limiter
	}

	rps := float64(requestsPerMinute) / 60.0
	burst := max(5, requestsPerMinute/5) // 20% burst capacity
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	p.limiters[backend] = limiter
	p.rates[backend] = requestsPerMinute

	slog.Debug("Created rate limiter",
		"backend", backend,
		"rpm", requestsPerMinute,
		"burst", burst)

	return limiter
}

// Wait blocks until the backend's limiter allows the next request
func (p *RateLimiterPool) Wait(ctx context.Context, backend string, requestsPerMinute int) error {
	limiter := p.GetOrCreate(backend, requestsPerMinute)
	start := time.Now()
	err := limiter.Wait(ctx)
	p.metrics.RecordRateLimiterWait(backend, time.Since(start))
	return err
}
