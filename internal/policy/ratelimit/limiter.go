// Package ratelimit implements the token bucket that paces completed items across workers.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/paper-annotator/internal/metrics"
)

// Pacer spaces item completions by at least Interval in aggregate, shared by all workers.
type Pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	waited  time.Duration
}

// Config holds pacer configuration.
type Config struct {
	// Interval is the minimum spacing between tokens. Zero or negative disables pacing.
	Interval time.Duration
	// Burst defaults to 1.
	Burst int
}

// New creates a new Pacer.
func New(cfg Config) *Pacer {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available, respecting the context.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	// Tokens available immediately are not worth recording.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObservePacingDelay(d)
		p.mu.Lock()
		p.waited += d
		p.mu.Unlock()
	}
	return nil
}

// Waited reports the cumulative time spent blocked in Wait.
func (p *Pacer) Waited() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waited
}
