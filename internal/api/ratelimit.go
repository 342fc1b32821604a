// Package api is the builder's HTTP front-end: a thin JSON layer over
// orchestrator.Build, rate-limited and serialised per output folder so
// a host can safely expose Analyze/Apply over a network instead of
// linking the builder in-process. The Server/Router/rate-limiter shape
// follows the teacher's internal/api/server.go and
// internal/services/throttle.go, generalised from per-M3-environment
// session auth and throttling to per-output-folder build throttling —
// this builder has no user sessions of its own (see spec.md §1's
// non-goals).
package api

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterService hands out one token-bucket limiter per output
// folder, lazily created under a double-checked RWMutex — the same
// shape as the teacher's RateLimiterService, keyed by output folder
// instead of M3 environment since this builder has no concept of
// environments.
type RateLimiterService struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter

	requestsPerSecond float64
	burst             int
}

// NewRateLimiterService returns a service handing out limiters
// configured at requestsPerSecond with the given burst.
func NewRateLimiterService(requestsPerSecond float64, burst int) *RateLimiterService {
	return &RateLimiterService{
		limiters:          make(map[string]*rate.Limiter),
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
	}
}

// GetLimiter returns (creating if necessary) the limiter for
// outputFolder.
func (s *RateLimiterService) GetLimiter(outputFolder string) *rate.Limiter {
	s.mu.RLock()
	limiter, ok := s.limiters[outputFolder]
	s.mu.RUnlock()
	if ok {
		return limiter
	}
	return s.loadLimiter(outputFolder)
}

func (s *RateLimiterService) loadLimiter(outputFolder string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limiter, ok := s.limiters[outputFolder]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Limit(s.requestsPerSecond), s.burst)
	s.limiters[outputFolder] = limiter
	return limiter
}

// Allow reports whether a build targeting outputFolder may proceed
// immediately, without blocking.
func (s *RateLimiterService) Allow(outputFolder string) bool {
	return s.GetLimiter(outputFolder).Allow()
}

// Wait blocks until a build targeting outputFolder is allowed to
// proceed, or ctx is cancelled.
func (s *RateLimiterService) Wait(ctx context.Context, outputFolder string) error {
	return s.GetLimiter(outputFolder).Wait(ctx)
}
