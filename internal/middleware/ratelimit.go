package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ibhi/bitwarden-serverless/internal/logging"
)

// Limiter decides whether another request for key fits in the budget
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter implements a simple in-memory rate limiter using a sliding window
type MemoryLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	maxReqs  int
	now      func() time.Time
}

// NewMemoryLimiter creates a new rate limiter. The cleanup goroutine stops when ctx is done.
func NewMemoryLimiter(ctx context.Context, window time.Duration, maxReqs int) *MemoryLimiter {
	rl := &MemoryLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		maxReqs:  maxReqs,
		now:      time.Now,
	}

	go rl.cleanup(ctx)

	return rl
}

// Allow checks if a request is allowed for the given key
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	filtered := prune(rl.requests[key], now.Add(-rl.window))

	if len(filtered) >= rl.maxReqs {
		rl.requests[key] = filtered
		return false, nil
	}

	rl.requests[key] = append(filtered, now)
	return true, nil
}

func prune(reqs []time.Time, cutoff time.Time) []time.Time {
	filtered := make([]time.Time, 0, len(reqs))
	for _, t := range reqs {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// cleanup periodically removes keys whose requests all fell out of the window
func (rl *MemoryLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		cutoff := rl.now().Add(-rl.window)
		for key, reqs := range rl.requests {
			if filtered := prune(reqs, cutoff); len(filtered) == 0 {
				delete(rl.requests, key)
			} else {
				rl.requests[key] = filtered
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware answers 429 once keyFunc's budget is spent. Limiter
// errors let the request through.
func RateLimitMiddleware(limiter Limiter, keyFunc func(*http.Request) string, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.Warn(r.Context(), "rate limiter unavailable", "error", err)
				allowed = true
			}
			if !allowed {
				log.Info(r.Context(), "rate limit exceeded", "key", key)
				respondWithError(w, http.StatusTooManyRequests, "Too many requests, try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetIPKey extracts the client address for rate limiting. chi's RealIP
// middleware has already applied X-Forwarded-For / X-Real-IP.
func GetIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
