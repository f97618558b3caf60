package master

import (
	"net/http"
	"sync"
	"time"

	"github.com/projectpolygon/hypercube-go/internal/config"
	"github.com/projectpolygon/hypercube-go/internal/logger"
)

// tokenBucket is a simple per-client request-rate limiter.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(rps int) *tokenBucket {
	if rps <= 0 {
		rps = 1
	}
	return &tokenBucket{
		tokens:     float64(rps),
		maxTokens:  float64(rps),
		refillRate: float64(rps),
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// clientRateLimiter maintains a token bucket per remote client, periodically
// dropped wholesale rather than tracked per-entry for eviction simplicity.
type clientRateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
	rps     int
}

func newClientRateLimiter(rps int) *clientRateLimiter {
	rl := &clientRateLimiter{buckets: make(map[string]*tokenBucket), rps: rps}
	go rl.resetLoop()
	return rl
}

func (rl *clientRateLimiter) resetLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		rl.buckets = make(map[string]*tokenBucket)
		rl.mu.Unlock()
	}
}

func (rl *clientRateLimiter) bucketFor(clientID string) *tokenBucket {
	rl.mu.RLock()
	b, ok := rl.buckets[clientID]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[clientID]; ok {
		return b
	}
	b = newTokenBucket(rl.rps)
	rl.buckets[clientID] = b
	return b
}

// RateLimit returns a middleware enforcing a per-client request rate on the
// public, unauthenticated discovery and task-fetch endpoints. It is
// ambient hardening, not part of the dispatch protocol: when cfg.Enabled is
// false it is a no-op.
func RateLimit(cfg *config.RateLimitConfig) func(http.Handler) http.Handler {
	limiter := newClientRateLimiter(cfg.RPS)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			clientID := r.Header.Get("X-Forwarded-For")
			if clientID == "" {
				clientID = r.RemoteAddr
			}

			if !limiter.bucketFor(clientID).allow() {
				logger.Warn().Str("path", r.URL.Path).Str("client", clientID).Msg("rate limit exceeded")
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
