package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/fiddle/internal/errors"
	"github.com/conneroisu/fiddle/internal/logging"
)

// RateLimiter implements a token bucket rate limiter per client IP
type RateLimiter struct {
	buckets map[string]*tokenBucket
	mutex   sync.RWMutex
	config  *RateLimitConfig
	logger  logging.Logger
	done    chan struct{}
}

// tokenBucket represents a token bucket for a specific client
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewRateLimiter creates a new rate limiter with the given configuration
func NewRateLimiter(config *RateLimitConfig, logger logging.Logger) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		config:  config,
		logger:  logger,
		done:    make(chan struct{}),
	}

	go rl.cleanupExpiredBuckets()

	return rl
}

// Allow checks whether the client may make a request, consuming a token
// when one is available. The second return is the number of whole
// tokens left after the call.
func (rl *RateLimiter) Allow(clientIP string) (bool, int) {
	bucket := rl.getBucket(clientIP)

	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()

	rl.refillBucket(bucket)

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, int(bucket.tokens)
	}

	return false, 0
}

// getBucket retrieves or creates a token bucket for the client
func (rl *RateLimiter) getBucket(clientIP string) *tokenBucket {
	rl.mutex.RLock()
	bucket, exists := rl.buckets[clientIP]
	rl.mutex.RUnlock()

	if exists {
		return bucket
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists := rl.buckets[clientIP]; exists {
		return bucket
	}

	bucket = &tokenBucket{
		tokens:     float64(rl.config.BurstSize),
		lastRefill: time.Now(),
	}
	rl.buckets[clientIP] = bucket

	return bucket
}

// refillBucket adds tokens based on elapsed time. Caller holds the
// bucket mutex.
func (rl *RateLimiter) refillBucket(bucket *tokenBucket) {
	now := time.Now()
	elapsed := now.Sub(bucket.lastRefill)

	if elapsed < time.Second {
		return
	}

	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	tokensToAdd := elapsed.Seconds() * tokensPerSecond

	bucket.tokens += tokensToAdd
	if bucket.tokens > float64(rl.config.BurstSize) {
		bucket.tokens = float64(rl.config.BurstSize)
	}

	bucket.lastRefill = now
}

// cleanupExpiredBuckets removes buckets that have not been used recently
func (rl *RateLimiter) cleanupExpiredBuckets() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mutex.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for ip, bucket := range rl.buckets {
				bucket.mutex.Lock()
				stale := bucket.lastRefill.Before(cutoff)
				bucket.mutex.Unlock()
				if stale {
					delete(rl.buckets, ip)
				}
			}
			rl.mutex.Unlock()
		}
	}
}

// Stop terminates the cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

// RateLimitMiddleware creates rate limiting middleware.
// WebSocket upgrades and static assets are exempt; a live editing
// session holds one connection, not one request per keystroke.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" || strings.HasPrefix(r.URL.Path, "/static/") {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := getClientIP(r)

			allowed, remaining := limiter.Allow(clientIP)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(limiter.config.WindowSize).Unix(), 10))

			if !allowed {
				if limiter.logger != nil {
					limiter.logger.Warn(r.Context(),
						errors.NewSecurityError("RATE_LIMIT_EXCEEDED", "Rate limit exceeded"),
						"Rate limit exceeded",
						"ip", clientIP,
						"path", r.URL.Path)
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", limiter.config.WindowSize.Seconds()))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
