// Package ratelimit throttles requests per client IP with token buckets.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"monthbook/internal/cache"
)

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	Burst             int
	// MaxClients bounds the number of tracked IPs; the least recently seen
	// client is forgotten first.
	MaxClients      int
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 120,
		Burst:             20,
		MaxClients:        10000,
		IdleTTL:           10 * time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// Limiter keeps one token bucket per client.
type Limiter struct {
	cfg      Config
	clients  *cache.LRUCache[*rate.Limiter]
	cleaner  *cache.Manager
	allowed  atomic.Int64
	rejected atomic.Int64
}

// Metrics for monitoring rate limit behaviour
type Metrics struct {
	Allowed     int64
	Rejected    int64
	ClientCount int64
}

// NewLimiter creates a limiter and starts its idle-client sweep.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	l := &Limiter{
		cfg:     cfg,
		clients: cache.NewLRUCache[*rate.Limiter](cfg.MaxClients, cfg.IdleTTL),
		cleaner: cache.NewManager(),
	}
	l.cleaner.Register(l.clients)
	l.cleaner.StartCleanup(cfg.CleanupInterval)
	return l
}

func (l *Limiter) bucket(clientIP string) *rate.Limiter {
	return l.clients.GetOrSet(clientIP, func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(float64(l.cfg.RequestsPerMinute)/60.0), l.cfg.Burst)
	})
}

// Allow reports whether a request from clientIP may proceed now.
func (l *Limiter) Allow(clientIP string) bool {
	if l.bucket(clientIP).Allow() {
		l.allowed.Add(1)
		return true
	}
	l.rejected.Add(1)
	return false
}

// RetryAfter estimates how long clientIP must wait for its next token.
func (l *Limiter) RetryAfter(clientIP string) time.Duration {
	b := l.bucket(clientIP)
	tokens := b.Tokens()
	if tokens >= 1 {
		return 0
	}
	perSecond := float64(b.Limit())
	if perSecond <= 0 {
		return time.Minute
	}
	return time.Duration((1 - tokens) / perSecond * float64(time.Second))
}

// ActiveClients returns the number of currently tracked clients
func (l *Limiter) ActiveClients() int {
	return l.clients.Size()
}

// GetMetrics returns current rate limiting metrics
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		Allowed:     l.allowed.Load(),
		Rejected:    l.rejected.Load(),
		ClientCount: int64(l.clients.Size()),
	}
}

// Stop shuts down the cleanup goroutine.
func (l *Limiter) Stop() {
	l.cleaner.Stop()
}

// Middleware rejects over-limit requests. onLimit, when non-nil, writes
// the rejection; otherwise a plain 429 is sent. Retry-After is always set.
func (l *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := extractIP(r)
			if l.Allow(clientIP) {
				next.ServeHTTP(w, r)
				return
			}

			retry := int(math.Ceil(l.RetryAfter(clientIP).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}
