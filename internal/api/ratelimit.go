package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-IP HTTP limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64       // Sustained requests per IP
	Burst             int           // Maximum burst size
	CleanupInterval   time.Duration // How often idle limiters are dropped
}

// DefaultRateLimitConfig allows a spectator page polling a few endpoints
// plus the minimap.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 20,
	Burst:             40,
	CleanupInterval:   5 * time.Minute,
}

// RateLimitStats counts limiter decisions.
type RateLimitStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nano
}

// IPRateLimiter is a token bucket per client IP.
type IPRateLimiter struct {
	limiters sync.Map // map[string]*ipLimiterEntry
	config   RateLimitConfig
	stopChan chan struct{}
	stopOnce sync.Once

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// NewIPRateLimiter creates a limiter and starts its cleanup goroutine.
// Call Stop to release it.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		config:   cfg,
		stopChan: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

func (rl *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := rl.limiters.Load(ip); ok {
		e := v.(*ipLimiterEntry)
		e.lastSeen.Store(now)
		return e.limiter
	}

	entry := &ipLimiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)}
	entry.lastSeen.Store(now)
	actual, _ := rl.limiters.LoadOrStore(ip, entry)
	return actual.(*ipLimiterEntry).limiter
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

// cleanup drops limiters idle for two intervals.
func (rl *IPRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-2 * rl.config.CleanupInterval).UnixNano()
	rl.limiters.Range(func(key, value any) bool {
		if value.(*ipLimiterEntry).lastSeen.Load() < cutoff {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Allow reports whether a request from ip may proceed.
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.getLimiter(ip).Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	return false
}

// Middleware rejects over-limit requests with 429.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStats returns limiter counters.
func (rl *IPRateLimiter) GetStats() RateLimitStats {
	return RateLimitStats{Allowed: rl.allowed.Load(), Rejected: rl.rejected.Load()}
}

// GetClientIP extracts the client IP, honoring X-Forwarded-For and
// X-Real-IP from a fronting proxy.
// CAUTION: both headers can be spoofed if not behind a trusted proxy.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// WebSocketRateLimiter caps concurrent WebSocket connections per IP.
type WebSocketRateLimiter struct {
	connections sync.Map // map[string]*atomic.Int32
	maxPerIP    int32
	rejected    atomic.Uint64
}

// NewWebSocketRateLimiter creates a connection limiter.
func NewWebSocketRateLimiter(maxPerIP int) *WebSocketRateLimiter {
	return &WebSocketRateLimiter{maxPerIP: int32(maxPerIP)}
}

// Allow reserves a connection slot for ip, or reports false when the IP
// is at its limit.
func (wrl *WebSocketRateLimiter) Allow(ip string) bool {
	actual, _ := wrl.connections.LoadOrStore(ip, new(atomic.Int32))
	counter := actual.(*atomic.Int32)
	for {
		current := counter.Load()
		if current >= wrl.maxPerIP {
			wrl.rejected.Add(1)
			return false
		}
		if counter.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release frees a slot reserved by Allow.
func (wrl *WebSocketRateLimiter) Release(ip string) {
	if v, ok := wrl.connections.Load(ip); ok {
		v.(*atomic.Int32).Add(-1)
	}
}

// ConnectionCount returns the open connections for ip.
func (wrl *WebSocketRateLimiter) ConnectionCount(ip string) int {
	if v, ok := wrl.connections.Load(ip); ok {
		return int(v.(*atomic.Int32).Load())
	}
	return 0
}

// DefaultOrigins are used when no origins are configured.
var DefaultOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
}

// OriginAllowed matches origin against patterns. A pattern is an exact
// origin, "*" for any, or a scheme://host:* prefix for any port. Requests
// without an Origin header (non-browser clients) are allowed.
func OriginAllowed(origin string, patterns []string) bool {
	if origin == "" {
		return true
	}
	for _, p := range patterns {
		switch {
		case p == "*", p == origin:
			return true
		case strings.HasSuffix(p, ":*"):
			host := strings.TrimSuffix(p, "*")
			if origin == strings.TrimSuffix(host, ":") || strings.HasPrefix(origin, host) {
				return true
			}
		}
	}
	return false
}
