// Package ratelimit limits API requests per client IP with token buckets.
package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/piggyfactory/internal/middleware/logging"
)

// Config holds the configuration for rate limiting
type Config struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	// CleanupMinutes is both the sweep interval and the idle time after
	// which a client's bucket is forgotten
	CleanupMinutes int
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per client IP
type Limiter struct {
	limit   rate.Limit
	burst   int
	idle    time.Duration
	perMin  int
	now     func() time.Time
	stop    chan struct{}
	stopped sync.Once

	mu      sync.Mutex
	clients map[string]*client
}

// New creates a limiter and starts its sweeper. Call Stop to release it.
func New(cfg Config) *Limiter {
	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}

	l := &Limiter{
		limit:   rate.Limit(float64(cfg.RequestsPerMin) / 60),
		burst:   burst,
		idle:    idle,
		perMin:  cfg.RequestsPerMin,
		now:     time.Now,
		stop:    make(chan struct{}),
		clients: make(map[string]*client),
	}
	go l.sweepLoop()
	return l
}

// Stop ends the sweeper goroutine
func (l *Limiter) Stop() {
	l.stopped.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep forgets clients idle for longer than the cleanup interval
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idle)
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

func (l *Limiter) reserve(ip string, now time.Time) *rate.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.ReserveN(now, 1)
}

// Allow reports whether a request from ip may proceed now and, if not, how
// long the client should wait
func (l *Limiter) Allow(ip string) (bool, time.Duration) {
	now := l.now()
	r := l.reserve(ip, now)
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware rejects over-limit requests with 429. Probes are never limited.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/health", "/healthz", "/readyz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}

			ok, wait := l.Allow(logging.ClientIP(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMin))
			if !ok {
				retryAfter := int(math.Ceil(wait.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    "RATE_LIMIT_EXCEEDED",
						"message": "Too many requests. Please try again later.",
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Middleware builds a limiter from cfg, or a pass-through when disabled.
// The returned stop function releases the limiter's sweeper.
func Middleware(cfg Config) (func(http.Handler) http.Handler, func()) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, func() {}
	}
	l := New(cfg)
	return l.Middleware(), l.Stop
}
