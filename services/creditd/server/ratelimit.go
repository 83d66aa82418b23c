package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fixedcredit/observability"
)

// RateLimit bounds requests per client.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client address. Idle buckets are
// dropped by a janitor goroutine.
type RateLimiter struct {
	cfg      RateLimit
	metrics  *observability.CreditMetrics
	mu       sync.Mutex
	visitors map[string]*visitor
	clockNow func() time.Time
	stop     chan struct{}
	once     sync.Once
}

// NewRateLimiter starts the janitor. A zero rate disables limiting.
func NewRateLimiter(cfg RateLimit, metrics *observability.CreditMetrics) *RateLimiter {
	r := &RateLimiter{
		cfg:      cfg,
		metrics:  metrics,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
		stop:     make(chan struct{}),
	}
	if cfg.RequestsPerMinute > 0 {
		go r.janitor(5 * time.Minute)
	}
	return r
}

// Middleware rejects requests above the client's budget with 429.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.RequestsPerMinute <= 0 {
			next.ServeHTTP(w, req)
			return
		}
		if !r.allow(clientID(req)) {
			r.metrics.RecordThrottle("rate_limit")
			writeJSON(w, http.StatusTooManyRequests, map[string]errorBody{"error": {
				Code:    "rate_limited",
				Message: http.StatusText(http.StatusTooManyRequests),
			}})
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visitors[id]
	if !ok {
		burst := r.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(r.cfg.RequestsPerMinute/60.0), burst)}
		r.visitors[id] = v
	}
	now := r.clockNow()
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (r *RateLimiter) janitor(idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			cutoff := r.clockNow().Add(-idle)
			r.mu.Lock()
			for id, v := range r.visitors {
				if v.lastSeen.Before(cutoff) {
					delete(r.visitors, id)
				}
			}
			r.mu.Unlock()
		}
	}
}

// Close stops the janitor.
func (r *RateLimiter) Close() {
	r.once.Do(func() { close(r.stop) })
}

// clientID keys buckets by remote host. chi's RealIP middleware has already
// folded X-Forwarded-For into RemoteAddr.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
