package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ahorrove/internal/config"
)

// RateLimiter implements a per-IP token bucket rate limiter.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per IP, with burst capacity.
func NewRateLimiter(rps int, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// Cleanup drops clients not seen for idle. The server calls it periodically.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-idle)
	removed := 0
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	c, exists := rl.clients[ip]
	if !exists {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	now := rl.now()
	c.lastSeen = now
	rl.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

// Middleware wraps an http.Handler with rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			if strings.HasPrefix(r.URL.Path, "/api/") {
				writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
					"success": false,
					"error":   "Demasiadas solicitudes. Intenta de nuevo en un momento.",
				})
				return
			}
			http.Error(w, "Demasiadas solicitudes. Intenta de nuevo en un momento.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP keys a request by the address the trusted proxies saw. Each proxy
// appends the peer it received from to X-Forwarded-For, so with N trusted
// hops the client is the Nth entry from the right; anything further left is
// client-supplied. With no trusted hops the header is ignored.
func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	hops := config.Cfg.TrustedProxyHops
	fwd := r.Header.Get("X-Forwarded-For")
	if hops <= 0 || fwd == "" {
		return ip
	}
	parts := strings.Split(fwd, ",")
	if len(parts) < hops {
		return ip
	}
	if v := strings.TrimSpace(parts[len(parts)-hops]); v != "" {
		return v
	}
	return ip
}
