package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

type ipLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	per     time.Duration
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[ip]
	if !ok || now.After(w.resetAt) {
		// Piggyback expired-window cleanup on window rollover so the map
		// does not grow with one entry per IP ever seen.
		if len(l.windows) > 4096 {
			for k, v := range l.windows {
				if now.After(v.resetAt) {
					delete(l.windows, k)
				}
			}
		}
		w = &window{resetAt: now.Add(l.per)}
		l.windows[ip] = w
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// RateLimit caps requests per client IP in fixed windows. Vendors retry
// webhooks with backoff, so a 429 here is safe: the delivery comes back.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	l := &ipLimiter{windows: make(map[string]*window), limit: limit, per: per}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIPForRateLimit(r), time.Now()) {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip != "" && net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return r.RemoteAddr
}
