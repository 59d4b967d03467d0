package api

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu          sync.Mutex
	entries     map[string]*ipLimiterEntry
	lastCleanup time.Time

	rps   rate.Limit
	burst int
	ttl   time.Duration
}

var apiIPLimiter = newIPLimiterFromEnv()

func newIPLimiterFromEnv() *ipLimiter {
	rps := 20.0
	if v := strings.TrimSpace(os.Getenv("SALESWATCH_RATE_LIMIT_RPS")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			rps = n
		}
	}
	burst := 40
	if v := strings.TrimSpace(os.Getenv("SALESWATCH_RATE_LIMIT_BURST")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	return &ipLimiter{
		entries: make(map[string]*ipLimiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     15 * time.Minute,
	}
}

// rateLimitMiddleware throttles per client IP. Health checks and the
// websocket upgrade are exempt. Set SALESWATCH_RATE_LIMIT_RPS=0 to disable.
func rateLimitMiddleware(next http.Handler) http.Handler {
	if apiIPLimiter == nil || apiIPLimiter.rps <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/ws":
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		if !apiIPLimiter.allow(ip) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(int(apiIPLimiter.rps)))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limited"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *ipLimiter) allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Amortized cleanup of idle entries.
	if l.lastCleanup.IsZero() || now.Sub(l.lastCleanup) > time.Minute {
		for k, v := range l.entries {
			if now.Sub(v.lastSeen) > l.ttl {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	ent := l.entries[ip]
	if ent == nil {
		ent = &ipLimiterEntry{
			limiter:  rate.NewLimiter(l.rps, l.burst),
			lastSeen: now,
		}
		l.entries[ip] = ent
	} else {
		ent.lastSeen = now
	}

	return ent.limiter.Allow()
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
