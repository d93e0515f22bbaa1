package core

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"blackhub/internal/types"
)

const (
	limiterEntryTTL        = 15 * time.Minute
	limiterCleanupInterval = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. Idle buckets are
// dropped lazily on access.
type IPRateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	entries     map[string]*limiterEntry
	lastCleanup time.Time
	now         func() time.Time
}

// NewIPRateLimiter allows perSecond sustained requests with the given burst.
func NewIPRateLimiter(perSecond float64, burst int) *IPRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		limit:       rate.Limit(perSecond),
		burst:       burst,
		entries:     make(map[string]*limiterEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow consumes a token for ip and reports whether one was available.
func (l *IPRateLimiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) >= limiterCleanupInterval {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > limiterEntryTTL {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// PublicRateLimit throttles unauthenticated endpoints (webhook, payment
// verification) per client IP. Without a limiter it passes through.
func (s *Server) PublicRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.PublicLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := extractClientIP(r)
		if s.PublicLimiter.Allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		s.Logger.WarnContext(r.Context(), "public rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
		)
		w.Header().Set("Retry-After", strconv.Itoa(1))
		Error(w, r, types.NewAppError(types.ErrCodeRateLimit, "Too many requests. Please retry shortly.", nil))
	})
}

// extractClientIP returns the first X-Forwarded-For entry when present,
// otherwise RemoteAddr without its port.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		if ip = strings.TrimSpace(ip); ip != "" {
			return ip
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
