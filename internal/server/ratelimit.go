// ABOUTME: Per-client-IP token bucket throttling for the credential endpoints
// ABOUTME: Throttled requests are audited as failures of the guarded operation and get a 429

package server

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/northbridge/bankd/internal/audit"
	"github.com/northbridge/bankd/internal/store"
)

// limiterIdle is how long an unused per-IP limiter is kept.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

// newIPLimiter allows perMinute requests per IP, with bursts up to perMinute.
func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// allow reports whether ip may proceed now.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdle {
		for key, e := range l.entries {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(l.entries, key)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// throttle rejects requests over the limit with 429 and an audit record for op.
// A nil limiter passes everything through.
func (s *Server) throttle(l *ipLimiter, op audit.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			src := audit.SourceFromContext(r.Context())
			if !l.allow(src.IP) {
				s.recorder.Record(r.Context(), "", op.Fail(), store.AuditFail)
				s.logger.Warn("auth request throttled", "ip", src.IP, "path", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "Too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
