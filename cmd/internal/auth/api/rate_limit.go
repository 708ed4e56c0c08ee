package authapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterMaxEntries = 10000
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ipLimiter keeps one token bucket per client key.
type ipLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

// newIPLimiter returns nil when perMinute is zero, which disables limiting.
func newIPLimiter(perMinute float64, burst int) *ipLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &ipLimiter{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

// allow reports whether key may proceed at now, and otherwise how long to
// wait.
func (l *ipLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	if l == nil || key == "" {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= limiterMaxEntries {
			l.pruneLocked(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now

	res := e.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *ipLimiter) pruneLocked(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.entries, k)
		}
	}
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
