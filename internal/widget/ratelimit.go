package widget

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// VisitorLimiter rate-limits conversation turns per visitor address.
type VisitorLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewVisitorLimiter allows perMinute turns per visitor with the given burst.
func NewVisitorLimiter(perMinute, burst int) *VisitorLimiter {
	return &VisitorLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		now:      time.Now,
	}
}

// Reserve takes a turn token for key. ok is false when key is over its
// limit. refund returns the token for a turn that did not start.
func (l *VisitorLimiter) Reserve(key string) (refund func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, found := l.visitors[key]
	if !found {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return nil, false
	}
	if r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return nil, false
	}
	return func() { r.CancelAt(now) }, true
}

// Prune forgets visitors not seen for idle.
func (l *VisitorLimiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.now().Add(-idle)
	n := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(threshold) {
			delete(l.visitors, key)
			n++
		}
	}
	return n
}
