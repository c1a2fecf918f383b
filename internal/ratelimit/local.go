package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles requests per user.
type Limiter interface {
	Allow(ctx context.Context, userID string) (allowed bool, resetSec int, err error)
}

// Allow adapts Manager to the Limiter interface.
func (m *Manager) Allow(ctx context.Context, userID string) (bool, int, error) {
	return m.CheckRate(ctx, userID, m.rpm)
}

// Local is the in-process fallback used when Redis is not configured.
// Token buckets are per user and refill at rpm per minute; state is lost on
// restart, which is acceptable for a traffic shield.
type Local struct {
	mu       sync.Mutex
	rpm      int
	limiters map[string]*rate.Limiter
}

func NewLocal(rpm int) *Local {
	return &Local{rpm: rpm, limiters: make(map[string]*rate.Limiter)}
}

func (l *Local) Allow(_ context.Context, userID string) (bool, int, error) {
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.rpm)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()

	if lim.Allow() {
		return true, 0, nil
	}
	return false, 60, nil
}
