package core

import (
	"errors"
	"sync"
	"time"

	"epibot/pkg/domain"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a user sends actions faster than allowed.
var ErrRateLimited = errors.New("too many actions")

const (
	limiterPruneThreshold = 1024
	limiterIdle           = 10 * time.Minute
)

type userLimiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	users map[domain.UserID]*limiterEntry
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newUserLimiter(limit rate.Limit, burst int) *userLimiter {
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{limit: limit, burst: burst, users: make(map[domain.UserID]*limiterEntry)}
}

func (l *userLimiter) allow(user domain.UserID, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.users[user]
	if !ok {
		if len(l.users) >= limiterPruneThreshold {
			l.prune(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.users[user] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// prune drops limiters idle long enough to have refilled. Callers hold l.mu.
func (l *userLimiter) prune(now time.Time) {
	for user, e := range l.users {
		if now.Sub(e.seen) > limiterIdle {
			delete(l.users, user)
		}
	}
}
