package web

// sessions.go bounds the Validator sessions the API holds open at once.
// Each session pins one pooled connection, so the bound must stay below the
// pool size or refresh-log queries starve.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errTooManySessions is returned when no session slot frees up within maxWait.
var errTooManySessions = errors.New("too many concurrent validation requests")

const (
	defaultMaxSessions    = 2
	defaultSessionMaxWait = 10 * time.Second
)

// sessionLimiter is a counting semaphore with drain support for shutdown.
type sessionLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.Mutex
	active int
}

func newSessionLimiter(max int, maxWait time.Duration) *sessionLimiter {
	if max <= 0 {
		max = defaultMaxSessions
	}
	if maxWait <= 0 {
		maxWait = defaultSessionMaxWait
	}
	return &sessionLimiter{
		slots:   make(chan struct{}, max),
		maxWait: maxWait,
	}
}

// acquire waits up to maxWait for a slot. The caller must release it.
func (l *sessionLimiter) acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errTooManySessions
	}
}

func (l *sessionLimiter) release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.slots
}

func (l *sessionLimiter) activeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// waitForDrain blocks until no session is open or ctx is done.
func (l *sessionLimiter) waitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.activeCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
