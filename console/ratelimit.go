package console

import (
	"context"
	"sync"
	"time"
)

const (
	loginAttemptInterval = 10 * time.Second
	loginAttemptCleanup  = 1 * time.Minute
)

// loginRateLimiter delays password attempts from hosts that recently failed one.
type loginRateLimiter struct {
	mu       sync.RWMutex
	attempts map[string]time.Time
	interval time.Duration
}

func newLoginRateLimiter(ctx context.Context, interval time.Duration) *loginRateLimiter {
	l := &loginRateLimiter{
		attempts: make(map[string]time.Time),
		interval: interval,
	}
	go l.runCleanupLoop(ctx)
	return l
}

func (l *loginRateLimiter) runCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(loginAttemptCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup(time.Now())
		}
	}
}

func (l *loginRateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for host, lastAttempt := range l.attempts {
		if now.Sub(lastAttempt) > l.interval {
			delete(l.attempts, host)
		}
	}
}

// wait returns how long host has to wait before its next attempt.
func (l *loginRateLimiter) wait(host string) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	last, ok := l.attempts[host]
	if !ok {
		return 0
	}
	if wait := l.interval - time.Since(last); wait > 0 {
		return wait
	}
	return 0
}

// waitIfNeeded blocks until host may try again or ctx is done.
func (l *loginRateLimiter) waitIfNeeded(ctx context.Context, host string) {
	wait := l.wait(host)
	if wait == 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (l *loginRateLimiter) recordFailure(host string) {
	l.mu.Lock()
	l.attempts[host] = time.Now()
	l.mu.Unlock()
}

func (l *loginRateLimiter) clearFailure(host string) {
	l.mu.Lock()
	delete(l.attempts, host)
	l.mu.Unlock()
}
