package pipeline

import (
	"sync"
	"time"
)

// Limiter enforces a ceiling on job starts per sliding window.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	starts []time.Time
}

// NewLimiter allows up to limit starts per window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{limit: limit, window: window}
}

// Allow records a start when the ceiling permits one and reports the outcome.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	kept := l.starts[:0]
	for _, start := range l.starts {
		if start.After(cutoff) {
			kept = append(kept, start)
		}
	}
	l.starts = kept

	if len(l.starts) >= l.limit {
		return false
	}
	l.starts = append(l.starts, now)
	return true
}

// Refund gives back the most recent start. Callers use it when an allowed
// poll found no job, so the ceiling counts jobs executed rather than claim
// attempts.
func (l *Limiter) Refund() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.starts); n > 0 {
		l.starts = l.starts[:n-1]
	}
}
