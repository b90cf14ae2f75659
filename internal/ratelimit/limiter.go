// Package ratelimit tracks outgoing delete calls against two sliding windows.
package ratelimit

import (
	"sync"
	"time"
)

// Config sets the window sizes and limits.
type Config struct {
	ShortWindow    time.Duration
	ShortWindowMax int
	LongWindow     time.Duration
	LongWindowMax  int
	// PerRun caps MaxBatchSize regardless of window headroom.
	PerRun int
}

// DefaultConfig matches the X API v2 user-context delete quota.
func DefaultConfig() Config {
	return Config{
		ShortWindow:    15 * time.Minute,
		ShortWindowMax: 50,
		LongWindow:     3 * time.Hour,
		LongWindowMax:  300,
		PerRun:         10,
	}
}

// Limiter is safe for concurrent use.
type Limiter struct {
	cfg   Config
	now   func() time.Time
	mu    sync.Mutex
	calls []time.Time
}

// New creates a Limiter. A nil clock uses time.Now.
func New(cfg Config, clock func() time.Time) *Limiter {
	if clock == nil {
		clock = time.Now
	}
	return &Limiter{cfg: cfg, now: clock}
}

// RecordCall notes a call made now.
func (l *Limiter) RecordCall() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	l.calls = append(l.calls, now)
}

// CanCall reports whether both windows have room for another call.
func (l *Limiter) CanCall() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	return l.countSince(now.Add(-l.cfg.ShortWindow)) < l.cfg.ShortWindowMax &&
		len(l.calls) < l.cfg.LongWindowMax
}

// TimeUntilNextSlot returns how long until a call is allowed, or zero if one
// is allowed now. The short window is checked first since it recovers sooner.
func (l *Limiter) TimeUntilNextSlot() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)

	shortStart := now.Add(-l.cfg.ShortWindow)
	if inShort := l.since(shortStart); len(inShort) >= l.cfg.ShortWindowMax && len(inShort) > 0 {
		return positive(inShort[0].Add(l.cfg.ShortWindow).Sub(now))
	}
	if len(l.calls) >= l.cfg.LongWindowMax && len(l.calls) > 0 {
		return positive(l.calls[0].Add(l.cfg.LongWindow).Sub(now))
	}
	return 0
}

// MaxBatchSize is the number of calls that fit in both windows right now,
// capped at PerRun.
func (l *Limiter) MaxBatchSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)

	n := min(
		l.cfg.ShortWindowMax-l.countSince(now.Add(-l.cfg.ShortWindow)),
		l.cfg.LongWindowMax-len(l.calls),
		l.cfg.PerRun,
	)
	return max(n, 0)
}

// prune drops calls older than the long window. Callers hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.cfg.LongWindow)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

func (l *Limiter) since(start time.Time) []time.Time {
	for i, c := range l.calls {
		if c.After(start) {
			return l.calls[i:]
		}
	}
	return nil
}

func (l *Limiter) countSince(start time.Time) int {
	return len(l.since(start))
}

func positive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
