// Package ratelimit implements per-(action, identifier) sliding-window counters
// shared by login lockout, registration throttling and verification-code sends.
package ratelimit

import (
	"sync"
	"time"
)

// Rule configures one action: at most Limit hits per Window. When Block is
// set, exceeding the limit blocks the key for Block regardless of the window.
type Rule struct {
	Limit  int
	Window time.Duration
	Block  time.Duration
}

type entry struct {
	hits         []time.Time
	blockedUntil time.Time
}

// Limiter is an in-memory sliding-window limiter. All methods are safe for
// concurrent use.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// New creates a Limiter using the wall clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Limiter reading time from now.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{entries: make(map[string]*entry), now: now}
}

// Key joins an action and an identifier into a limiter key.
func Key(action, identifier string) string {
	return action + ":" + identifier
}

// Allow records a hit for key when the rule permits it. Otherwise it returns
// false with the time until the next hit would be accepted.
func (l *Limiter) Allow(key string, rule Rule) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.prune(key, rule.Window, now)
	if now.Before(e.blockedUntil) {
		return false, e.blockedUntil.Sub(now)
	}
	if len(e.hits) >= rule.Limit {
		if rule.Block > 0 {
			e.blockedUntil = now.Add(rule.Block)
			return false, rule.Block
		}
		return false, e.hits[0].Add(rule.Window).Sub(now)
	}
	e.hits = append(e.hits, now)
	return true, 0
}

// Exceeded reports whether key already holds Limit hits in the window without
// recording anything.
func (l *Limiter) Exceeded(key string, rule Rule) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.prune(key, rule.Window, now)
	if now.Before(e.blockedUntil) {
		return true, e.blockedUntil.Sub(now)
	}
	if len(e.hits) >= rule.Limit {
		return true, e.hits[0].Add(rule.Window).Sub(now)
	}
	return false, 0
}

// Record adds a hit unconditionally.
func (l *Limiter) Record(key string, rule Rule) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.prune(key, rule.Window, now)
	e.hits = append(e.hits, now)
}

// Remaining returns how many more hits the window accepts.
func (l *Limiter) Remaining(key string, rule Rule) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.prune(key, rule.Window, l.now())
	if n := rule.Limit - len(e.hits); n > 0 {
		return n
	}
	return 0
}

// Reset forgets key entirely.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Sweep drops keys with no hit newer than maxAge and no active block.
// It returns the number of keys removed.
func (l *Limiter) Sweep(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-maxAge)
	removed := 0
	for key, e := range l.entries {
		if now.Before(e.blockedUntil) {
			continue
		}
		if len(e.hits) == 0 || e.hits[len(e.hits)-1].Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// prune returns the entry for key with hits older than window dropped.
// Callers hold l.mu.
func (l *Limiter) prune(key string, window time.Duration, now time.Time) *entry {
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
		return e
	}
	cutoff := now.Add(-window)
	i := 0
	for i < len(e.hits) && !e.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.hits = append(e.hits[:0], e.hits[i:]...)
	}
	return e
}
