// Package ratelimit provides a cooperative per-source rate limiter with
// exponential backoff. Callers must invoke Wait before every request; the
// limiter never intercepts I/O itself.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBackoffCap bounds the exponential backoff per source.
const DefaultBackoffCap = 300 * time.Second

// sourceState tracks one source's throttle and backoff state. Each source
// has its own mutex so waiting on one source never blocks another.
type sourceState struct {
	mu                sync.Mutex
	lastRequest       time.Time
	backoffUntil      time.Time
	consecutiveErrors int
}

// Limiter throttles requests per source and applies exponential backoff
// after consecutive errors. Throttling and backoff are independent and both
// enforced before each request.
type Limiter struct {
	mu         sync.Mutex
	sources    map[string]*sourceState
	backoffCap time.Duration
	log        zerolog.Logger

	// Injected for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewLimiter builds a Limiter with the default backoff cap.
func NewLimiter(log zerolog.Logger) *Limiter {
	return &Limiter{
		sources:    make(map[string]*sourceState),
		backoffCap: DefaultBackoffCap,
		log:        log,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

func (l *Limiter) state(sourceID string) *sourceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sources[sourceID]
	if !ok {
		s = &sourceState{}
		l.sources[sourceID] = s
	}
	return s
}

// Wait blocks until any active backoff for the source has elapsed and at
// least minInterval has passed since the last request to it, then records
// the new request time.
func (l *Limiter) Wait(sourceID string, minInterval time.Duration) {
	s := l.state(sourceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.now()
	if s.backoffUntil.After(now) {
		d := s.backoffUntil.Sub(now)
		l.log.Debug().Str("source", sourceID).Dur("sleep", d).Msg("backoff active")
		l.sleep(d)
		now = l.now()
	}

	if !s.lastRequest.IsZero() {
		if elapsed := now.Sub(s.lastRequest); elapsed < minInterval {
			d := minInterval - elapsed
			l.log.Debug().Str("source", sourceID).Dur("sleep", d).Msg("throttling")
			l.sleep(d)
		}
	}

	s.lastRequest = l.now()
}

// RecordSuccess resets the consecutive error count for a source.
func (l *Limiter) RecordSuccess(sourceID string) {
	s := l.state(sourceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors = 0
}

// RecordError increments the source's error count and schedules backoff:
// base doubled per consecutive error, capped at DefaultBackoffCap.
func (l *Limiter) RecordError(sourceID string, base time.Duration) {
	s := l.state(sourceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.consecutiveErrors++
	backoff := base << (s.consecutiveErrors - 1)
	if backoff > l.backoffCap || backoff <= 0 {
		backoff = l.backoffCap
	}
	s.backoffUntil = l.now().Add(backoff)

	l.log.Warn().
		Str("source", sourceID).
		Int("consecutive_errors", s.consecutiveErrors).
		Dur("backoff", backoff).
		Msg("request failed, backing off")
}

// ConsecutiveErrors returns the current error streak for a source.
func (l *Limiter) ConsecutiveErrors(sourceID string) int {
	s := l.state(sourceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveErrors
}
