package inference

import (
	"errors"
	"sync"
	"time"
)

// ErrBackendOpen is returned when a backend's breaker is open; the tier
// fails fast and the chain moves on without burning the tier timeout.
var ErrBackendOpen = errors.New("inference: backend circuit open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker is a consecutive-failure circuit breaker guarding one backend.
// After failureThreshold consecutive failures it opens for openTimeout,
// then admits a single probe; a probe success closes it again.
type breaker struct {
	mu               sync.Mutex
	state            breakerState
	consecutiveFails int
	failureThreshold int
	openTimeout      time.Duration
	openedAt         time.Time
	probing          bool
	now              func() time.Time
}

func newBreaker(failureThreshold int, openTimeout time.Duration) *breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return &breaker{
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
		now:              time.Now,
	}
}

// allow reports whether a call may proceed. In the half-open state only one
// probe is admitted at a time.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.openTimeout {
			return false
		}
		b.state = breakerHalfOpen
		b.probing = true
		return true
	default: // half-open
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// record reports the outcome of an admitted call.
func (b *breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if success {
		b.state = breakerClosed
		b.consecutiveFails = 0
		return
	}
	b.consecutiveFails++
	if b.state == breakerHalfOpen || b.consecutiveFails >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = b.now()
	}
}
