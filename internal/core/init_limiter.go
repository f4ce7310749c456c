package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
)

// ErrTooManyInits is returned when no initialization slot frees up in time.
var ErrTooManyInits = apperr.New(apperr.Resource, "too many concurrent session initializations, please try again later")

const (
	// DefaultMaxConcurrentInits is the slot count when none is configured.
	DefaultMaxConcurrentInits = 4
	// DefaultMaxWaitTime bounds how long Acquire queues for a slot.
	DefaultMaxWaitTime = 30 * time.Second
)

// InitLimiter caps concurrent session initializations. Each one holds a
// read-write handle plus connector extensions and attached catalogs, so
// the cap bounds open files and memory under bursts.
type InitLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	waiting  atomic.Int64
	rejected atomic.Int64

	mu     sync.Mutex
	active int
	// idle is closed whenever active is zero.
	idle chan struct{}
}

// NewInitLimiter returns a limiter with maxConcurrent slots. Non-positive
// arguments select the defaults.
func NewInitLimiter(maxConcurrent int, maxWait time.Duration) *InitLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentInits
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	idle := make(chan struct{})
	close(idle)
	return &InitLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		idle:    idle,
	}
}

// Acquire queues for a slot for at most maxWait. It returns ErrTooManyInits
// on timeout and ctx.Err() when the caller gives up first. A nil error
// must be paired with Release.
func (l *InitLimiter) Acquire(ctx context.Context) error {
	if l.TryAcquire() {
		return nil
	}

	l.waiting.Add(1)
	defer l.waiting.Add(-1)

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.enter()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		l.rejected.Add(1)
		return ErrTooManyInits
	}
}

// TryAcquire takes a slot only if one is free now.
func (l *InitLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.enter()
		return true
	default:
		return false
	}
}

// Release returns a slot.
func (l *InitLimiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()
	<-l.slots
}

func (l *InitLimiter) enter() {
	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.mu.Unlock()
}

// ActiveCount returns the number of initializations holding a slot.
func (l *InitLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// MaxConcurrent returns the slot count.
func (l *InitLimiter) MaxConcurrent() int { return cap(l.slots) }

// Available returns the number of free slots.
func (l *InitLimiter) Available() int { return cap(l.slots) - len(l.slots) }

// WaitForDrain blocks until no slot is held or ctx ends. Used at shutdown
// after the listener stops accepting requests.
func (l *InitLimiter) WaitForDrain(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.active == 0 {
			l.mu.Unlock()
			return nil
		}
		idle := l.idle
		l.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// InitLimiterStatus is the limiter snapshot reported by /healthz.
type InitLimiterStatus struct {
	Active        int   `json:"active"`
	Available     int   `json:"available"`
	MaxConcurrent int   `json:"max_concurrent"`
	Waiting       int64 `json:"waiting"`
	Rejected      int64 `json:"rejected_total"`
}

// Status returns the current limiter state.
func (l *InitLimiter) Status() InitLimiterStatus {
	return InitLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
		Waiting:       l.waiting.Load(),
		Rejected:      l.rejected.Load(),
	}
}
