// Package timectrl drives the panel's periodic ticks: the simulation tick
// that perturbs temperatures and the wall-clock tick that advances the
// displayed time.
package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TimeController schedules ticks.
type Mode int

const (
	// RealTime fires one tick per period of wall-clock time.
	RealTime Mode = iota
	// Accelerated fires ticks as fast as the loop can run while still
	// stepping the controller time by one period per tick. Used by headless
	// runs that want hours of drift in seconds.
	Accelerated
)

// acceleratedInterval is the real wait between ticks in Accelerated mode.
const acceleratedInterval = time.Millisecond

// TimeController fires a fixed-period tick and notifies registered listeners
// with the controller time, which steps by exactly one period per tick.
// Listeners must be registered before Start.
type TimeController struct {
	mu          sync.RWMutex
	period      time.Duration
	mode        Mode
	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller whose time starts at start.
func NewTimeController(start time.Time, period time.Duration, mode Mode) *TimeController {
	return &TimeController{
		period:      period,
		mode:        mode,
		currentTime: start,
	}
}

// Now returns the current controller time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves the controller clock. Subsequent ticks step from the new
// value.
func (tc *TimeController) SetTime(now time.Time) {
	tc.mu.Lock()
	tc.currentTime = now
	tc.mu.Unlock()
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller in a separate goroutine until ctx is cancelled.
// The returned channel is closed when the controller has stopped.
func (tc *TimeController) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		interval := tc.period
		if tc.mode == Accelerated {
			interval = acceleratedInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			tc.mu.Lock()
			tc.currentTime = tc.currentTime.Add(tc.period)
			now := tc.currentTime
			tc.mu.Unlock()

			for _, fn := range tc.listeners {
				fn(now)
			}
		}
	}()
	return done
}
