// Package timectrl drives the sky clock: it advances a calendar.DateTime by
// a fixed step and notifies listeners after every step.
package timectrl

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/thyrannic-sky/calendar"
)

// SimClock gives read access to simulated time.
type SimClock interface {
	Now() calendar.DateTime
}

// Mode describes how the TimeController paces its steps.
type Mode int

const (
	// RealTime waits Interval of wall time between steps.
	RealTime Mode = iota
	// Accelerated steps as fast as the listeners allow.
	Accelerated
)

// ParseMode maps "realtime" and "accelerated" to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "realtime", "real_time", "":
		return RealTime, true
	case "accelerated":
		return Accelerated, true
	}
	return RealTime, false
}

// Step is how far simulated time moves per tick.
type Step struct {
	Quantity float64
	Unit     calendar.Unit
}

// Apply moves t forward by the step.
func (s Step) Apply(t calendar.DateTime) calendar.DateTime {
	return t.Add(s.Quantity, s.Unit)
}

// TimeController owns the simulated clock. It implements SimClock.
type TimeController struct {
	mu sync.RWMutex

	StartTime calendar.DateTime
	Step      Step
	Interval  time.Duration
	Mode      Mode

	current   calendar.DateTime
	listeners []func(calendar.DateTime)
}

// NewTimeController constructs a controller positioned at start.
func NewTimeController(start calendar.DateTime, step Step, interval time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime: start,
		Step:      step,
		Interval:  interval,
		Mode:      mode,
		current:   start,
	}
}

// Now returns the current simulated time.
func (tc *TimeController) Now() calendar.DateTime {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.current
}

// SetTime seeks the clock. A running controller continues stepping from t.
func (tc *TimeController) SetTime(t calendar.DateTime) {
	tc.mu.Lock()
	tc.current = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked with the new time after every
// step. Listeners run on the controller goroutine, one after another.
func (tc *TimeController) AddListener(fn func(calendar.DateTime)) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Start advances the clock from Now() in a separate goroutine, steps times
// or until ctx is cancelled when steps <= 0. The returned channel closes
// when the loop exits.
func (tc *TimeController) Start(ctx context.Context, steps int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var tick <-chan time.Time
		if tc.Mode == RealTime && tc.Interval > 0 {
			ticker := time.NewTicker(tc.Interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for n := 0; steps <= 0 || n < steps; n++ {
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			} else if ctx.Err() != nil {
				return
			}
			tc.advance()
		}
	}()
	return done
}

func (tc *TimeController) advance() {
	tc.mu.Lock()
	tc.current = tc.Step.Apply(tc.current)
	now := tc.current
	listeners := append([]func(calendar.DateTime){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
}
