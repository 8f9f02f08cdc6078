// Package timing provides the timer abstraction used by every component that
// needs to wait: connection timeouts, delayed disconnects, admission sweeps,
// scheduler spacing and cache eviction. Production code runs on the wall
// clock; tests drive a clock.Mock instead of sleeping.
package timing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/srg/nearby/internal/groutine"
)

// CancelFunc stops a pending callback. Calling it more than once is a no-op.
type CancelFunc func()

// Scheduler schedules callbacks relative to a clock.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func()) CancelFunc
	Every(interval time.Duration, fn func()) CancelFunc
}

// ClockScheduler implements Scheduler on top of a clock.Clock.
type ClockScheduler struct {
	clock clock.Clock
}

// New returns a Scheduler backed by c. A nil clock means the wall clock.
func New(c clock.Clock) *ClockScheduler {
	if c == nil {
		c = clock.New()
	}
	return &ClockScheduler{clock: c}
}

func (s *ClockScheduler) Now() time.Time {
	return s.clock.Now()
}

// After runs fn once, d from now. A non-positive d runs fn on a fresh
// goroutine without involving the clock.
func (s *ClockScheduler) After(d time.Duration, fn func()) CancelFunc {
	var cancelled atomic.Bool

	if d <= 0 {
		groutine.Go(context.Background(), "timing-after", func(context.Context) {
			if !cancelled.Load() {
				fn()
			}
		})
		return func() { cancelled.Store(true) }
	}

	t := s.clock.AfterFunc(d, func() {
		if cancelled.Load() {
			return
		}
		fn()
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Every runs fn each interval until cancelled. Ticks are not queued: a slow fn
// makes the ticker drop ticks rather than pile them up.
func (s *ClockScheduler) Every(interval time.Duration, fn func()) CancelFunc {
	ticker := s.clock.Ticker(interval)
	done := make(chan struct{})
	var once sync.Once

	groutine.Go(context.Background(), "timing-every", func(context.Context) {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	})

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
