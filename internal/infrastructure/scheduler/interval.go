package scheduler

import (
	"context"
	"time"

	"newsdash/internal/ports"
)

// Interval runs a job immediately and then at a fixed period. The sleep is
// interruptible by context cancellation or Stop, and the cancellation signal
// is checked again after waking before the job runs.
type Interval struct {
	period time.Duration
	stop   chan struct{}
}

var _ ports.Scheduler = (*Interval)(nil)

// NewInterval builds a driver that fires every period.
func NewInterval(period time.Duration) *Interval {
	return &Interval{period: period}
}

// Start begins the loop in a background goroutine. Starting twice is a no-op.
func (s *Interval) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	if s.stop != nil {
		return nil
	}

	s.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case t := <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				job(t)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the loop goroutine.
func (s *Interval) Stop(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.stop = nil
	return nil
}
