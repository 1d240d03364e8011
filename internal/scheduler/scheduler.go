// Package scheduler runs periodic housekeeping for long-lived in-memory state.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops state that has been idle for too long.
type Sweeper interface {
	SweepIdle(maxIdle time.Duration) int
}

// SweeperFunc adapts a function to the Sweeper interface.
type SweeperFunc func(maxIdle time.Duration) int

// SweepIdle calls f(maxIdle).
func (f SweeperFunc) SweepIdle(maxIdle time.Duration) int {
	return f(maxIdle)
}

// Scheduler periodically sweeps idle state such as feed sessions and
// expired cache entries.
type Scheduler struct {
	sweepers []Sweeper
	maxIdle  time.Duration
	log      *slog.Logger
	tick     time.Duration
}

// New creates a Scheduler that removes state idle for longer than maxIdle.
func New(maxIdle time.Duration, log *slog.Logger, sweepers ...Sweeper) *Scheduler {
	return &Scheduler{
		sweepers: sweepers,
		maxIdle:  maxIdle,
		log:      log,
		tick:     1 * time.Minute,
	}
}

// SetTickInterval overrides the default 1-minute sweep interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAll()
		}
	}
}

func (s *Scheduler) sweepAll() int {
	total := 0
	for _, sw := range s.sweepers {
		total += sw.SweepIdle(s.maxIdle)
	}
	if total > 0 {
		s.log.Info("swept idle state", "count", total, "max_idle", s.maxIdle)
	}
	return total
}
