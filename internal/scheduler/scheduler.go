package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per period. Errors are logged and never stop the loop.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	StartupDelay time.Duration
	// Immediate runs the first tick without waiting a full interval.
	Immediate bool
}

// Scheduler drives a fixed-period loop. Ticks never overlap: a tick that overruns
// its period pushes the next one out rather than queueing a catch-up.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	l := logger.With().Str("component", "scheduler")
	if opts.Name != "" {
		l = l.Str("domain", opts.Name)
	}
	return &Scheduler{opts: opts, logger: l.Logger()}
}

// Run blocks, invoking tick every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := time.Now().UTC()
	if !s.opts.Immediate {
		next = next.Add(s.opts.Interval)
	}

	for {
		delay := time.Until(next)
		if delay < 0 {
			s.logger.Debug().Dur("overrun", -delay).Msg("tick overran its period")
			next = time.Now().UTC()
			delay = 0
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := tick(ctx, next); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Time("at", next).Msg("tick execution failed")
		}

		next = next.Add(s.opts.Interval)
	}
}
