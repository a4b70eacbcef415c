// Package poller drives one upstream client per domain on a fixed period and
// commits the outcome to that domain's cache slot.
//
// A poll that fails never discards the last committed value; the next tick is the
// only retry. Pollers of different domains share nothing but the metrics registry.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"strata-netmon/internal/alerting"
	"strata-netmon/internal/fetcher"
	"strata-netmon/internal/metrics"
	"strata-netmon/internal/model"
	"strata-netmon/internal/scheduler"
	"strata-netmon/internal/snapshot"
)

// State is the position of a poller in its fetch cycle.
type State int32

const (
	Idle State = iota
	Fetching
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const notifyTimeout = 15 * time.Second

// Options configure one poller.
type Options struct {
	Interval time.Duration
	// Timeout bounds a single fetch. It must be shorter than Interval so fetches never overlap.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures before the domain counts as failing.
	FailureThreshold int
	// Cooldown suppresses repeated failing notifications for the same domain.
	Cooldown time.Duration
	Notifier alerting.Notifier
	Now      func() time.Time
}

// Poller owns one fetcher and the slot it feeds. Only its own goroutine writes the slot.
type Poller[T any] struct {
	slot    *snapshot.Slot[T]
	fetcher fetcher.Fetcher[T]
	opts    Options
	logger  zerolog.Logger

	state    atomic.Int32
	failures atomic.Int64

	// owned by the polling goroutine
	failingSince time.Time
	failing      bool
	notified     bool
	lastNotified time.Time
}

// New validates the options and builds a poller for slot.
func New[T any](slot *snapshot.Slot[T], f fetcher.Fetcher[T], opts Options, logger zerolog.Logger) (*Poller[T], error) {
	if slot == nil || f == nil {
		return nil, errors.New("poller requires a slot and a fetcher")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("%s: interval must be positive", slot.Domain())
	}
	if opts.Timeout <= 0 || opts.Timeout >= opts.Interval {
		return nil, fmt.Errorf("%s: timeout %s must be positive and shorter than interval %s", slot.Domain(), opts.Timeout, opts.Interval)
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 1
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Poller[T]{
		slot:    slot,
		fetcher: f,
		opts:    opts,
		logger: logger.With().
			Str("component", "poller").
			Str("domain", string(slot.Domain())).
			Logger(),
	}, nil
}

// Domain returns the domain this poller feeds.
func (p *Poller[T]) Domain() model.Domain {
	return p.slot.Domain()
}

// State returns the current cycle state.
func (p *Poller[T]) State() State {
	return State(p.state.Load())
}

// ConsecutiveFailures returns the number of failed polls since the last commit.
func (p *Poller[T]) ConsecutiveFailures() int {
	return int(p.failures.Load())
}

// Run polls immediately and then once per interval until ctx is cancelled.
func (p *Poller[T]) Run(ctx context.Context) error {
	sched := scheduler.New(scheduler.Options{
		Name:      string(p.Domain()),
		Interval:  p.opts.Interval,
		Immediate: true,
	}, p.logger)

	p.logger.Info().Dur("interval", p.opts.Interval).Dur("timeout", p.opts.Timeout).Msg("poller started")
	err := sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		// Poll logs its own failures.
		_ = p.Poll(ctx)
		return nil
	})
	p.state.Store(int32(Idle))
	p.logger.Info().Msg("poller stopped")
	return err
}

// Poll performs one fetch cycle. The returned error is the classified fetch error,
// already recorded in the slot, or the context error on shutdown.
func (p *Poller[T]) Poll(ctx context.Context) error {
	p.state.Store(int32(Fetching))
	started := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	value, err := p.fetcher.Fetch(fetchCtx)
	cancel()
	elapsed := time.Since(started)

	if err != nil && ctx.Err() != nil {
		// Shutdown cancelled the fetch; the slot keeps its last state.
		p.state.Store(int32(Idle))
		return ctx.Err()
	}

	now := p.opts.Now()
	if err != nil {
		fe := fetcher.Classify(string(p.Domain()), err)
		p.fail(fe, now, elapsed)
		return fe
	}

	p.slot.Write(value, now)
	p.state.Store(int32(Committed))
	metrics.ObservePoll(p.Domain(), elapsed, metrics.ResultSuccess)
	metrics.MarkCommitted(p.Domain(), now)
	p.logger.Debug().Dur("elapsed", elapsed).Msg("snapshot committed")
	p.recovered(now)
	return nil
}

func (p *Poller[T]) fail(fe *fetcher.FetchError, now time.Time, elapsed time.Duration) {
	p.slot.RecordError(snapshot.ErrorInfo{
		Kind:    string(fe.Kind),
		Code:    fe.Code,
		Message: fe.Error(),
		At:      now,
	})
	p.state.Store(int32(Failed))
	metrics.ObservePoll(p.Domain(), elapsed, metrics.ResultFailure)
	metrics.MarkFailed(p.Domain())

	failures := int(p.failures.Add(1))
	if failures == 1 {
		p.failingSince = now
	}
	p.logger.Warn().Err(fe).
		Str("kind", string(fe.Kind)).
		Int("failures", failures).
		Dur("elapsed", elapsed).
		Msg("poll failed, serving last snapshot")

	if failures < p.opts.FailureThreshold || p.failing {
		return
	}
	p.failing = true
	p.logger.Error().Int("failures", failures).Time("since", p.failingSince).Msg("domain failing")

	if p.opts.Cooldown > 0 && !p.lastNotified.IsZero() && now.Sub(p.lastNotified) < p.opts.Cooldown {
		p.logger.Debug().Time("last_notified", p.lastNotified).Msg("failing notification suppressed by cooldown")
		return
	}
	p.notified = true
	p.lastNotified = now
	p.notify(alerting.Notification{
		Domain:    p.Domain(),
		Kind:      alerting.KindFailing,
		Failures:  failures,
		LastError: fe.Error(),
		Since:     p.failingSince,
		At:        now,
	})
}

func (p *Poller[T]) recovered(now time.Time) {
	failures := int(p.failures.Swap(0))
	if !p.failing {
		return
	}
	p.logger.Info().Int("failures", failures).Time("since", p.failingSince).Msg("domain recovered")
	if p.notified {
		p.notify(alerting.Notification{
			Domain:   p.Domain(),
			Kind:     alerting.KindRecovered,
			Failures: failures,
			Since:    p.failingSince,
			At:       now,
		})
	}
	p.failing = false
	p.notified = false
	p.failingSince = time.Time{}
}

// notify delivers off the polling goroutine so a slow notifier never delays the next tick.
func (p *Poller[T]) notify(note alerting.Notification) {
	if p.opts.Notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := p.opts.Notifier.Notify(ctx, note); err != nil {
			p.logger.Error().Err(err).Str("kind", string(note.Kind)).Msg("failed to dispatch notification")
		}
	}()
}
