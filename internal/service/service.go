package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"strata-netmon/internal/model"
	"strata-netmon/internal/poller"
)

// Runner is a domain poller as seen by the Monitor.
type Runner interface {
	Domain() model.Domain
	Run(ctx context.Context) error
	State() poller.State
	ConsecutiveFailures() int
}

// PollerStatus is the live cycle state of one domain poller.
type PollerStatus struct {
	State               string
	ConsecutiveFailures int
}

// StatusSource reports poller states to the query layer.
type StatusSource interface {
	PollerStatus(domain model.Domain) (PollerStatus, bool)
}

// Monitor runs one poller per domain concurrently.
type Monitor struct {
	pollers map[model.Domain]Runner
	order   []model.Domain
	logger  zerolog.Logger
}

// NewMonitor constructs the monitor. Each domain may have at most one poller.
func NewMonitor(pollers []Runner, logger zerolog.Logger) (*Monitor, error) {
	m := &Monitor{
		pollers: make(map[model.Domain]Runner, len(pollers)),
		logger:  logger.With().Str("component", "monitor").Logger(),
	}
	for _, p := range pollers {
		if _, dup := m.pollers[p.Domain()]; dup {
			return nil, fmt.Errorf("duplicate poller for domain %s", p.Domain())
		}
		m.pollers[p.Domain()] = p
		m.order = append(m.order, p.Domain())
	}
	return m, nil
}

// Run blocks until ctx is cancelled. A poller never stops because of upstream
// failures, so any non-cancellation error is a programming fault.
func (m *Monitor) Run(ctx context.Context) error {
	if len(m.pollers) == 0 {
		return errors.New("no pollers configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, domain := range m.order {
		p := m.pollers[domain]
		g.Go(func() error {
			err := p.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("poller %s: %w", p.Domain(), err)
			}
			return nil
		})
	}

	m.logger.Info().Int("pollers", len(m.order)).Msg("monitor started")
	err := g.Wait()
	m.logger.Info().Msg("monitor stopped")
	return err
}

// PollerStatus implements StatusSource.
func (m *Monitor) PollerStatus(domain model.Domain) (PollerStatus, bool) {
	p, ok := m.pollers[domain]
	if !ok {
		return PollerStatus{}, false
	}
	return PollerStatus{
		State:               p.State().String(),
		ConsecutiveFailures: p.ConsecutiveFailures(),
	}, true
}
