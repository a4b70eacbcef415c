package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata-netmon/internal/model"
	"strata-netmon/internal/poller"
)

type fakeRunner struct {
	domain model.Domain
	runs   atomic.Int32
	err    error
}

func (f *fakeRunner) Domain() model.Domain { return f.domain }

func (f *fakeRunner) Run(ctx context.Context) error {
	f.runs.Add(1)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeRunner) State() poller.State { return poller.Fetching }

func (f *fakeRunner) ConsecutiveFailures() int { return 1 }

func TestMonitorRunsAllPollers(t *testing.T) {
	a := &fakeRunner{domain: model.DomainStatus}
	b := &fakeRunner{domain: model.DomainActivity}
	m, err := NewMonitor([]Runner{a, b}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.runs.Load() == 1 && b.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitorSurfacesUnexpectedErrors(t *testing.T) {
	broken := &fakeRunner{domain: model.DomainBridge, err: errors.New("scheduler misconfigured")}
	healthy := &fakeRunner{domain: model.DomainStatus}
	m, err := NewMonitor([]Runner{broken, healthy}, zerolog.Nop())
	require.NoError(t, err)

	err = m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poller bridge")
}

func TestMonitorRejectsDuplicateDomain(t *testing.T) {
	_, err := NewMonitor([]Runner{
		&fakeRunner{domain: model.DomainStatus},
		&fakeRunner{domain: model.DomainStatus},
	}, zerolog.Nop())
	assert.Error(t, err)
}

func TestMonitorPollerStatus(t *testing.T) {
	m, err := NewMonitor([]Runner{&fakeRunner{domain: model.DomainBalances}}, zerolog.Nop())
	require.NoError(t, err)

	st, ok := m.PollerStatus(model.DomainBalances)
	require.True(t, ok)
	assert.Equal(t, "fetching", st.State)
	assert.Equal(t, 1, st.ConsecutiveFailures)

	_, ok = m.PollerStatus(model.DomainActivity)
	assert.False(t, ok)
}

func TestMonitorWithoutPollers(t *testing.T) {
	m, err := NewMonitor(nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Error(t, m.Run(context.Background()))
}
