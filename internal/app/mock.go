package app

import (
	"context"
	"os/signal"
	"syscall"

	"strata-netmon/internal/mockrpc"
)

// MockRPC serves the canned upstreams on the configured strata and bridge
// addresses until SIGINT or SIGTERM.
func (a *App) MockRPC(ctx context.Context, fixturesDir string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if fixturesDir == "" {
		fixturesDir = a.Config.Mock.FixturesDir
	}
	fx, err := mockrpc.LoadFixtures(fixturesDir)
	if err != nil {
		return err
	}
	handler, err := mockrpc.NewHandler(fx, nil, a.Logger)
	if err != nil {
		return err
	}
	defer handler.Close()

	addrs := []string{a.Config.Mock.StrataAddr}
	if b := a.Config.Mock.BridgeAddr; b != "" && b != a.Config.Mock.StrataAddr {
		addrs = append(addrs, b)
	}
	return mockrpc.Serve(ctx, addrs, handler, a.Logger)
}
