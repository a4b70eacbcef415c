package fetcher

import (
	"context"

	"strata-netmon/internal/model"
)

// Fetcher performs one poll of an upstream domain. Failures are returned as *FetchError.
type Fetcher[T any] interface {
	Fetch(ctx context.Context) (T, error)
}

// Func adapts a plain function to Fetcher.
type Func[T any] func(ctx context.Context) (T, error)

// Fetch calls f.
func (f Func[T]) Fetch(ctx context.Context) (T, error) {
	return f(ctx)
}

// NetworkStatusFetcher polls node, RPC and bundler health.
type NetworkStatusFetcher = Fetcher[model.NetworkStatus]

// BalanceFetcher polls the paymaster wallet balances.
type BalanceFetcher = Fetcher[model.PaymasterWallets]

// BridgeStatusFetcher polls bridge operators and transfers.
type BridgeStatusFetcher = Fetcher[model.BridgeStatus]

// ActivityFetcher polls the block explorer and aggregates activity stats.
type ActivityFetcher = Fetcher[model.ActivityStats]
