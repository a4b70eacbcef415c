package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"strata-netmon/internal/model"
)

const maxHealthBody = 64 << 10

// StatusOptions parameterise the network status client.
type StatusOptions struct {
	NodeURL    string
	RPCURL     string
	BundlerURL string
	Timeout    time.Duration
}

// Status checks the batch producer, the execution RPC endpoint and the bundler.
// An unreachable endpoint is reported as offline; only an expired poll deadline fails the fetch.
type Status struct {
	node    *rpcConn
	exec    *rpcConn
	bundler *Bundler
	logger  zerolog.Logger
}

// NewStatus builds a network status client.
func NewStatus(opts StatusOptions, logger zerolog.Logger) *Status {
	return &Status{
		node:    newRPCConn(opts.NodeURL),
		exec:    newRPCConn(opts.RPCURL),
		bundler: NewBundler(opts.BundlerURL, opts.Timeout),
		logger:  logger.With().Str("component", "status_fetcher").Logger(),
	}
}

// Fetch runs the three checks concurrently.
func (s *Status) Fetch(ctx context.Context) (model.NetworkStatus, error) {
	var out model.NetworkStatus
	var g errgroup.Group

	g.Go(func() error {
		out.BatchProducer = s.checkNode(ctx)
		return nil
	})
	g.Go(func() error {
		out.RPCEndpoint = s.checkRPC(ctx)
		return nil
	})
	g.Go(func() error {
		out.BundlerEndpoint = s.checkBundler(ctx)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return model.NetworkStatus{}, Classify("network status", err)
	}
	return out, nil
}

// Close releases the RPC connections.
func (s *Status) Close() {
	s.node.Close()
	s.exec.Close()
}

func (s *Status) checkNode(ctx context.Context) model.HealthState {
	var result map[string]json.RawMessage
	if err := s.node.call(ctx, &result, "strata_syncStatus"); err != nil {
		s.logger.Debug().Err(err).Msg("batch producer check failed")
		return model.Offline
	}
	_, ok := result["tip_height"]
	return model.HealthFromBool(ok)
}

func (s *Status) checkRPC(ctx context.Context) model.HealthState {
	client, err := s.exec.eth(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("rpc endpoint dial failed")
		return model.Offline
	}
	if _, err := client.BlockNumber(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("rpc endpoint check failed")
		return model.Offline
	}
	return model.Online
}

func (s *Status) checkBundler(ctx context.Context) model.HealthState {
	ok, err := s.bundler.Healthy(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("bundler check failed")
		return model.Offline
	}
	return model.HealthFromBool(ok)
}

// Bundler checks the account-abstraction bundler health endpoint.
type Bundler struct {
	url    string
	client *http.Client
}

// NewBundler constructs a bundler health client.
func NewBundler(url string, timeout time.Duration) *Bundler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bundler{url: url, client: &http.Client{Timeout: timeout}}
}

// Healthy reports whether the endpoint answered 2xx with a body containing "ok".
func (b *Bundler) Healthy(ctx context.Context) (bool, error) {
	const op = "bundler health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return false, Classify(op, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return false, Classify(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return false, Classify(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, Upstream(op, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return strings.Contains(string(body), "ok"), nil
}

var _ NetworkStatusFetcher = (*Status)(nil)
