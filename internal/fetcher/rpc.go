package fetcher

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// rpcConn dials lazily so a node that is down at startup does not block the process.
type rpcConn struct {
	url    string
	mu     sync.Mutex
	client *rpc.Client
}

func newRPCConn(url string) *rpcConn {
	return &rpcConn{url: url}
}

func (c *rpcConn) get(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.url == "" {
		return nil, errors.New("rpc url not configured")
	}

	client, err := rpc.DialContext(ctx, c.url)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *rpcConn) call(ctx context.Context, result any, method string, args ...any) error {
	client, err := c.get(ctx)
	if err != nil {
		return Classify(method, err)
	}
	if err := client.CallContext(ctx, result, method, args...); err != nil {
		return Classify(method, err)
	}
	return nil
}

func (c *rpcConn) eth(ctx context.Context) (*ethclient.Client, error) {
	client, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(client), nil
}

func (c *rpcConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}
