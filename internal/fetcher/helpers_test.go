package fetcher

import (
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// newRPCServer serves the given namespaces over HTTP JSON-RPC.
func newRPCServer(t *testing.T, services map[string]any) *httptest.Server {
	t.Helper()

	srv := rpc.NewServer()
	for namespace, svc := range services {
		if err := srv.RegisterName(namespace, svc); err != nil {
			t.Fatalf("register %s: %v", namespace, err)
		}
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return ts
}

type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

func notFound() error {
	return &rpcError{code: codeNotFound, msg: "not found"}
}
