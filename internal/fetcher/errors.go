package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrorKind classifies a failed poll.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindTransport ErrorKind = "transport"
	KindMalformed ErrorKind = "malformed_response"
	KindUpstream  ErrorKind = "upstream_error"
)

// codeNotFound is the JSON-RPC error code strata nodes use for missing entries.
const codeNotFound = -32000

// FetchError is the only error type returned by upstream clients.
type FetchError struct {
	Kind ErrorKind
	// Code is the JSON-RPC error code or HTTP status for KindUpstream.
	Code int
	Op   string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Kind == KindUpstream && e.Code != 0 {
		return fmt.Sprintf("%s: %s %d: %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Malformed reports a response that does not match the expected shape.
func Malformed(op string, err error) *FetchError {
	return &FetchError{Kind: KindMalformed, Op: op, Err: err}
}

// Upstream reports an application-level failure signalled by the upstream.
func Upstream(op string, code int, err error) *FetchError {
	return &FetchError{Kind: KindUpstream, Code: code, Op: op, Err: err}
}

// Classify maps an arbitrary error from a client call onto the taxonomy.
// Errors that are already a *FetchError are returned unchanged.
func Classify(op string, err error) *FetchError {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &FetchError{Kind: KindTimeout, Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, Op: op, Err: err}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return Upstream(op, rpcErr.ErrorCode(), err)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return Upstream(op, httpErr.StatusCode, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return Malformed(op, err)
	}

	return &FetchError{Kind: KindTransport, Op: op, Err: err}
}

// IsNotFound reports whether err is a JSON-RPC not-found answer.
func IsNotFound(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == codeNotFound
	}
	return false
}
