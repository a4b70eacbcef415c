package fetcher

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalancesFetch(t *testing.T) {
	huge, ok := new(big.Int).SetString("340282366920938463463374607431768211457", 10)
	require.True(t, ok)

	svc := &ethService{balances: map[common.Address]*big.Int{
		common.HexToAddress("0xCAFE"):   big.NewInt(1_500_000_000_000_000),
		common.HexToAddress("0xC0FFEE"): huge,
	}}
	srv := newRPCServer(t, map[string]any{"eth": svc})

	b, err := NewBalances(BalanceOptions{RPCURL: srv.URL, DepositWallet: "0xCAFE", ValidatingWallet: "0xC0FFEE"}, noopLogger())
	require.NoError(t, err)
	defer b.Close()

	wallets, err := b.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xCAFE", wallets.Deposit.Address)
	assert.Equal(t, "1500000000000000", wallets.Deposit.Balance.String())
	assert.Equal(t, "0xC0FFEE", wallets.Validating.Address)
	assert.Equal(t, 0, huge.Cmp(wallets.Validating.Balance), "balances beyond 128 bits must survive")
}

func TestBalancesUpstreamError(t *testing.T) {
	srv := newRPCServer(t, map[string]any{"eth": &ethService{failWith: &rpcError{code: -32005, msg: "limit exceeded"}}})

	b, err := NewBalances(BalanceOptions{RPCURL: srv.URL, DepositWallet: "0xCAFE", ValidatingWallet: "0xC0FFEE"}, noopLogger())
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Fetch(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindUpstream, fe.Kind)
	assert.Equal(t, -32005, fe.Code)
}

func TestBalancesTransportError(t *testing.T) {
	b, err := NewBalances(BalanceOptions{RPCURL: closedURL(t), DepositWallet: "0xCAFE", ValidatingWallet: "0xC0FFEE"}, noopLogger())
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Fetch(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindTransport, fe.Kind)
}

func TestParseWallet(t *testing.T) {
	addr, err := ParseWallet("0xCAFE")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x000000000000000000000000000000000000cafe"), addr)

	for _, bad := range []string{"", "CAFE", "0x", "0xZZ", "0x" + string(make([]byte, 41))} {
		_, err := ParseWallet(bad)
		assert.Error(t, err, bad)
	}
}
