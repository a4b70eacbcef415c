package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"strata-netmon/internal/model"
)

// BalanceOptions parameterise the paymaster balance client.
type BalanceOptions struct {
	RPCURL           string
	DepositWallet    string
	ValidatingWallet string
}

// Balances reads paymaster wallet balances with eth_getBalance at the latest block.
type Balances struct {
	opts       BalanceOptions
	conn       *rpcConn
	deposit    common.Address
	validating common.Address
	logger     zerolog.Logger
}

// NewBalances validates the wallet addresses and builds the client.
func NewBalances(opts BalanceOptions, logger zerolog.Logger) (*Balances, error) {
	deposit, err := ParseWallet(opts.DepositWallet)
	if err != nil {
		return nil, fmt.Errorf("deposit wallet: %w", err)
	}
	validating, err := ParseWallet(opts.ValidatingWallet)
	if err != nil {
		return nil, fmt.Errorf("validating wallet: %w", err)
	}

	return &Balances{
		opts:       opts,
		conn:       newRPCConn(opts.RPCURL),
		deposit:    deposit,
		validating: validating,
		logger:     logger.With().Str("component", "balance_fetcher").Logger(),
	}, nil
}

// Fetch returns both wallets or an error; a partial result is never returned.
func (b *Balances) Fetch(ctx context.Context) (model.PaymasterWallets, error) {
	deposit, err := b.balanceOf(ctx, b.deposit)
	if err != nil {
		return model.PaymasterWallets{}, err
	}
	validating, err := b.balanceOf(ctx, b.validating)
	if err != nil {
		return model.PaymasterWallets{}, err
	}

	b.logger.Debug().
		Str("deposit", deposit.String()).
		Str("validating", validating.String()).
		Msg("balances fetched")

	return model.PaymasterWallets{
		Deposit:    model.Wallet{Address: b.opts.DepositWallet, Balance: deposit},
		Validating: model.Wallet{Address: b.opts.ValidatingWallet, Balance: validating},
	}, nil
}

// Close releases the RPC connection.
func (b *Balances) Close() {
	b.conn.Close()
}

func (b *Balances) balanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	const op = "eth_getBalance"

	client, err := b.conn.eth(ctx)
	if err != nil {
		return nil, Classify(op, err)
	}
	balance, err := client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, Classify(op, err)
	}
	if balance == nil || balance.Sign() < 0 {
		return nil, Malformed(op, errors.New("invalid balance"))
	}
	return balance, nil
}

// ParseWallet accepts 0x-prefixed hex addresses of up to 20 bytes. Short forms such as
// 0xCAFE are left-padded.
func ParseWallet(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, fmt.Errorf("address %q must start with 0x", s)
	}
	digits := s[2:]
	if len(digits) == 0 || len(digits) > 2*common.AddressLength {
		return common.Address{}, fmt.Errorf("address %q has invalid length", s)
	}
	for _, r := range digits {
		if !isHexDigit(r) {
			return common.Address{}, fmt.Errorf("address %q is not hex", s)
		}
	}
	return common.HexToAddress(s), nil
}

func isHexDigit(r rune) bool {
	return ('0' <= r && r <= '9') || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}

var _ BalanceFetcher = (*Balances)(nil)
