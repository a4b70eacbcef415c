package model

import "math/big"

// Wallet holds a paymaster address and its balance in wei.
type Wallet struct {
	Address string
	Balance *big.Int
}

// PaymasterWallets groups the two monitored paymaster wallets.
type PaymasterWallets struct {
	Deposit    Wallet
	Validating Wallet
}
