package mockrpc

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"strata-netmon/internal/model"
)

//go:embed fixtures/*.json
var embedded embed.FS

// Fixture file names. A fixtures directory may override any subset of them.
const (
	NodeFile     = "node.json"
	StrataFile   = "strata.json"
	BridgeFile   = "bridge.json"
	ExplorerFile = "explorer.json"
)

// NodeFixture backs strata_syncStatus and the eth namespace.
type NodeFixture struct {
	SyncStatus  json.RawMessage   `json:"sync_status"`
	ChainID     uint64            `json:"chain_id"`
	BlockNumber uint64            `json:"block_number"`
	Balances    map[string]string `json:"balances"`

	balances map[common.Address]*big.Int
}

// StrataFixture backs the strata deposit and operator methods.
type StrataFixture struct {
	Operators      map[string]string          `json:"operators"`
	Deposits       []uint32                   `json:"deposits"`
	DepositEntries map[string]json.RawMessage `json:"deposit_entries"`
}

// BridgeFixture backs the stratabridge namespace.
type BridgeFixture struct {
	OperatorStatus  map[string]json.RawMessage         `json:"operator_status"`
	DepositInfos    map[string]model.DepositInfo       `json:"deposit_infos"`
	Duties          json.RawMessage                    `json:"duties"`
	WithdrawalInfos map[string]model.WithdrawalInfo    `json:"withdrawal_infos"`
	Claims          []string                           `json:"claims"`
	ClaimInfos      map[string]model.ReimbursementInfo `json:"claim_infos"`
}

// ExplorerFixture backs the account-abstraction explorer endpoints. Ages are
// relative to the request time so the windows stay populated.
type ExplorerFixture struct {
	Operations []ExplorerOperation `json:"operations"`
	Accounts   []ExplorerAccount   `json:"accounts"`
}

// ExplorerOperation is one user operation, Age before now.
type ExplorerOperation struct {
	Sender string `json:"sender"`
	Fee    string `json:"fee"`
	Age    string `json:"age"`

	age time.Duration
}

// ExplorerAccount is one smart account. An empty Age renders a null creation timestamp.
type ExplorerAccount struct {
	Address string `json:"address"`
	Age     string `json:"age"`

	age *time.Duration
}

// Fixtures is the full canned data set.
type Fixtures struct {
	Node     NodeFixture
	Strata   StrataFixture
	Bridge   BridgeFixture
	Explorer ExplorerFixture
}

// LoadFixtures reads the embedded fixtures, replacing each file found in dir.
func LoadFixtures(dir string) (*Fixtures, error) {
	var fx Fixtures
	files := []struct {
		name string
		dst  any
	}{
		{NodeFile, &fx.Node},
		{StrataFile, &fx.Strata},
		{BridgeFile, &fx.Bridge},
		{ExplorerFile, &fx.Explorer},
	}
	for _, f := range files {
		raw, err := readFixture(dir, f.name)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode fixture %s: %w", f.name, err)
		}
	}
	if err := fx.prepare(); err != nil {
		return nil, err
	}
	return &fx, nil
}

func readFixture(dir, name string) ([]byte, error) {
	if dir != "" {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read fixture %s: %w", name, err)
		}
	}
	return embedded.ReadFile("fixtures/" + name)
}

func (fx *Fixtures) prepare() error {
	fx.Node.balances = make(map[common.Address]*big.Int, len(fx.Node.Balances))
	for addr, wei := range fx.Node.Balances {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("node fixture: invalid address %q", addr)
		}
		v, ok := new(big.Int).SetString(wei, 10)
		if !ok || v.Sign() < 0 {
			return fmt.Errorf("node fixture: invalid balance %q for %s", wei, addr)
		}
		fx.Node.balances[common.HexToAddress(addr)] = v
	}

	for i := range fx.Explorer.Operations {
		op := &fx.Explorer.Operations[i]
		age, err := time.ParseDuration(op.Age)
		if err != nil {
			return fmt.Errorf("explorer fixture: operation %d age: %w", i, err)
		}
		op.age = age
	}
	for i := range fx.Explorer.Accounts {
		acc := &fx.Explorer.Accounts[i]
		if acc.Age == "" {
			continue
		}
		age, err := time.ParseDuration(acc.Age)
		if err != nil {
			return fmt.Errorf("explorer fixture: account %d age: %w", i, err)
		}
		acc.age = &age
	}
	return nil
}
