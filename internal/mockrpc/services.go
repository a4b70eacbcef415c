package mockrpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"strata-netmon/internal/model"
)

// codeNotFound matches the error code strata nodes return for unknown entries.
const codeNotFound = -32000

type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

func notFound(what string, key any) error {
	return &rpcError{code: codeNotFound, msg: fmt.Sprintf("%s %v not found", what, key)}
}

// strataService serves the strata namespace.
type strataService struct {
	node   *NodeFixture
	strata *StrataFixture
	logger zerolog.Logger
}

func (s *strataService) SyncStatus() json.RawMessage {
	return s.node.SyncStatus
}

func (s *strataService) GetActiveOperatorChainPubkeySet() map[string]string {
	return s.strata.Operators
}

func (s *strataService) GetCurrentDeposits() []uint32 {
	return s.strata.Deposits
}

func (s *strataService) GetCurrentDepositById(id uint32) (json.RawMessage, error) {
	entry, ok := s.strata.DepositEntries[strconv.FormatUint(uint64(id), 10)]
	if !ok {
		s.logger.Debug().Uint32("deposit", id).Msg("deposit entry not found")
		return nil, notFound("deposit", id)
	}
	return entry, nil
}

// bridgeService serves the stratabridge namespace.
type bridgeService struct {
	bridge *BridgeFixture
}

func (s *bridgeService) OperatorStatus(idx uint32) (json.RawMessage, error) {
	status, ok := s.bridge.OperatorStatus[strconv.FormatUint(uint64(idx), 10)]
	if !ok {
		return nil, notFound("operator", idx)
	}
	return status, nil
}

func (s *bridgeService) DepositInfo(outpoint string) (*model.DepositInfo, error) {
	info, ok := s.bridge.DepositInfos[outpoint]
	if !ok {
		return nil, notFound("deposit", outpoint)
	}
	return &info, nil
}

func (s *bridgeService) BridgeDuties() json.RawMessage {
	if len(s.bridge.Duties) == 0 {
		return json.RawMessage(`[]`)
	}
	return s.bridge.Duties
}

func (s *bridgeService) WithdrawalInfo(outpoint string) (*model.WithdrawalInfo, error) {
	info, ok := s.bridge.WithdrawalInfos[outpoint]
	if !ok {
		return nil, notFound("withdrawal", outpoint)
	}
	return &info, nil
}

func (s *bridgeService) GetClaims() []string {
	if s.bridge.Claims == nil {
		return []string{}
	}
	return s.bridge.Claims
}

func (s *bridgeService) GetClaimInfo(txid string) (*model.ReimbursementInfo, error) {
	info, ok := s.bridge.ClaimInfos[txid]
	if !ok {
		return nil, notFound("claim", txid)
	}
	return &info, nil
}

// ethService serves the subset of the eth namespace the monitor uses.
type ethService struct {
	node *NodeFixture
}

func (s *ethService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).SetUint64(s.node.ChainID))
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(s.node.BlockNumber)
}

// GetBalance ignores the block tag. Unknown addresses hold zero.
func (s *ethService) GetBalance(addr common.Address, _ string) *hexutil.Big {
	if v, ok := s.node.balances[addr]; ok {
		return (*hexutil.Big)(new(big.Int).Set(v))
	}
	return (*hexutil.Big)(new(big.Int))
}
