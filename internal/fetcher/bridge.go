package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"strata-netmon/internal/model"
)

const (
	statusOnline  = "Online"
	statusOffline = "Offline"
	noState       = "-"

	rowConcurrency = 8
)

// BridgeOptions parameterise the bridge status client.
type BridgeOptions struct {
	StrataRPCURL        string
	BridgeRPCURL        string
	OperatorPingTimeout time.Duration
	OperatorLabel       string
}

// Bridge assembles operator, deposit, withdrawal and reimbursement rows from the
// strata node and the bridge monitoring RPC. Row status strings are passed through.
type Bridge struct {
	opts   BridgeOptions
	strata *rpcConn
	bridge *rpcConn
	logger zerolog.Logger
}

// NewBridge constructs a bridge status client.
func NewBridge(opts BridgeOptions, logger zerolog.Logger) *Bridge {
	if opts.OperatorPingTimeout <= 0 {
		opts.OperatorPingTimeout = 5 * time.Second
	}
	if opts.OperatorLabel == "" {
		opts.OperatorLabel = "Alpen Labs"
	}
	return &Bridge{
		opts:   opts,
		strata: newRPCConn(opts.StrataRPCURL),
		bridge: newRPCConn(opts.BridgeRPCURL),
		logger: logger.With().Str("component", "bridge_fetcher").Logger(),
	}
}

// Fetch returns the full bridge status. Any list call failing fails the poll.
func (b *Bridge) Fetch(ctx context.Context) (model.BridgeStatus, error) {
	out := model.EmptyBridgeStatus()

	operators, err := b.operators(ctx)
	if err != nil {
		return model.BridgeStatus{}, err
	}
	out.Operators = operators

	deposits, err := b.deposits(ctx)
	if err != nil {
		return model.BridgeStatus{}, err
	}
	out.Deposits = deposits

	withdrawals, err := b.withdrawals(ctx)
	if err != nil {
		return model.BridgeStatus{}, err
	}
	out.Withdrawals = withdrawals

	reimbursements, err := b.reimbursements(ctx)
	if err != nil {
		return model.BridgeStatus{}, err
	}
	out.Reimbursements = reimbursements

	return out, nil
}

// Close releases both RPC connections.
func (b *Bridge) Close() {
	b.strata.Close()
	b.bridge.Close()
}

func (b *Bridge) operators(ctx context.Context) ([]model.OperatorStatus, error) {
	const op = "strata_getActiveOperatorChainPubkeySet"

	var table map[string]string
	if err := b.strata.call(ctx, &table, op); err != nil {
		return nil, err
	}

	indexes := make([]uint32, 0, len(table))
	for key := range table {
		idx, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return nil, Malformed(op, fmt.Errorf("operator index %q: %w", key, err))
		}
		indexes = append(indexes, uint32(idx))
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	rows := make([]model.OperatorStatus, len(indexes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rowConcurrency)
	for i, idx := range indexes {
		g.Go(func() error {
			rows[i] = model.OperatorStatus{
				OperatorID:      fmt.Sprintf("%s #%d", b.opts.OperatorLabel, idx),
				OperatorAddress: table[strconv.FormatUint(uint64(idx), 10)],
				Status:          b.operatorStatus(gctx, idx),
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, Classify(op, err)
	}
	return rows, nil
}

// operatorStatus pings one operator. Any failure within the ping timeout means offline.
func (b *Bridge) operatorStatus(ctx context.Context, idx uint32) string {
	ctx, cancel := context.WithTimeout(ctx, b.opts.OperatorPingTimeout)
	defer cancel()

	var raw json.RawMessage
	if err := b.bridge.call(ctx, &raw, "stratabridge_operatorStatus", idx); err != nil {
		b.logger.Debug().Err(err).Uint32("operator", idx).Msg("operator ping failed")
		return statusOffline
	}

	var online bool
	if err := json.Unmarshal(raw, &online); err == nil {
		if online {
			return statusOnline
		}
		return statusOffline
	}
	var status string
	if err := json.Unmarshal(raw, &status); err == nil && status != "" {
		return status
	}

	b.logger.Warn().Uint32("operator", idx).RawJSON("status", raw).Msg("unrecognised operator status")
	return statusOffline
}

type depositEntry struct {
	DepositIdx            uint32          `json:"deposit_idx"`
	Output                string          `json:"output"`
	NotaryOperators       []uint32        `json:"notary_operators"`
	Amt                   uint64          `json:"amt"`
	WithdrawalRequestTxid *string         `json:"withdrawal_request_txid"`
	State                 json.RawMessage `json:"state"`
}

func (b *Bridge) deposits(ctx context.Context) ([]model.DepositInfo, error) {
	var ids []uint32
	if err := b.strata.call(ctx, &ids, "strata_getCurrentDeposits"); err != nil {
		return nil, err
	}

	rows := make([]*model.DepositInfo, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rowConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			row, err := b.deposit(gctx, id)
			if err != nil {
				return err
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.DepositInfo, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}
	return out, nil
}

// deposit returns nil without error when the node no longer knows the entry.
func (b *Bridge) deposit(ctx context.Context, id uint32) (*model.DepositInfo, error) {
	const op = "strata_getCurrentDepositById"

	var entry *depositEntry
	if err := b.strata.call(ctx, &entry, op, id); err != nil {
		if IsNotFound(err) {
			b.logger.Warn().Uint32("deposit", id).Msg("missing deposit entry")
			return nil, nil
		}
		return nil, err
	}
	if entry == nil || entry.Output == "" {
		return nil, Malformed(op, fmt.Errorf("deposit %d has no output", id))
	}

	var info *model.DepositInfo
	err := b.bridge.call(ctx, &info, "stratabridge_depositInfo", entry.Output)
	switch {
	case err == nil && info != nil:
		if info.DepositRequestTxid == "" || info.Status == "" {
			return nil, Malformed("stratabridge_depositInfo", fmt.Errorf("deposit %s incomplete", entry.Output))
		}
		return info, nil
	case err == nil, IsNotFound(err):
		// Bridge has not seen the deposit yet; fall back to the node's view.
	default:
		return nil, err
	}

	state, err := depositState(entry.State)
	if err != nil {
		return nil, Malformed(op, fmt.Errorf("deposit %d: %w", id, err))
	}
	return &model.DepositInfo{
		DepositRequestTxid: outpointTxid(entry.Output),
		Status:             state,
	}, nil
}

func (b *Bridge) withdrawals(ctx context.Context) ([]model.WithdrawalInfo, error) {
	const op = "stratabridge_bridgeDuties"

	var raw json.RawMessage
	if err := b.bridge.call(ctx, &raw, op); err != nil {
		return nil, err
	}
	duties, err := decodeDuties(raw)
	if err != nil {
		return nil, Malformed(op, err)
	}

	out := make([]model.WithdrawalInfo, 0)
	for _, duty := range duties {
		if duty.DepositOutpoint == "" || duty.AssignedOperatorIdx == nil {
			continue
		}

		var info *model.WithdrawalInfo
		if err := b.bridge.call(ctx, &info, "stratabridge_withdrawalInfo", duty.DepositOutpoint); err != nil {
			if IsNotFound(err) {
				b.logger.Warn().Str("outpoint", duty.DepositOutpoint).Msg("missing withdrawal info")
				continue
			}
			return nil, err
		}
		if info == nil || info.WithdrawalRequestTxid == "" || info.Status == "" {
			return nil, Malformed("stratabridge_withdrawalInfo", fmt.Errorf("withdrawal %s incomplete", duty.DepositOutpoint))
		}
		out = append(out, *info)
	}
	return out, nil
}

func (b *Bridge) reimbursements(ctx context.Context) ([]model.ReimbursementInfo, error) {
	var claims []string
	if err := b.bridge.call(ctx, &claims, "stratabridge_getClaims"); err != nil {
		return nil, err
	}

	out := make([]model.ReimbursementInfo, 0, len(claims))
	for _, txid := range claims {
		var info *model.ReimbursementInfo
		if err := b.bridge.call(ctx, &info, "stratabridge_getClaimInfo", txid); err != nil {
			if IsNotFound(err) {
				b.logger.Warn().Str("claim", txid).Msg("missing claim info")
				continue
			}
			return nil, err
		}
		if info == nil || info.ClaimTxid == "" || info.Status == "" {
			return nil, Malformed("stratabridge_getClaimInfo", fmt.Errorf("claim %s incomplete", txid))
		}
		out = append(out, *info)
	}
	return out, nil
}

type bridgeDuty struct {
	DepositOutpoint     string  `json:"deposit_outpoint"`
	AssignedOperatorIdx *uint32 `json:"assigned_operator_idx"`
}

// decodeDuties accepts either a bare duty list or the paged {"duties": [...]} form.
func decodeDuties(raw json.RawMessage) ([]bridgeDuty, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var duties []bridgeDuty
		if err := json.Unmarshal(trimmed, &duties); err != nil {
			return nil, err
		}
		return duties, nil
	}

	var paged struct {
		Duties []bridgeDuty `json:"duties"`
	}
	if err := json.Unmarshal(trimmed, &paged); err != nil {
		return nil, err
	}
	return paged.Duties, nil
}

// depositState reads a state that is either a string or a single-key object
// and capitalises it. An absent state becomes "-".
func depositState(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return noState, nil
	}

	var name string
	if err := json.Unmarshal(trimmed, &name); err != nil {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return "", errors.New("state must be a string or an object")
		}
		if len(obj) != 1 {
			return "", fmt.Errorf("state object has %d keys", len(obj))
		}
		for key := range obj {
			name = key
		}
	}
	if name == "" {
		return noState, nil
	}
	return capitalize(name), nil
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// outpointTxid strips the ":vout" suffix from an outpoint.
func outpointTxid(outpoint string) string {
	if i := strings.LastIndexByte(outpoint, ':'); i >= 0 {
		return outpoint[:i]
	}
	return outpoint
}

var _ BridgeStatusFetcher = (*Bridge)(nil)
