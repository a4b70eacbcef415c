package service

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"strata-netmon/internal/keys"
	"strata-netmon/internal/model"
	"strata-netmon/internal/snapshot"
)

// displayDecimals is the fixed precision of balances served to clients.
const displayDecimals = 8

// weiExponent converts wei to the display unit.
const weiExponent = -18

// QueryOptions carries configuration the query layer needs when a slot is unpopulated.
type QueryOptions struct {
	DepositWallet    string
	ValidatingWallet string
}

// QueryService shapes snapshot reads for the HTTP boundary. It keeps no state of
// its own; every call reads the store afresh.
type QueryService struct {
	store  *snapshot.Store
	schema *keys.Schema
	status StatusSource
	opts   QueryOptions
}

// NewQueryService constructs the query layer. status may be nil.
func NewQueryService(store *snapshot.Store, schema *keys.Schema, status StatusSource, opts QueryOptions) *QueryService {
	return &QueryService{store: store, schema: schema, status: status, opts: opts}
}

// GetNetworkStatus returns the cached status, or all-unknown before the first commit.
func (q *QueryService) GetNetworkStatus() model.NetworkStatus {
	snap := q.store.Status.Read()
	if !snap.Populated {
		return model.UnknownNetworkStatus()
	}
	return snap.Value
}

// WalletView is a wallet with its balance in display units. Balance is nil when unknown.
type WalletView struct {
	Address string  `json:"address"`
	Balance *string `json:"balance"`
}

// WalletsView groups the paymaster wallets for display.
type WalletsView struct {
	Deposit    WalletView `json:"deposit"`
	Validating WalletView `json:"validating"`
}

// BalancesView is the /api/balances document.
type BalancesView struct {
	Wallets WalletsView `json:"wallets"`
}

// GetBalances converts cached wei balances to 8-decimal display strings.
func (q *QueryService) GetBalances() BalancesView {
	snap := q.store.Balances.Read()
	if !snap.Populated {
		return BalancesView{Wallets: WalletsView{
			Deposit:    WalletView{Address: q.opts.DepositWallet},
			Validating: WalletView{Address: q.opts.ValidatingWallet},
		}}
	}
	return BalancesView{Wallets: WalletsView{
		Deposit:    walletView(snap.Value.Deposit),
		Validating: walletView(snap.Value.Validating),
	}}
}

func walletView(w model.Wallet) WalletView {
	view := WalletView{Address: w.Address}
	if w.Balance != nil {
		s := FormatWei(w.Balance)
		view.Balance = &s
	}
	return view
}

// FormatWei renders raw wei as a fixed 8-decimal string, truncating toward zero.
func FormatWei(raw *big.Int) string {
	return decimal.NewFromBigInt(raw, weiExponent).Truncate(displayDecimals).StringFixed(displayDecimals)
}

// GetBridgeStatus returns the cached bridge status, or empty lists before the first commit.
func (q *QueryService) GetBridgeStatus() model.BridgeStatus {
	snap := q.store.Bridge.Read()
	if !snap.Populated {
		return model.EmptyBridgeStatus()
	}
	return snap.Value
}

// ActivityQuery narrows an activity read. Empty fields select everything.
// Values are display names from the key document.
type ActivityQuery struct {
	Window    string
	Stat      string
	Selection string
}

// GetActivityStats returns the cached stats, narrowed by q. Names that are not
// configured produce empty mappings rather than an error.
func (q *QueryService) GetActivityStats(query ActivityQuery) model.ActivityStats {
	snap := q.store.Activity.Read()
	src := snap.Value
	if !snap.Populated {
		src = q.schema.EmptyStats()
	}

	out := model.NewActivityStats()
	for stat, windows := range src.Stats {
		if query.Stat != "" && stat != query.Stat {
			continue
		}
		if query.Window == "" {
			out.Stats[stat] = copyWindows(windows)
			continue
		}
		if v, ok := windows[query.Window]; ok {
			out.Stats[stat] = map[string]uint64{query.Window: v}
		}
	}
	for sel, accounts := range src.SelectedAccounts {
		if query.Selection != "" && sel != query.Selection {
			continue
		}
		out.SelectedAccounts[sel] = append([]model.Account{}, accounts...)
	}
	return out
}

func copyWindows(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// KeySchema is the vocabulary a client uses to address activity stats.
type KeySchema struct {
	Version        int      `json:"version"`
	StatNames      []string `json:"stat_names"`
	TimeWindows    []string `json:"time_windows"`
	SelectionNames []string `json:"selection_names"`
}

// GetKeySchema lists the configured names.
func (q *QueryService) GetKeySchema() KeySchema {
	return KeySchema{
		Version:        q.schema.Version(),
		StatNames:      q.schema.StatNames(),
		TimeWindows:    q.schema.WindowNames(),
		SelectionNames: q.schema.SelectionNames(),
	}
}

// KeyDocument returns the versioned key document as loaded at startup.
func (q *QueryService) KeyDocument() []byte {
	return q.schema.Raw()
}

// DomainHealth is the freshness of one domain.
type DomainHealth struct {
	Domain              model.Domain        `json:"domain"`
	Populated           bool                `json:"populated"`
	FetchedAt           *time.Time          `json:"fetched_at"`
	AttemptedAt         *time.Time          `json:"attempted_at"`
	LastError           *snapshot.ErrorInfo `json:"last_error"`
	PollerState         string              `json:"poller_state"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
}

// HealthReport is the /api/health document.
type HealthReport struct {
	Domains []DomainHealth `json:"domains"`
}

// GetHealth reports the freshness of every domain.
func (q *QueryService) GetHealth() HealthReport {
	reports := q.store.Reports()
	out := HealthReport{Domains: make([]DomainHealth, 0, len(reports))}
	for _, r := range reports {
		h := DomainHealth{
			Domain:      r.Domain,
			Populated:   r.Populated,
			FetchedAt:   timePtr(r.FetchedAt),
			AttemptedAt: timePtr(r.AttemptedAt),
			LastError:   r.LastError,
			PollerState: "disabled",
		}
		if q.status != nil {
			if st, ok := q.status.PollerStatus(r.Domain); ok {
				h.PollerState = st.State
				h.ConsecutiveFailures = st.ConsecutiveFailures
			}
		}
		out.Domains = append(out.Domains, h)
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
