package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"strata-netmon/internal/keys"
	"strata-netmon/internal/model"
)

const explorerTimeLayout = "2006-01-02 15:04:05"

// ErrPageLimit means the explorer still had pages left after MaxPages were read.
// The poll fails rather than committing stats built from a truncated result.
var ErrPageLimit = errors.New("explorer page limit reached")

// ActivityOptions parameterise the explorer activity client.
type ActivityOptions struct {
	UserOpsURL  string
	AccountsURL string
	PageSize    int
	MaxPages    int
	TopAccounts int
	Timeout     time.Duration
	UserAgent   string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Activity pages through the block explorer's account-abstraction proxy and
// aggregates user operations and accounts into the configured stats.
type Activity struct {
	opts   ActivityOptions
	schema *keys.Schema
	client *http.Client
	logger zerolog.Logger
}

// NewActivity constructs an activity client bound to a key schema.
func NewActivity(opts ActivityOptions, schema *keys.Schema, logger zerolog.Logger) *Activity {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 200
	}
	if opts.TopAccounts <= 0 {
		opts.TopAccounts = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Activity{
		opts:   opts,
		schema: schema,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "activity_fetcher").Logger(),
	}
}

type addressRef struct {
	Hash string `json:"hash"`
}

type userOp struct {
	Address   *addressRef `json:"address"`
	Fee       string      `json:"fee"`
	Timestamp string      `json:"timestamp"`
}

type explorerAccount struct {
	Address           *addressRef `json:"address"`
	CreationTimestamp *string     `json:"creation_timestamp"`
}

type explorerPage struct {
	Items          json.RawMessage `json:"items"`
	NextPageParams *struct {
		PageToken json.RawMessage `json:"page_token"`
	} `json:"next_page_params"`
}

type window struct {
	name  string
	since time.Time
}

// Fetch computes stats for every configured stat and window.
func (a *Activity) Fetch(ctx context.Context) (model.ActivityStats, error) {
	now := a.opts.Now().UTC()
	start := queryStart(now)

	windows := make([]window, 0, len(a.schema.Windows()))
	for _, w := range a.schema.Windows() {
		windows = append(windows, window{name: w.Name, since: w.Key.Since(now)})
	}

	out := a.schema.EmptyStats()
	unique := make(map[string]map[string]struct{}, len(windows))
	for _, w := range windows {
		unique[w.name] = make(map[string]struct{})
	}
	gas24h := make(map[string]uint64)
	dayAgo := now.Add(-24 * time.Hour)

	// Fee sums pin at MaxUint64 instead of wrapping.
	saturated := false
	addFee := func(sum, fee uint64) uint64 {
		total, ok := addSaturating(sum, fee)
		if !ok {
			saturated = true
		}
		return total
	}

	userOpsName, countOps := a.schema.StatName(keys.StatUserOps)
	gasName, countGas := a.schema.StatName(keys.StatGasUsed)

	err := a.paginate(ctx, a.opts.UserOpsURL, start, now, func(items json.RawMessage) error {
		var ops []userOp
		if err := json.Unmarshal(items, &ops); err != nil {
			return err
		}
		for _, op := range ops {
			if op.Address == nil || op.Address.Hash == "" {
				return errors.New("user op without address.hash")
			}
			fee, err := strconv.ParseUint(op.Fee, 10, 64)
			if err != nil {
				return fmt.Errorf("user op fee %q: %w", op.Fee, err)
			}
			ts, err := time.Parse(time.RFC3339, op.Timestamp)
			if err != nil {
				a.logger.Debug().Str("timestamp", op.Timestamp).Msg("skipping user op with invalid timestamp")
				continue
			}

			sender := op.Address.Hash
			for _, w := range windows {
				if ts.Before(w.since) {
					continue
				}
				if countOps {
					out.Stats[userOpsName][w.name]++
				}
				if countGas {
					out.Stats[gasName][w.name] = addFee(out.Stats[gasName][w.name], fee)
				}
				unique[w.name][sender] = struct{}{}
			}
			if !ts.Before(dayAgo) {
				gas24h[sender] = addFee(gas24h[sender], fee)
			}
		}
		return nil
	})
	if err != nil {
		return model.ActivityStats{}, err
	}
	if saturated {
		a.logger.Warn().Uint64("max", math.MaxUint64).Msg("gas used sum saturated")
	}

	if name, ok := a.schema.StatName(keys.StatUniqueActiveAccounts); ok {
		for _, w := range windows {
			out.Stats[name][w.name] = uint64(len(unique[w.name]))
		}
	}

	created := make(map[string]string)
	if name, ok := a.schema.SelectionName(keys.SelectRecent); ok {
		recent, err := a.recentAccounts(ctx, start, now, gas24h, created)
		if err != nil {
			return model.ActivityStats{}, err
		}
		out.SelectedAccounts[name] = recent
	}
	if name, ok := a.schema.SelectionName(keys.SelectTopGasConsumers24h); ok {
		out.SelectedAccounts[name] = topGasConsumers(gas24h, created, a.opts.TopAccounts)
	}

	return out, nil
}

type datedAccount struct {
	account model.Account
	created time.Time
}

func (a *Activity) recentAccounts(ctx context.Context, start, now time.Time, gas24h map[string]uint64, created map[string]string) ([]model.Account, error) {
	var dated []datedAccount

	err := a.paginate(ctx, a.opts.AccountsURL, start, now, func(items json.RawMessage) error {
		var accounts []explorerAccount
		if err := json.Unmarshal(items, &accounts); err != nil {
			return err
		}
		for _, acc := range accounts {
			if acc.Address == nil || acc.Address.Hash == "" {
				return errors.New("account without address.hash")
			}
			if acc.CreationTimestamp == nil || *acc.CreationTimestamp == "" {
				continue
			}
			ts, err := time.Parse(time.RFC3339, *acc.CreationTimestamp)
			if err != nil {
				continue
			}
			created[acc.Address.Hash] = *acc.CreationTimestamp
			dated = append(dated, datedAccount{
				account: model.Account{
					Address:           acc.Address.Hash,
					CreationTimestamp: *acc.CreationTimestamp,
					GasUsed:           gas24h[acc.Address.Hash],
				},
				created: ts,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(dated, func(i, j int) bool {
		if !dated[i].created.Equal(dated[j].created) {
			return dated[i].created.After(dated[j].created)
		}
		return dated[i].account.Address < dated[j].account.Address
	})

	out := make([]model.Account, 0, a.opts.TopAccounts)
	for _, d := range dated {
		if len(out) == a.opts.TopAccounts {
			break
		}
		out = append(out, d.account)
	}
	return out, nil
}

func topGasConsumers(gas map[string]uint64, created map[string]string, limit int) []model.Account {
	out := make([]model.Account, 0, len(gas))
	for addr, used := range gas {
		out = append(out, model.Account{Address: addr, CreationTimestamp: created[addr], GasUsed: used})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GasUsed != out[j].GasUsed {
			return out[i].GasUsed > out[j].GasUsed
		}
		return out[i].Address < out[j].Address
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// paginate follows next_page_params.page_token until exhausted. Running out of
// MaxPages with a token still pending is an error.
func (a *Activity) paginate(ctx context.Context, endpoint string, start, end time.Time, visit func(items json.RawMessage) error) error {
	token := ""
	seen := make(map[string]bool)

	for page := 0; page < a.opts.MaxPages; page++ {
		result, err := a.fetchPage(ctx, endpoint, start, end, token)
		if err != nil {
			return err
		}
		if err := visit(result.Items); err != nil {
			return Malformed(endpoint, err)
		}

		next, err := pageToken(result)
		if err != nil {
			return Malformed(endpoint, err)
		}
		if next == "" {
			return nil
		}
		if seen[next] {
			return Malformed(endpoint, fmt.Errorf("page token %q repeated", next))
		}
		seen[next] = true
		token = next
	}

	a.logger.Warn().Str("endpoint", endpoint).Int("max_pages", a.opts.MaxPages).Msg("page limit reached")
	return Upstream(endpoint, 0, fmt.Errorf("%w (%d pages)", ErrPageLimit, a.opts.MaxPages))
}

func (a *Activity) fetchPage(ctx context.Context, endpoint string, start, end time.Time, token string) (*explorerPage, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, Classify(endpoint, err)
	}
	q := u.Query()
	q.Set("start_time", start.UTC().Format(explorerTimeLayout))
	q.Set("end_time", end.UTC().Format(explorerTimeLayout))
	q.Set("page_size", strconv.Itoa(a.opts.PageSize))
	if token != "" {
		q.Set("page_token", token)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, Classify(endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, Classify(endpoint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(endpoint, resp.StatusCode, payload)
	}

	var page explorerPage
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, Malformed(endpoint, err)
	}
	if len(page.Items) == 0 || bytes.Equal(bytes.TrimSpace(page.Items), []byte("null")) {
		return nil, Malformed(endpoint, errors.New("missing items"))
	}
	return &page, nil
}

// pageToken accepts string or numeric tokens.
func pageToken(page *explorerPage) (string, error) {
	if page.NextPageParams == nil {
		return "", nil
	}
	raw := bytes.TrimSpace(page.NextPageParams.PageToken)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.Trim(s, `"`), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("unsupported page token %s", raw)
}

type explorerError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func parseHTTPError(op string, status int, payload []byte) error {
	var apiErr explorerError
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return Upstream(op, status, errors.New(apiErr.Message))
		}
		if apiErr.Error != "" {
			return Upstream(op, status, errors.New(apiErr.Error))
		}
	}
	return Upstream(op, status, fmt.Errorf("http status %d", status))
}

// queryStart is the earlier of Jan 1 this year and 30 days ago, so every window is covered.
func queryStart(now time.Time) time.Time {
	ytd := keys.WindowYearToDate.Since(now)
	month := keys.WindowLast30Days.Since(now)
	if month.Before(ytd) {
		return month
	}
	return ytd
}

// addSaturating adds b to a, reporting false when the sum was clamped to MaxUint64.
func addSaturating(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return math.MaxUint64, false
	}
	return a + b, true
}

var _ ActivityFetcher = (*Activity)(nil)
