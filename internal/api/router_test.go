package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata-netmon/internal/keys"
	"strata-netmon/internal/model"
	"strata-netmon/internal/service"
	"strata-netmon/internal/snapshot"
)

func newTestRouter(t *testing.T, cfg RouterConfig) (http.Handler, *snapshot.Store) {
	t.Helper()
	store := snapshot.NewStore()
	q := service.NewQueryService(store, keys.Default(), nil, service.QueryOptions{
		DepositWallet:    "0xCAFE",
		ValidatingWallet: "0xC0FFEE",
	})
	cfg.Logger = zerolog.Nop()
	return NewRouter(q, cfg), store
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestStatusBeforeFirstPoll(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{})

	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.JSONEq(t, `{"batch_producer":"unknown","rpc_endpoint":"unknown","bundler_endpoint":"unknown"}`, rec.Body.String())
}

func TestStaleSnapshotStillServed(t *testing.T) {
	h, store := newTestRouter(t, RouterConfig{})
	store.Status.Write(model.NetworkStatus{BatchProducer: model.Online, RPCEndpoint: model.Online, BundlerEndpoint: model.Offline}, time.Now())
	store.Status.RecordError(snapshot.ErrorInfo{Kind: "transport", Message: "connection refused", At: time.Now()})

	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"batch_producer":"online","rpc_endpoint":"online","bundler_endpoint":"offline"}`, rec.Body.String())
}

func TestBalances(t *testing.T) {
	h, store := newTestRouter(t, RouterConfig{})

	rec := get(t, h, "/api/balances")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"wallets":{"deposit":{"address":"0xCAFE","balance":null},"validating":{"address":"0xC0FFEE","balance":null}}}`, rec.Body.String())

	wei, _ := new(big.Int).SetString("1500000000000000", 10)
	store.Balances.Write(model.PaymasterWallets{
		Deposit:    model.Wallet{Address: "0xCAFE", Balance: wei},
		Validating: model.Wallet{Address: "0xC0FFEE", Balance: big.NewInt(0)},
	}, time.Now())

	rec = get(t, h, "/api/balances")
	assert.JSONEq(t, `{"wallets":{"deposit":{"address":"0xCAFE","balance":"0.00150000"},"validating":{"address":"0xC0FFEE","balance":"0.00000000"}}}`, rec.Body.String())
}

func TestBridgeStatusListsAreArrays(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{})

	rec := get(t, h, "/api/bridge_status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"operators":[],"deposits":[],"withdrawals":[],"reimbursements":[]}`, rec.Body.String())
}

func TestActivityStatsAndAlias(t *testing.T) {
	h, store := newTestRouter(t, RouterConfig{})
	stats := keys.Default().EmptyStats()
	stats.Stats["User ops"]["24h"] = 12
	store.Activity.Write(stats, time.Now())

	for _, path := range []string{"/api/activity_stats", "/api/usage_stats"} {
		rec := get(t, h, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var got model.ActivityStats
		decode(t, rec, &got)
		assert.Equal(t, uint64(12), got.Stats["User ops"]["24h"])
		assert.Contains(t, got.SelectedAccounts, "Recent")
	}

	rec := get(t, h, "/api/activity_stats?window=24h&stat=User+ops")
	var got model.ActivityStats
	decode(t, rec, &got)
	assert.Equal(t, map[string]map[string]uint64{"User ops": {"24h": 12}}, got.Stats)

	rec = get(t, h, "/api/activity_stats?stat=Nope")
	require.Equal(t, http.StatusOK, rec.Code)
	var unknown model.ActivityStats
	decode(t, rec, &unknown)
	assert.Empty(t, unknown.Stats)
	assert.Contains(t, unknown.SelectedAccounts, "Recent")
}

func TestActivityStatsRejectsBadParams(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{})

	cases := []string{
		"/api/activity_stats?window=24h&window=30d",
		"/api/activity_stats?stat=",
		"/api/activity_stats?selection=" + strings.Repeat("a", 65),
		"/api/activity_stats?stat=%3Cscript%3E",
	}
	for _, target := range cases {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		var body map[string]string
		decode(t, rec, &body)
		assert.NotEmpty(t, body["error"])
	}

	rec := get(t, h, "/api/activity_stats?unrelated=%3C%3E")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestKeyEndpoints(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{})

	for _, path := range []string{"/usage_keys.json", "/activity_keys.json"} {
		rec := get(t, h, path)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, string(keys.Default().Raw()), rec.Body.String())
	}

	rec := get(t, h, "/api/activity_keys")
	var schema service.KeySchema
	decode(t, rec, &schema)
	assert.Equal(t, []string{"24h", "30d", "YTD"}, schema.TimeWindows)
	assert.Equal(t, keys.CurrentVersion, schema.Version)
}

func TestHealthEndpoints(t *testing.T) {
	h, store := newTestRouter(t, RouterConfig{})
	store.Bridge.RecordError(snapshot.ErrorInfo{Kind: "timeout", Message: "deadline exceeded", At: time.Now()})

	rec := get(t, h, "/healthz")
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, h, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var report service.HealthReport
	decode(t, rec, &report)
	require.Len(t, report.Domains, 4)
	assert.Equal(t, model.DomainBridge, report.Domains[2].Domain)
	require.NotNil(t, report.Domains[2].LastError)
	assert.Equal(t, "timeout", report.Domains[2].LastError.Kind)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{})
	get(t, h, "/api/status")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `netmon_http_requests_total{route="/api/status",status="200"}`)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{})

	rec := get(t, h, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{AllowedOrigins: []string{"https://dash.example"}})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://dash.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h, _ := newTestRouter(t, RouterConfig{RateLimitRPS: 0.001, RateLimitBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, get(t, h, "/api/status").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiterPrunesIdleClients(t *testing.T) {
	rl := newRateLimiter(1, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))

	now = now.Add(10 * time.Minute)
	assert.True(t, rl.allow("b"))
	assert.NotContains(t, rl.clients, "a")
}

func TestRecovererReturnsJSON(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
