package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata-netmon/internal/config"
	"strata-netmon/internal/mockrpc"
	"strata-netmon/internal/model"
	"strata-netmon/internal/service"
)

func newUpstream(t *testing.T) (string, *mockrpc.Fixtures) {
	t.Helper()
	fx, err := mockrpc.LoadFixtures("")
	require.NoError(t, err)
	h, err := mockrpc.NewHandler(fx, nil, zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return srv.URL, fx
}

func testConfig(upstream string) *config.Config {
	poll := func(url string) config.PollConfig {
		return config.PollConfig{Interval: time.Hour, Timeout: 10 * time.Second, UpstreamURL: url}
	}
	explorer := upstream + mockrpc.ExplorerPrefix
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            3000,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: time.Second,
		},
		Status: config.StatusConfig{
			PollConfig: poll(upstream),
			RPCURL:     upstream,
			BundlerURL: upstream + "/health",
		},
		Balances: config.BalancesConfig{
			PollConfig:       poll(upstream),
			DepositWallet:    "0xCAFE",
			ValidatingWallet: "0xC0FFEE",
		},
		Bridge: config.BridgeConfig{
			PollConfig:          poll(upstream),
			BridgeRPCURL:        upstream,
			OperatorPingTimeout: 2 * time.Second,
			OperatorLabel:       "Alpen Labs",
		},
		Activity: config.ActivityConfig{
			PollConfig:  poll(explorer + "/operations"),
			AccountsURL: explorer + "/accounts",
			PageSize:    2,
			MaxPages:    50,
			TopAccounts: 5,
			UserAgent:   "netmon-test",
		},
		Alerting: config.AlertingConfig{FailureThreshold: 3},
	}
}

func getJSON(t *testing.T, h http.Handler, path string, v any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code, path)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestServicePopulatesEveryDomainFromMock(t *testing.T) {
	upstream, fx := newUpstream(t)
	a := NewApp(testConfig(upstream), zerolog.Nop())
	rt, err := a.build()
	require.NoError(t, err)
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = rt.monitor.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.Eventually(t, func() bool {
		for _, r := range rt.store.Reports() {
			if !r.Populated {
				return false
			}
		}
		return true
	}, 10*time.Second, 20*time.Millisecond)

	var status model.NetworkStatus
	getJSON(t, rt.router, "/api/status", &status)
	assert.Equal(t, model.NetworkStatus{
		BatchProducer:   model.Online,
		RPCEndpoint:     model.Online,
		BundlerEndpoint: model.Online,
	}, status)

	var balances service.BalancesView
	getJSON(t, rt.router, "/api/balances", &balances)
	require.NotNil(t, balances.Wallets.Deposit.Balance)
	require.NotNil(t, balances.Wallets.Validating.Balance)
	assert.Equal(t, "1.50000000", *balances.Wallets.Deposit.Balance)
	assert.Equal(t, "0.12345678", *balances.Wallets.Validating.Balance)

	var bridge model.BridgeStatus
	getJSON(t, rt.router, "/api/bridge_status", &bridge)
	assert.Equal(t, []model.OperatorStatus{
		{OperatorID: "Alpen Labs #0", OperatorAddress: fx.Strata.Operators["0"], Status: "Online"},
		{OperatorID: "Alpen Labs #1", OperatorAddress: fx.Strata.Operators["1"], Status: "Online"},
		{OperatorID: "Alpen Labs #2", OperatorAddress: fx.Strata.Operators["2"], Status: "Syncing"},
	}, bridge.Operators)
	// Deposit 3 is unknown to the node and is skipped.
	assert.Equal(t, []model.DepositInfo{
		fx.Bridge.DepositInfos["d6dd614af760b274b814f0c715a2d58e3f218fc9930b3a6efc84d5b719a17ca6:0"],
		{DepositRequestTxid: "fe49515fb5f86a517f802d857449da519cc2082d5c2a7cc3d8912f7f667f434d", Status: "Dispatched"},
		{DepositRequestTxid: "7f58b1e104080353a9201df9705be5c2e126f5fbfb8ddac32a2c00156d126203", Status: "-"},
	}, bridge.Deposits)
	assert.Equal(t, []model.WithdrawalInfo{
		fx.Bridge.WithdrawalInfos["fe49515fb5f86a517f802d857449da519cc2082d5c2a7cc3d8912f7f667f434d:0"],
	}, bridge.Withdrawals)
	assert.Equal(t, []model.ReimbursementInfo{
		fx.Bridge.ClaimInfos[fx.Bridge.Claims[0]],
		fx.Bridge.ClaimInfos[fx.Bridge.Claims[1]],
	}, bridge.Reimbursements)

	var activity model.ActivityStats
	getJSON(t, rt.router, "/api/activity_stats?window=24h", &activity)
	assert.Equal(t, map[string]map[string]uint64{
		"User ops":               {"24h": 3},
		"Gas used":               {"24h": 295_000_000_000_000},
		"Unique active accounts": {"24h": 2},
	}, activity.Stats)
	top := activity.SelectedAccounts["Top gas consumers 24h"]
	require.Len(t, top, 2)
	assert.Equal(t, uint64(215_000_000_000_000), top[0].GasUsed)

	var health service.HealthReport
	getJSON(t, rt.router, "/api/health", &health)
	for _, d := range health.Domains {
		assert.Equal(t, "committed", d.PollerState, d.Domain)
		assert.Nil(t, d.LastError, d.Domain)
	}
}

func TestUnreachableUpstreamsServeDefaults(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()

	cfg := testConfig(url)
	cfg.Status.Timeout = 500 * time.Millisecond
	cfg.Balances.Timeout = 500 * time.Millisecond
	cfg.Bridge.Timeout = 500 * time.Millisecond
	cfg.Activity.Timeout = 500 * time.Millisecond

	a := NewApp(cfg, zerolog.Nop())
	rt, err := a.build()
	require.NoError(t, err)
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.monitor.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		for _, r := range rt.store.Reports() {
			if r.Domain != model.DomainStatus && r.LastError == nil {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	var balances service.BalancesView
	getJSON(t, rt.router, "/api/balances", &balances)
	assert.Equal(t, "0xCAFE", balances.Wallets.Deposit.Address)
	assert.Nil(t, balances.Wallets.Deposit.Balance)

	var bridge model.BridgeStatus
	getJSON(t, rt.router, "/api/bridge_status", &bridge)
	assert.NotNil(t, bridge.Operators)
	assert.Empty(t, bridge.Operators)
}

func TestBuildRejectsBadPollPlan(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Bridge.Timeout = cfg.Bridge.Interval

	_, err := NewApp(cfg, zerolog.Nop()).build()
	assert.Error(t, err)
}

func TestBuildRejectsBadWallet(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Balances.DepositWallet = "cafe"

	_, err := NewApp(cfg, zerolog.Nop()).build()
	assert.Error(t, err)
}

func TestShowPrintsHealth(t *testing.T) {
	a := NewApp(testConfig("http://127.0.0.1:1"), zerolog.Nop())
	rt, err := a.build()
	require.NoError(t, err)
	defer rt.close()

	srv := httptest.NewServer(rt.router)
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, a.Show(context.Background(), &out, ShowOptions{URL: srv.URL + "/"}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "Domain"))
	assert.True(t, strings.HasPrefix(lines[1], "status"))
	assert.Contains(t, lines[4], "activity")
	assert.Contains(t, lines[4], "idle")
}

func TestNotifyTest(t *testing.T) {
	var text string
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		text = body["text"]
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer tg.Close()

	cfg := testConfig("http://127.0.0.1:1")
	a := NewApp(cfg, zerolog.Nop())
	assert.Error(t, a.NotifyTest(context.Background(), model.DomainBridge))

	cfg.Alerting.Enabled = true
	cfg.Alerting.Telegram = config.TelegramConfig{
		Enabled:  true,
		BotToken: "token",
		ChatID:   "chat",
		APIBase:  tg.URL,
		Timeout:  time.Second,
	}
	assert.Error(t, a.NotifyTest(context.Background(), model.Domain("nope")))
	require.NoError(t, a.NotifyTest(context.Background(), model.DomainBridge))
	assert.Contains(t, text, "bridge failing")
	assert.Contains(t, text, "test notification")
}

func TestPrintKeys(t *testing.T) {
	a := NewApp(testConfig("http://127.0.0.1:1"), zerolog.Nop())

	var out bytes.Buffer
	require.NoError(t, a.PrintKeys(&out, false))
	assert.Contains(t, out.String(), "ACTIVITY_STATS__USER_OPS")
	assert.Contains(t, out.String(), "Top gas consumers 24h")

	out.Reset()
	require.NoError(t, a.PrintKeys(&out, true))
	assert.True(t, json.Valid(out.Bytes()))
}
