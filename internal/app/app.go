package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"strata-netmon/internal/alerting"
	"strata-netmon/internal/api"
	"strata-netmon/internal/config"
	"strata-netmon/internal/fetcher"
	"strata-netmon/internal/keys"
	"strata-netmon/internal/model"
	"strata-netmon/internal/poller"
	"strata-netmon/internal/service"
	"strata-netmon/internal/snapshot"
	"strata-netmon/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// runtime is everything the serve command starts, wired but not yet running.
type runtime struct {
	store   *snapshot.Store
	monitor *service.Monitor
	query   *service.QueryService
	router  http.Handler
	closers []func()
}

func (rt *runtime) close() {
	for _, c := range rt.closers {
		c()
	}
}

func (a *App) loadSchema() (*keys.Schema, error) {
	if a.Config.Activity.KeysPath == "" {
		return keys.Default(), nil
	}
	return keys.Load(a.Config.Activity.KeysPath)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) build() (*runtime, error) {
	cfg := a.Config
	schema, err := a.loadSchema()
	if err != nil {
		return nil, err
	}

	rt := &runtime{store: snapshot.NewStore()}

	status := fetcher.NewStatus(fetcher.StatusOptions{
		NodeURL:    cfg.Status.UpstreamURL,
		RPCURL:     cfg.Status.RPCURL,
		BundlerURL: cfg.Status.BundlerURL,
		Timeout:    cfg.Status.Timeout,
	}, a.Logger)
	rt.closers = append(rt.closers, status.Close)

	balances, err := fetcher.NewBalances(fetcher.BalanceOptions{
		RPCURL:           cfg.Balances.UpstreamURL,
		DepositWallet:    cfg.Balances.DepositWallet,
		ValidatingWallet: cfg.Balances.ValidatingWallet,
	}, a.Logger)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.closers = append(rt.closers, balances.Close)

	bridge := fetcher.NewBridge(fetcher.BridgeOptions{
		StrataRPCURL:        cfg.Bridge.UpstreamURL,
		BridgeRPCURL:        cfg.Bridge.BridgeRPCURL,
		OperatorPingTimeout: cfg.Bridge.OperatorPingTimeout,
		OperatorLabel:       cfg.Bridge.OperatorLabel,
	}, a.Logger)
	rt.closers = append(rt.closers, bridge.Close)

	activity := fetcher.NewActivity(fetcher.ActivityOptions{
		UserOpsURL:  cfg.Activity.UpstreamURL,
		AccountsURL: cfg.Activity.AccountsURL,
		PageSize:    cfg.Activity.PageSize,
		MaxPages:    cfg.Activity.MaxPages,
		TopAccounts: cfg.Activity.TopAccounts,
		Timeout:     cfg.Activity.Timeout,
		UserAgent:   cfg.Activity.UserAgent,
	}, schema, a.Logger)

	notifier := a.newNotifier()
	plans := make(map[model.Domain]config.DomainConfig)
	for _, d := range cfg.Domains() {
		plans[d.Domain] = d
	}
	opts := func(d model.Domain) poller.Options {
		return poller.Options{
			Interval:         plans[d].Interval,
			Timeout:          plans[d].Timeout,
			FailureThreshold: cfg.Alerting.FailureThreshold,
			Cooldown:         cfg.Alerting.Cooldown,
			Notifier:         notifier,
		}
	}

	builders := []func() (service.Runner, error){
		func() (service.Runner, error) {
			return poller.New[model.NetworkStatus](rt.store.Status, status, opts(model.DomainStatus), a.Logger)
		},
		func() (service.Runner, error) {
			return poller.New[model.PaymasterWallets](rt.store.Balances, balances, opts(model.DomainBalances), a.Logger)
		},
		func() (service.Runner, error) {
			return poller.New[model.BridgeStatus](rt.store.Bridge, bridge, opts(model.DomainBridge), a.Logger)
		},
		func() (service.Runner, error) {
			return poller.New[model.ActivityStats](rt.store.Activity, activity, opts(model.DomainActivity), a.Logger)
		},
	}
	runners := make([]service.Runner, 0, len(builders))
	for _, build := range builders {
		r, err := build()
		if err != nil {
			rt.close()
			return nil, err
		}
		runners = append(runners, r)
	}

	monitor, err := service.NewMonitor(runners, a.Logger)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.monitor = monitor

	rt.query = service.NewQueryService(rt.store, schema, monitor, service.QueryOptions{
		DepositWallet:    cfg.Balances.DepositWallet,
		ValidatingWallet: cfg.Balances.ValidatingWallet,
	})
	rt.router = api.NewRouter(rt.query, api.RouterConfig{
		Logger:         a.Logger,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		RequestTimeout: cfg.Server.WriteTimeout,
	})
	return rt, nil
}

// Run executes the long-running aggregation service: one poller per domain and the
// REST listener, until SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.build()
	if err != nil {
		return err
	}
	defer rt.close()

	srv := api.NewServer(a.Config.Server, rt.router, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.monitor.Run(gctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	a.Logger.Info().
		Str("addr", srv.Addr()).
		Str("version", version.String()).
		Msg("starting aggregation service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("aggregation service stopped")
	return nil
}
