// Package api exposes the query layer over a read-only JSON REST surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"strata-netmon/internal/metrics"
	"strata-netmon/internal/model"
	"strata-netmon/internal/service"
)

// Query is the read side the handlers depend on.
type Query interface {
	GetNetworkStatus() model.NetworkStatus
	GetBalances() service.BalancesView
	GetBridgeStatus() model.BridgeStatus
	GetActivityStats(q service.ActivityQuery) model.ActivityStats
	GetKeySchema() service.KeySchema
	KeyDocument() []byte
	GetHealth() service.HealthReport
}

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// NewRouter builds the chi router with its middleware chain.
func NewRouter(q Query, cfg RouterConfig) http.Handler {
	logger := cfg.Logger.With().Str("component", "api").Logger()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestID(logger))
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors(cfg.AllowedOrigins))
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).middleware)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := &handlers{query: q}

	r.Get("/healthz", h.liveness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/usage_keys.json", h.keyDocument)
	r.Get("/activity_keys.json", h.keyDocument)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Get("/status", h.status)
		r.Get("/balances", h.balances)
		r.Get("/bridge_status", h.bridgeStatus)
		r.Get("/activity_stats", h.activityStats)
		r.Get("/usage_stats", h.activityStats)
		r.Get("/activity_keys", h.keySchema)
		r.Get("/health", h.health)
	})

	return r
}
