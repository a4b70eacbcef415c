package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"strata-netmon/internal/fetcher"
	"strata-netmon/internal/logging"
	"strata-netmon/internal/model"
	"strata-netmon/internal/version"
)

const envPrefix = "NETMON"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Status   StatusConfig   `mapstructure:"status"`
	Balances BalancesConfig `mapstructure:"balances"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Activity ActivityConfig `mapstructure:"activity"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Mock     MockConfig     `mapstructure:"mock"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig governs the REST listener.
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PollConfig is the part every domain shares.
type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UpstreamURL string        `mapstructure:"upstream_url"`
}

// StatusConfig covers node, RPC and bundler health checks. UpstreamURL is the node RPC.
type StatusConfig struct {
	PollConfig `mapstructure:",squash"`
	RPCURL     string `mapstructure:"rpc_url"`
	BundlerURL string `mapstructure:"bundler_url"`
}

// BalancesConfig covers paymaster wallet balances. UpstreamURL is the execution RPC.
type BalancesConfig struct {
	PollConfig       `mapstructure:",squash"`
	DepositWallet    string `mapstructure:"deposit_wallet"`
	ValidatingWallet string `mapstructure:"validating_wallet"`
}

// BridgeConfig covers bridge status. UpstreamURL is the strata RPC.
type BridgeConfig struct {
	PollConfig          `mapstructure:",squash"`
	BridgeRPCURL        string        `mapstructure:"bridge_rpc_url"`
	OperatorPingTimeout time.Duration `mapstructure:"operator_ping_timeout"`
	OperatorLabel       string        `mapstructure:"operator_label"`
}

// ActivityConfig covers explorer activity stats. UpstreamURL is the user-ops endpoint.
type ActivityConfig struct {
	PollConfig  `mapstructure:",squash"`
	AccountsURL string `mapstructure:"accounts_url"`
	PageSize    int    `mapstructure:"page_size"`
	MaxPages    int    `mapstructure:"max_pages"`
	TopAccounts int    `mapstructure:"top_accounts"`
	UserAgent   string `mapstructure:"user_agent"`
	KeysPath    string `mapstructure:"keys_path"`
}

// AlertingConfig defines failure thresholds and routing.
type AlertingConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	FailureThreshold int            `mapstructure:"failure_threshold"`
	Cooldown         time.Duration  `mapstructure:"cooldown"`
	Telegram         TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram bot delivery settings.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MockConfig configures the mock upstream command.
type MockConfig struct {
	StrataAddr  string `mapstructure:"strata_addr"`
	BridgeAddr  string `mapstructure:"bridge_addr"`
	FixturesDir string `mapstructure:"fixtures_dir"`
}

// DomainConfig is the per-domain polling plan enumerated at startup.
type DomainConfig struct {
	Domain      model.Domain
	Interval    time.Duration
	Timeout     time.Duration
	UpstreamURL string
}

// legacyEnv maps config keys to the unprefixed variables older deployments set.
var legacyEnv = map[string][]string{
	"server.port":                  {"PORT"},
	"status.upstream_url":          {"STRATA_RPC_URL"},
	"status.rpc_url":               {"RPC_URL"},
	"status.bundler_url":           {"BUNDLER_URL"},
	"balances.upstream_url":        {"RETH_URL", "RPC_URL"},
	"balances.deposit_wallet":      {"DEPOSIT_PAYMASTER_WALLET"},
	"balances.validating_wallet":   {"VALIDATING_PAYMASTER_WALLET"},
	"bridge.upstream_url":          {"STRATA_RPC_URL"},
	"bridge.bridge_rpc_url":        {"STRATA_BRIDGE_RPC_URL"},
	"bridge.interval":              {"BRIDGE_STATUS_REFETCH_INTERVAL_S"},
	"bridge.operator_ping_timeout": {"BRIDGE_OPERATOR_PING_TIMEOUT_S"},
	"activity.upstream_url":        {"USER_OPS_QUERY_URL"},
	"activity.accounts_url":        {"ACCOUNTS_QUERY_URL"},
	"activity.interval":            {"ACTIVITY_STATS_REFETCH_INTERVAL_S"},
	"activity.page_size":           {"ACTIVITY_QUERY_PAGE_SIZE"},
	"alerting.telegram.bot_token":  {"TELEGRAM_BOT_TOKEN"},
	"alerting.telegram.chat_id":    {"TELEGRAM_CHAT_ID"},
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv binds the prefixed name first so it wins over legacy aliases.
func bindLegacyEnv(v *viper.Viper) error {
	for key, names := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, prefixed}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "netmon")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 0)
	v.SetDefault("server.rate_limit_burst", 20)

	v.SetDefault("status.interval", "10s")
	v.SetDefault("status.timeout", "8s")
	v.SetDefault("status.upstream_url", "http://localhost:8545")
	v.SetDefault("status.rpc_url", "http://localhost:8545")
	v.SetDefault("status.bundler_url", "http://localhost:3001/health")

	v.SetDefault("balances.interval", "10s")
	v.SetDefault("balances.timeout", "8s")
	v.SetDefault("balances.upstream_url", "http://localhost:8545")
	v.SetDefault("balances.deposit_wallet", "0xCAFE")
	v.SetDefault("balances.validating_wallet", "0xC0FFEE")

	v.SetDefault("bridge.interval", "120s")
	v.SetDefault("bridge.timeout", "60s")
	v.SetDefault("bridge.upstream_url", "http://localhost:8545")
	v.SetDefault("bridge.bridge_rpc_url", "http://localhost:8546")
	v.SetDefault("bridge.operator_ping_timeout", "5s")
	v.SetDefault("bridge.operator_label", "Alpen Labs")

	v.SetDefault("activity.interval", "120s")
	v.SetDefault("activity.timeout", "90s")
	v.SetDefault("activity.upstream_url", "http://localhost/api/v2/proxy/account-abstraction/operations")
	v.SetDefault("activity.accounts_url", "http://localhost/api/v2/proxy/account-abstraction/accounts")
	v.SetDefault("activity.page_size", 100)
	v.SetDefault("activity.max_pages", 200)
	v.SetDefault("activity.top_accounts", 5)
	v.SetDefault("activity.user_agent", version.UserAgent())
	v.SetDefault("activity.keys_path", "")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.failure_threshold", 3)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("mock.strata_addr", "127.0.0.1:8545")
	v.SetDefault("mock.bridge_addr", "127.0.0.1:8546")
	v.SetDefault("mock.fixtures_dir", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			secondsHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// secondsHookFunc lets durations be written as bare integer seconds, the unit the
// legacy *_INTERVAL_S variables use.
func secondsHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			s := strings.TrimSpace(data.(string))
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return time.Duration(n) * time.Second, nil
			}
			return s, nil
		case reflect.Int, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Float64:
			return time.Duration(data.(float64) * float64(time.Second)), nil
		}
		return data, nil
	}
}

// Domains enumerates the polling plan in reporting order.
func (c *Config) Domains() []DomainConfig {
	return []DomainConfig{
		domainConfig(model.DomainStatus, c.Status.PollConfig),
		domainConfig(model.DomainBalances, c.Balances.PollConfig),
		domainConfig(model.DomainBridge, c.Bridge.PollConfig),
		domainConfig(model.DomainActivity, c.Activity.PollConfig),
	}
}

func domainConfig(d model.Domain, p PollConfig) DomainConfig {
	return DomainConfig{Domain: d, Interval: p.Interval, Timeout: p.Timeout, UpstreamURL: p.UpstreamURL}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps cannot be negative")
	}

	for _, d := range c.Domains() {
		if d.Interval <= 0 {
			return fmt.Errorf("%s.interval must be greater than zero", d.Domain)
		}
		if d.Timeout <= 0 || d.Timeout >= d.Interval {
			return fmt.Errorf("%s.timeout %s must be greater than zero and shorter than interval %s", d.Domain, d.Timeout, d.Interval)
		}
		if err := validURL(string(d.Domain)+".upstream_url", d.UpstreamURL); err != nil {
			return err
		}
	}

	extra := []struct{ key, value string }{
		{"status.rpc_url", c.Status.RPCURL},
		{"status.bundler_url", c.Status.BundlerURL},
		{"bridge.bridge_rpc_url", c.Bridge.BridgeRPCURL},
		{"activity.accounts_url", c.Activity.AccountsURL},
	}
	for _, e := range extra {
		if err := validURL(e.key, e.value); err != nil {
			return err
		}
	}

	if _, err := fetcher.ParseWallet(c.Balances.DepositWallet); err != nil {
		return fmt.Errorf("balances.deposit_wallet: %w", err)
	}
	if _, err := fetcher.ParseWallet(c.Balances.ValidatingWallet); err != nil {
		return fmt.Errorf("balances.validating_wallet: %w", err)
	}

	if c.Bridge.OperatorPingTimeout <= 0 || c.Bridge.OperatorPingTimeout >= c.Bridge.Timeout {
		return fmt.Errorf("bridge.operator_ping_timeout must be greater than zero and shorter than bridge.timeout")
	}
	if c.Activity.PageSize <= 0 || c.Activity.MaxPages <= 0 || c.Activity.TopAccounts <= 0 {
		return fmt.Errorf("activity.page_size, max_pages and top_accounts must be greater than zero")
	}

	if c.Alerting.FailureThreshold <= 0 {
		return fmt.Errorf("alerting.failure_threshold must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

func validURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s must be set", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s %q is not an absolute URL", key, raw)
	}
	return nil
}
