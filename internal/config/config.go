// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCANNER_* environment variables.
type Config struct {
	Scanner    ScannerConfig    `toml:"scanner"`
	Fees       FeesConfig       `toml:"fees"`
	Connectors ConnectorsConfig `toml:"connectors"`
	Broker     BrokerConfig     `toml:"broker"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ScannerConfig holds the initial runtime preferences and the scan loop
// parameters.
type ScannerConfig struct {
	ScanIntervalSec   int      `toml:"scan_interval_sec"`
	StaleAfter        duration `toml:"stale_after"`
	TradeNotionalUSDT float64  `toml:"trade_notional_usdt"`
	MinSpreadDiffPct  float64  `toml:"min_spread_diff_pct"`
	// Exchanges and Symbols are the initially active sets.
	Exchanges []string `toml:"exchanges"`
	Symbols   []string `toml:"symbols"`
	// SymbolUniverse is everything an operator may activate at runtime.
	SymbolUniverse   []string `toml:"symbol_universe"`
	MaxOpportunities int      `toml:"max_opportunities"`
	// RunInAPI runs an embedded scanner in api mode.
	RunInAPI bool `toml:"run_in_api"`
	// CycleLock serializes scan cycles across processes through Redis.
	CycleLock bool `toml:"cycle_lock"`
}

// FeesConfig holds the fixed cost model applied to every opportunity.
type FeesConfig struct {
	MinNetEdgePct    float64 `toml:"min_net_edge_pct"`
	TakerFeeBps      float64 `toml:"taker_fee_bps"`
	SlippageBps      float64 `toml:"slippage_bps"`
	WithdrawCostUSDT float64 `toml:"withdraw_cost_usdt"`
}

// ConnectorsConfig selects synthetic or live connectors.
type ConnectorsConfig struct {
	Mode         string   `toml:"mode"`
	PollInterval duration `toml:"poll_interval"`
	Depth        int      `toml:"depth"`
	Timeout      duration `toml:"timeout"`
	BiasStep     float64  `toml:"bias_step"`
	// RPS and Burst pace REST calls per venue. RPS <= 0 disables pacing.
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

// BrokerConfig selects the opportunity broker backend.
type BrokerConfig struct {
	// Mode is auto, inmemory or redis. auto picks redis when an address is set.
	Mode      string   `toml:"mode"`
	Channel   string   `toml:"channel"`
	LatestTTL duration `toml:"latest_ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// Address returns the URL when set, else the host:port address.
func (r RedisConfig) Address() string {
	if strings.TrimSpace(r.URL) != "" {
		return strings.TrimSpace(r.URL)
	}
	return strings.TrimSpace(r.Addr)
}

// PostgresConfig holds connection parameters for preference persistence.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether preference persistence is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || strings.TrimSpace(p.Host) != ""
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "350ms", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required on every /api request.
	APIKey string `toml:"api_key"`
	// RateLimitPerMinute limits requests per client IP through Redis. Zero
	// disables limiting.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds the digest notifier parameters and channel credentials.
type NotifyConfig struct {
	Enabled           bool     `toml:"enabled"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatIDs   []string `toml:"telegram_chat_ids"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	MinInterval       duration `toml:"min_interval"`
	MaxRows           int      `toml:"max_rows"`
	Debounce          duration `toml:"debounce"`
}

// DefaultExchanges is the initial active exchange set.
var DefaultExchanges = []string{
	"binance", "coinbase", "kraken", "okx", "bybit", "kucoin", "gateio",
	"mexc", "bitget", "htx", "upbit", "bingx", "bitfinex", "xt",
}

// DefaultSymbols is the initial active symbol set.
var DefaultSymbols = []string{"BTC-USDT", "ETH-USDT", "SOL-USDT"}

// DefaultSymbolUniverse is the set of symbols an operator may activate.
var DefaultSymbolUniverse = []string{
	"BTC-USDT", "ETH-USDT", "SOL-USDT", "XRP-USDT", "DAI-USDT", "FDUSD-USDT",
	"PYUSD-USDT", "ARB-USDT", "OP-USDT", "MATIC-USDT", "POL-USDT", "ADA-USDT",
	"DOGE-USDT", "AVAX-USDT", "DOT-USDT", "LINK-USDT", "ATOM-USDT", "SUI-USDT",
	"SEI-USDT", "APT-USDT", "TON-USDT", "NEAR-USDT", "LTC-USDT", "BNB-USDT",
	"TRX-USDT", "TAO-USDT", "FET-USDT", "ASI-USDT", "RNDR-USDT", "RENDER-USDT",
	"HYPE-USDT", "ENA-USDT", "ONDO-USDT", "PEPE-USDT", "SHIB-USDT", "WIF-USDT",
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Scanner: ScannerConfig{
			ScanIntervalSec:   10,
			StaleAfter:        duration{30 * time.Second},
			TradeNotionalUSDT: 1000,
			MinSpreadDiffPct:  5.0,
			Exchanges:         slices.Clone(DefaultExchanges),
			Symbols:           slices.Clone(DefaultSymbols),
			SymbolUniverse:    slices.Clone(DefaultSymbolUniverse),
			MaxOpportunities:  150,
			RunInAPI:          true,
		},
		Fees: FeesConfig{
			MinNetEdgePct:    0.2,
			TakerFeeBps:      10,
			SlippageBps:      5,
			WithdrawCostUSDT: 2,
		},
		Connectors: ConnectorsConfig{
			Mode:         "live",
			PollInterval: duration{350 * time.Millisecond},
			Depth:        20,
			Timeout:      duration{10 * time.Second},
			BiasStep:     0.0045,
			RPS:          5,
			Burst:        5,
		},
		Broker: BrokerConfig{
			Mode:      "auto",
			Channel:   "opportunities_feed",
			LatestTTL: duration{10 * time.Minute},
		},
		Redis: RedisConfig{
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			KeyPrefix:  "arbscanner:",
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  0,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		Notify: NotifyConfig{
			Enabled:     true,
			MinInterval: duration{time.Second},
			MaxRows:     5,
			Debounce:    duration{15 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"worker": true,
	"api":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBrokerModes = map[string]bool{
	"auto":     true,
	"inmemory": true,
	"memory":   true,
	"redis":    true,
}

var validConnectorModes = map[string]bool{
	"live":      true,
	"real":      true,
	"synthetic": true,
	"mock":      true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, worker, api)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Scanner
	if c.Scanner.ScanIntervalSec <= 0 {
		errs = append(errs, "scanner: scan_interval_sec must be > 0")
	}
	if c.Scanner.StaleAfter.Duration <= 0 {
		errs = append(errs, "scanner: stale_after must be > 0")
	}
	if c.Scanner.TradeNotionalUSDT <= 0 {
		errs = append(errs, "scanner: trade_notional_usdt must be > 0")
	}
	if c.Scanner.MinSpreadDiffPct < 0 {
		errs = append(errs, "scanner: min_spread_diff_pct must be >= 0")
	}
	if len(c.Scanner.Exchanges) == 0 {
		errs = append(errs, "scanner: exchanges must not be empty")
	}
	if len(c.Scanner.Symbols) == 0 && len(c.Scanner.SymbolUniverse) == 0 {
		errs = append(errs, "scanner: symbols or symbol_universe must be set")
	}
	if c.Scanner.MaxOpportunities < 0 {
		errs = append(errs, "scanner: max_opportunities must be >= 0")
	}
	if c.Scanner.CycleLock && c.Redis.Address() == "" {
		errs = append(errs, "scanner: cycle_lock requires redis.url or redis.addr")
	}

	// Fees
	if c.Fees.TakerFeeBps < 0 || c.Fees.SlippageBps < 0 || c.Fees.WithdrawCostUSDT < 0 {
		errs = append(errs, "fees: taker_fee_bps, slippage_bps and withdraw_cost_usdt must be >= 0")
	}

	// Connectors
	if !validConnectorModes[strings.ToLower(c.Connectors.Mode)] {
		errs = append(errs, fmt.Sprintf("connectors: unknown mode %q (valid: live, synthetic)", c.Connectors.Mode))
	}
	if c.Connectors.PollInterval.Duration <= 0 {
		errs = append(errs, "connectors: poll_interval must be > 0")
	}
	if c.Connectors.Depth < 1 {
		errs = append(errs, "connectors: depth must be >= 1")
	}
	if c.Connectors.Timeout.Duration <= 0 {
		errs = append(errs, "connectors: timeout must be > 0")
	}

	// Broker
	brokerMode := strings.ToLower(c.Broker.Mode)
	if !validBrokerModes[brokerMode] {
		errs = append(errs, fmt.Sprintf("broker: unknown mode %q (valid: auto, inmemory, redis)", c.Broker.Mode))
	}
	if brokerMode == "redis" && c.Redis.Address() == "" {
		errs = append(errs, "broker: mode redis requires redis.url or redis.addr")
	}
	if strings.TrimSpace(c.Broker.Channel) == "" {
		errs = append(errs, "broker: channel must not be empty")
	}

	// Redis
	if c.Redis.Address() != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Server.RateLimitPerMinute > 0 && c.Redis.Address() == "" {
		errs = append(errs, "server: rate_limit_per_minute requires redis.url or redis.addr")
	}

	// Postgres
	if c.Postgres.Enabled() && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Server
	if strings.ToLower(c.Mode) != "worker" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify
	if c.Notify.MaxRows < 1 {
		errs = append(errs, "notify: max_rows must be >= 1")
	}
	if c.Notify.MinInterval.Duration < 0 || c.Notify.Debounce.Duration < 0 {
		errs = append(errs, "notify: min_interval and debounce must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
