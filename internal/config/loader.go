package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCANNER_* environment variable overrides, and
// returns the final Config. An empty path skips the file. A missing file is
// an error. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSCANNER_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Scanner ──
	setInt(&cfg.Scanner.ScanIntervalSec, "ARBSCANNER_SCAN_INTERVAL_SEC")
	setDuration(&cfg.Scanner.StaleAfter, "ARBSCANNER_STALE_AFTER")
	setFloat64(&cfg.Scanner.TradeNotionalUSDT, "ARBSCANNER_TRADE_NOTIONAL_USDT")
	setFloat64(&cfg.Scanner.MinSpreadDiffPct, "ARBSCANNER_MIN_SPREAD_DIFF_PCT")
	setStringSlice(&cfg.Scanner.Exchanges, "ARBSCANNER_EXCHANGES")
	setStringSlice(&cfg.Scanner.Symbols, "ARBSCANNER_SYMBOLS")
	setStringSlice(&cfg.Scanner.SymbolUniverse, "ARBSCANNER_SYMBOL_UNIVERSE")
	setInt(&cfg.Scanner.MaxOpportunities, "ARBSCANNER_MAX_OPPORTUNITIES")
	setBool(&cfg.Scanner.RunInAPI, "ARBSCANNER_RUN_SCANNER_IN_API")
	setBool(&cfg.Scanner.CycleLock, "ARBSCANNER_CYCLE_LOCK")

	// ── Fees ──
	setFloat64(&cfg.Fees.MinNetEdgePct, "ARBSCANNER_MIN_NET_EDGE_PCT")
	setFloat64(&cfg.Fees.TakerFeeBps, "ARBSCANNER_TAKER_FEE_BPS")
	setFloat64(&cfg.Fees.SlippageBps, "ARBSCANNER_SLIPPAGE_BPS")
	setFloat64(&cfg.Fees.WithdrawCostUSDT, "ARBSCANNER_WITHDRAW_COST_USDT")

	// ── Connectors ──
	setStr(&cfg.Connectors.Mode, "ARBSCANNER_CONNECTOR_MODE")
	setDuration(&cfg.Connectors.PollInterval, "ARBSCANNER_CONNECTOR_POLL_INTERVAL")
	setInt(&cfg.Connectors.Depth, "ARBSCANNER_CONNECTOR_DEPTH")
	setDuration(&cfg.Connectors.Timeout, "ARBSCANNER_CONNECTOR_TIMEOUT")
	setFloat64(&cfg.Connectors.BiasStep, "ARBSCANNER_CONNECTOR_BIAS_STEP")
	setFloat64(&cfg.Connectors.RPS, "ARBSCANNER_CONNECTOR_RPS")
	setInt(&cfg.Connectors.Burst, "ARBSCANNER_CONNECTOR_BURST")

	// ── Broker ──
	setStr(&cfg.Broker.Mode, "ARBSCANNER_BROKER_MODE")
	setStr(&cfg.Broker.Channel, "ARBSCANNER_BROKER_CHANNEL")
	setDuration(&cfg.Broker.LatestTTL, "ARBSCANNER_BROKER_LATEST_TTL")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "ARBSCANNER_REDIS_URL")
	setStr(&cfg.Redis.Addr, "ARBSCANNER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSCANNER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSCANNER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBSCANNER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBSCANNER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBSCANNER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "ARBSCANNER_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBSCANNER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBSCANNER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBSCANNER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBSCANNER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBSCANNER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBSCANNER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBSCANNER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBSCANNER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBSCANNER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBSCANNER_POSTGRES_RUN_MIGRATIONS")

	// ── Server ──
	setStr(&cfg.Server.Host, "ARBSCANNER_SERVER_HOST")
	setInt(&cfg.Server.Port, "ARBSCANNER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBSCANNER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBSCANNER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "ARBSCANNER_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setBool(&cfg.Notify.Enabled, "ARBSCANNER_NOTIFY_ENABLED")
	setStr(&cfg.Notify.TelegramToken, "ARBSCANNER_TELEGRAM_BOT_TOKEN")
	setStringSlice(&cfg.Notify.TelegramChatIDs, "ARBSCANNER_TELEGRAM_CHAT_IDS")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCANNER_DISCORD_WEBHOOK_URL")
	setDuration(&cfg.Notify.MinInterval, "ARBSCANNER_NOTIFY_MIN_INTERVAL")
	setInt(&cfg.Notify.MaxRows, "ARBSCANNER_NOTIFY_MAX_ROWS")
	setDuration(&cfg.Notify.Debounce, "ARBSCANNER_NOTIFY_DEBOUNCE")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBSCANNER_MODE")
	setStr(&cfg.LogLevel, "ARBSCANNER_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts Go duration strings or a bare number of seconds.
func setDuration(dst *duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		dst.Duration = d
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		dst.Duration = time.Duration(f * float64(time.Second))
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
