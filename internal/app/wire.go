package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbscanner/internal/broker"
	"github.com/alanyoungcy/arbscanner/internal/cache/redis"
	"github.com/alanyoungcy/arbscanner/internal/config"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/notify"
	"github.com/alanyoungcy/arbscanner/internal/store/postgres"
)

// Dependencies bundles everything the operating modes share. It is
// constructed by Wire and torn down by the returned cleanup function.
// Redis-backed fields are nil when no Redis address is configured, and
// PreferencesStore is nil when Postgres is not configured.
type Dependencies struct {
	// Caches
	SignalBus    domain.SignalBus
	PayloadCache domain.PayloadCache
	LockManager  domain.LockManager
	RateLimiter  domain.RateLimiter

	// Stores
	PreferencesStore domain.PreferencesStore

	// Broker is not started by Wire.
	Broker     domain.OpportunityBroker
	BrokerMode string

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis ---
	if cfg.Redis.Address() != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.PayloadCache = redis.NewPayloadCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient, cfg.Redis.KeyPrefix)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Redis.KeyPrefix)
	}

	// --- PostgreSQL (preference persistence only) ---
	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.PreferencesStore = postgres.NewPreferencesStore(pgClient.Pool())
	}

	// --- Broker ---
	deps.BrokerMode = broker.ResolveMode(cfg.Broker.Mode, cfg.Redis.Address())
	b, err := broker.New(broker.Options{
		Mode:      deps.BrokerMode,
		Channel:   cfg.Broker.Channel,
		Bus:       deps.SignalBus,
		Cache:     deps.PayloadCache,
		LatestTTL: cfg.Broker.LatestTTL.Duration,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Broker = b

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && len(cfg.Notify.TelegramChatIDs) > 0 {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken, cfg.Notify.TelegramChatIDs, cfg.Notify.MinInterval.Duration,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, logger)

	return deps, cleanup, nil
}
