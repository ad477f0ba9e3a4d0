package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscanner/internal/broker"
	"github.com/alanyoungcy/arbscanner/internal/connector"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/notify"
	"github.com/alanyoungcy/arbscanner/internal/scanner"
	"github.com/alanyoungcy/arbscanner/internal/server"
	"github.com/alanyoungcy/arbscanner/internal/server/handler"
	"github.com/alanyoungcy/arbscanner/internal/server/ws"
	"github.com/alanyoungcy/arbscanner/internal/venue"
)

const shutdownTimeout = 5 * time.Second

// FullMode runs the scanner, the HTTP API with its WebSocket feed and the
// digest notifier in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode", slog.String("broker_mode", deps.BrokerMode))

	g, ctx := errgroup.WithContext(ctx)

	rt, err := a.newScanner(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.runScanner(ctx, g, rt)
	a.startDigest(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, rt, rt, true)

	return g.Wait()
}

// WorkerMode runs the scanner and the digest notifier without an HTTP
// surface. Opportunities reach API processes through the Redis broker.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode", slog.String("broker_mode", deps.BrokerMode))
	if deps.BrokerMode == broker.ModeMemory {
		a.logger.WarnContext(ctx, "worker mode with the in-memory broker publishes to no other process")
	}

	g, ctx := errgroup.WithContext(ctx)

	rt, err := a.newScanner(ctx, deps)
	if err != nil {
		return fmt.Errorf("worker mode: %w", err)
	}
	a.runScanner(ctx, g, rt)
	a.startDigest(ctx, g, deps)

	return g.Wait()
}

// APIMode serves the HTTP API. A scanner is embedded when configured or when
// the in-memory broker leaves no other source of opportunities; otherwise the
// API relays what a worker publishes through Redis.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	embedded := a.cfg.Scanner.RunInAPI || deps.BrokerMode == broker.ModeMemory
	a.logger.InfoContext(ctx, "starting api mode",
		slog.String("broker_mode", deps.BrokerMode),
		slog.Bool("embedded_scanner", embedded),
	)

	g, ctx := errgroup.WithContext(ctx)

	if embedded {
		rt, err := a.newScanner(ctx, deps)
		if err != nil {
			return fmt.Errorf("api mode: %w", err)
		}
		a.runScanner(ctx, g, rt)
		a.startHTTPServer(ctx, g, deps, rt, rt, true)
		return g.Wait()
	}

	prefs := a.newPreferences()
	a.restorePreferences(ctx, prefs, deps.PreferencesStore)

	if err := deps.Broker.Start(ctx); err != nil {
		return fmt.Errorf("api mode: start broker: %w", err)
	}
	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return deps.Broker.Stop(stopCtx)
	})
	a.startHTTPServer(ctx, g, deps, prefs, nil, false)

	return g.Wait()
}

// newPreferences builds runtime preferences from the scanner configuration.
func (a *App) newPreferences() *scanner.Preferences {
	sc := a.cfg.Scanner
	return scanner.NewPreferences(
		scanner.Universe{Exchanges: sc.Exchanges, Symbols: sc.SymbolUniverse},
		domain.RuntimePreferences{
			ActiveExchanges:   sc.Exchanges,
			ActiveSymbols:     sc.Symbols,
			ScanIntervalSec:   sc.ScanIntervalSec,
			TradeNotionalUSDT: sc.TradeNotionalUSDT,
			MinSpreadDiffPct:  sc.MinSpreadDiffPct,
		},
	)
}

// restorePreferences overlays saved preferences when a store is wired.
func (a *App) restorePreferences(ctx context.Context, prefs *scanner.Preferences, store domain.PreferencesStore) {
	if store == nil {
		return
	}
	saved, err := store.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		a.logger.WarnContext(ctx, "failed to load saved preferences", slog.String("error", err.Error()))
	default:
		prefs.Restore(saved)
	}
}

// newScanner builds one connector per configured exchange and the scanner
// runtime over them.
func (a *App) newScanner(ctx context.Context, deps *Dependencies) (*scanner.Runtime, error) {
	cc := a.cfg.Connectors
	connectors, err := connector.Build(connector.Config{
		Mode:         cc.Mode,
		Exchanges:    a.cfg.Scanner.Exchanges,
		Symbols:      a.cfg.Scanner.Symbols,
		PollInterval: cc.PollInterval.Duration,
		Depth:        cc.Depth,
		Timeout:      cc.Timeout.Duration,
		BiasStep:     cc.BiasStep,
		Venue: venue.Options{
			Timeout: cc.Timeout.Duration,
			RPS:     cc.RPS,
			Burst:   cc.Burst,
		},
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build connectors: %w", err)
	}
	connectorMode, _ := connector.ResolveMode(cc.Mode)

	opts := scanner.Options{
		ConnectorMode: connectorMode,
		StaleAfter:    a.cfg.Scanner.StaleAfter.Duration,
		Costs: scanner.Costs{
			MinNetEdgePct:    a.cfg.Fees.MinNetEdgePct,
			TakerFeeBps:      a.cfg.Fees.TakerFeeBps,
			SlippageBps:      a.cfg.Fees.SlippageBps,
			WithdrawCostUSDT: a.cfg.Fees.WithdrawCostUSDT,
		},
		MaxOpportunities: a.cfg.Scanner.MaxOpportunities,
		PreferencesStore: deps.PreferencesStore,
	}
	if a.cfg.Scanner.CycleLock && deps.LockManager != nil {
		opts.CycleLock = deps.LockManager
	}

	return scanner.New(ctx, a.newPreferences(), connectors, deps.Broker, opts, a.logger), nil
}

// runScanner starts rt and stops it once ctx is cancelled.
func (a *App) runScanner(ctx context.Context, g *errgroup.Group, rt *scanner.Runtime) {
	g.Go(func() error {
		if err := rt.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return rt.Stop(stopCtx)
	})
}

// startDigest adds the digest notifier when notifications are enabled.
func (a *App) startDigest(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Notify.Enabled {
		return
	}
	if !deps.Notifier.Enabled() {
		a.logger.InfoContext(ctx, "notify: no channels configured, digests are logged only")
	}
	digest := notify.NewDigest(deps.Broker, deps.Notifier, notify.DigestOptions{
		MaxRows:  a.cfg.Notify.MaxRows,
		Debounce: a.cfg.Notify.Debounce.Duration,
	}, a.logger)
	g.Go(func() error {
		return digest.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server and its WebSocket hub to the given
// errgroup. The server is shut down gracefully when the context is cancelled.
// status is nil when no scanner runs in this process.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	settings handler.SettingsService,
	status handler.StatusProvider,
	embedded bool,
) {
	hub := ws.NewHub(deps.Broker, settings, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(settings, deps.BrokerMode, embedded),
		Settings:      handler.NewSettingsHandler(settings, a.logger),
		Status:        handler.NewStatusHandler(status),
		Opportunities: handler.NewOpportunityHandler(deps.Broker, settings),
	}
	srv := server.NewServer(server.Config{
		Host:               a.cfg.Server.Host,
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimiter:        deps.RateLimiter,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening", slog.String("addr", srv.Addr()))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
