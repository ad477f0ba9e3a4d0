// Package scanner owns the market-data store, the connectors and the
// runtime preferences, and runs the periodic detect-and-publish scan loop.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/connector"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/marketdata"
	"github.com/alanyoungcy/arbscanner/internal/metrics"
)

const (
	// DefaultMaxOpportunities caps one published list.
	DefaultMaxOpportunities = 150
	minCycleSleep           = 50 * time.Millisecond
	defaultLockKey          = "scan-cycle"
	persistTimeout          = 5 * time.Second
)

// ErrCycleSkipped is returned by ScanOnce when another process holds the
// cycle lock.
var ErrCycleSkipped = errors.New("scan cycle skipped")

// State is the lifecycle state of a Runtime.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Costs are the fixed detection parameters that are not runtime-adjustable.
type Costs struct {
	MinNetEdgePct    float64
	TakerFeeBps      float64
	SlippageBps      float64
	WithdrawCostUSDT float64
}

// Options configures a Runtime.
type Options struct {
	ConnectorMode string
	StaleAfter    time.Duration
	Costs         Costs
	// MaxOpportunities defaults to DefaultMaxOpportunities.
	MaxOpportunities int
	// Registry defaults to arbitrage.DefaultRegistry().
	Registry *arbitrage.Registry
	// CycleLock, when set, serializes scan cycles across processes.
	CycleLock domain.LockManager
	LockKey   string
	// PreferencesStore, when set, restores preferences on construction and
	// saves them after every update.
	PreferencesStore domain.PreferencesStore
	Now              func() time.Time
}

// Runtime is the scanner: connectors feed the store, the scan loop detects
// and publishes through the broker.
type Runtime struct {
	id         string
	opts       Options
	logger     *slog.Logger
	store      *marketdata.Store
	connectors []connector.Connector
	prefs      *Preferences
	broker     domain.OpportunityBroker
	registry   *arbitrage.Registry

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	// done is closed once every task of the current run has returned.
	done chan struct{}

	statsMu      sync.Mutex
	lastCount    int
	iterations   int64
	skipped      int64
	lastElapsed  time.Duration
	lastFinished time.Time
}

// New builds a Runtime. When opts.PreferencesStore holds saved preferences
// they replace the initial ones.
func New(ctx context.Context, prefs *Preferences, connectors []connector.Connector, broker domain.OpportunityBroker, opts Options, logger *slog.Logger) *Runtime {
	if opts.MaxOpportunities <= 0 {
		opts.MaxOpportunities = DefaultMaxOpportunities
	}
	if opts.Registry == nil {
		opts.Registry = arbitrage.DefaultRegistry()
	}
	if opts.LockKey == "" {
		opts.LockKey = defaultLockKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	id := uuid.NewString()
	r := &Runtime{
		id:         id,
		opts:       opts,
		logger:     logger.With(slog.String("component", "scanner"), slog.String("instance", id)),
		store:      marketdata.NewStore(),
		connectors: connectors,
		prefs:      prefs,
		broker:     broker,
		registry:   opts.Registry,
		state:      StateStopped,
	}
	r.restorePreferences(ctx)
	return r
}

// ID returns the runtime instance id.
func (r *Runtime) ID() string { return r.id }

// Store returns the market-data store the connectors write into.
func (r *Runtime) Store() *marketdata.Store { return r.store }

// Preferences returns the runtime's preferences.
func (r *Runtime) Preferences() *Preferences { return r.prefs }

// State returns the lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start starts the broker, one task per connector and the scan loop. It is a
// no-op unless the runtime is stopped.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStopped {
		return nil
	}
	r.state = StateStarting

	if err := r.broker.Start(ctx); err != nil {
		r.state = StateStopped
		return fmt.Errorf("scanner: start broker: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)

	symbols := r.prefs.ActiveSymbols()
	for _, c := range r.connectors {
		c.SetSymbols(symbols)
		g.Go(func() error {
			if err := c.Run(gctx, r.store); err != nil {
				r.logger.Warn("connector exited with error",
					slog.String("exchange", c.Exchange()),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	g.Go(func() error {
		r.scanLoop(gctx)
		return nil
	})

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	r.cancel = cancel
	r.done = done
	r.state = StateRunning
	r.logger.InfoContext(ctx, "scanner started",
		slog.Int("connectors", len(r.connectors)),
		slog.String("connector_mode", r.opts.ConnectorMode),
	)
	return nil
}

// Stop cancels every task, waits for them and stops the broker. It is a
// no-op when the runtime is stopped. If ctx ends first the runtime stays
// stopping and a later Stop waits again.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.state == StateRunning:
		r.state = StateStopping
		r.cancel()
	case r.state != StateStopping || r.done == nil:
		r.mu.Unlock()
		return nil
	}
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("scanner tasks still running after stop deadline")
		return fmt.Errorf("scanner: wait for tasks: %w", ctx.Err())
	}

	r.mu.Lock()
	if r.done != done {
		// Another Stop finished this run.
		r.mu.Unlock()
		return nil
	}
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if err := r.broker.Stop(ctx); err != nil {
		r.logger.Warn("broker stop failed", slog.String("error", err.Error()))
	}

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()
	r.logger.Info("scanner stopped")
	return nil
}

// Settings returns the current settings view.
func (r *Runtime) Settings() Settings { return r.prefs.Settings() }

// Snapshot returns a copy of the current preferences.
func (r *Runtime) Snapshot() Snapshot { return r.prefs.Snapshot() }

// UpdateSettings merges u into the preferences, pushes a changed symbol set
// to every connector and persists the result when a store is configured.
func (r *Runtime) UpdateSettings(ctx context.Context, u SettingsUpdate) Settings {
	s, symbolsChanged := r.prefs.Update(u)
	if symbolsChanged {
		for _, c := range r.connectors {
			c.SetSymbols(s.ActiveSymbols)
		}
	}
	r.persistPreferences(ctx)
	return s
}

func (r *Runtime) scanLoop(ctx context.Context) {
	for {
		start := time.Now()
		if _, err := r.ScanOnce(ctx); err != nil && !errors.Is(err, ErrCycleSkipped) && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "scan cycle failed", slog.String("error", err.Error()))
		}
		elapsed := time.Since(start)

		wait := r.prefs.Snapshot().ScanInterval - elapsed
		if wait < minCycleSleep {
			wait = minCycleSleep
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// ScanOnce runs one detect-and-publish cycle and returns what it published.
func (r *Runtime) ScanOnce(ctx context.Context) ([]domain.Opportunity, error) {
	start := r.opts.Now()
	prefs := r.prefs.Snapshot()

	if r.opts.CycleLock != nil {
		ttl := prefs.ScanInterval
		if ttl < time.Second {
			ttl = time.Second
		}
		unlock, err := r.opts.CycleLock.Acquire(ctx, r.opts.LockKey, ttl)
		if err != nil {
			reason := "lock_error"
			if errors.Is(err, domain.ErrLockHeld) {
				reason = "lock_held"
			}
			metrics.ScanSkipped.WithLabelValues(reason).Inc()
			r.countSkipped()
			if reason == "lock_held" {
				return nil, ErrCycleSkipped
			}
			return nil, fmt.Errorf("scanner: acquire cycle lock: %w", err)
		}
		defer unlock()
	}

	opps := r.Detect(r.store.Snapshot(), prefs, start)
	if err := r.broker.Publish(ctx, opps); err != nil {
		metrics.ScanSkipped.WithLabelValues("publish_error").Inc()
		r.countSkipped()
		return nil, fmt.Errorf("scanner: publish: %w", err)
	}

	elapsed := r.opts.Now().Sub(start)
	r.statsMu.Lock()
	r.lastCount = len(opps)
	r.iterations++
	r.lastElapsed = elapsed
	r.lastFinished = r.opts.Now()
	r.statsMu.Unlock()

	metrics.ScanIterations.Inc()
	metrics.ScanDuration.Observe(float64(elapsed) / float64(time.Millisecond))
	metrics.Opportunities.Set(float64(len(opps)))
	r.logger.DebugContext(ctx, "scan cycle complete",
		slog.Int("opportunities", len(opps)),
		slog.Duration("elapsed", elapsed),
	)
	return opps, nil
}

// Detect runs every registered detector over the active symbols and
// exchanges of books and returns the ranked, truncated list.
func (r *Runtime) Detect(books map[string]map[string]domain.OrderBookSnapshot, prefs Snapshot, now time.Time) []domain.Opportunity {
	params := arbitrage.Params{
		TradeNotional:    prefs.TradeNotionalUSDT,
		MinSpreadDiffPct: prefs.MinSpreadDiffPct,
		MinNetEdgePct:    r.opts.Costs.MinNetEdgePct,
		TakerFeeBps:      r.opts.Costs.TakerFeeBps,
		SlippageBps:      r.opts.Costs.SlippageBps,
		WithdrawCostUSDT: r.opts.Costs.WithdrawCostUSDT,
		StaleAfter:       r.opts.StaleAfter,
		Now:              now,
	}
	detectors := r.registry.All()

	symbols := make([]string, 0, len(books))
	for sym := range books {
		if _, ok := prefs.ActiveSymbols[sym]; ok {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	out := make([]domain.Opportunity, 0)
	for _, sym := range symbols {
		filtered := make(map[string]domain.OrderBookSnapshot, len(books[sym]))
		for ex, snap := range books[sym] {
			if _, ok := prefs.ActiveExchanges[ex]; ok {
				filtered[ex] = snap
			}
		}
		if len(filtered) < 2 {
			continue
		}
		for _, d := range detectors {
			out = append(out, d.Detect(filtered, params)...)
		}
	}

	return arbitrage.Top(out, r.opts.MaxOpportunities)
}

func (r *Runtime) countSkipped() {
	r.statsMu.Lock()
	r.skipped++
	r.statsMu.Unlock()
}

func (r *Runtime) restorePreferences(ctx context.Context) {
	if r.opts.PreferencesStore == nil {
		return
	}
	saved, err := r.opts.PreferencesStore.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "load saved preferences failed", slog.String("error", err.Error()))
		}
		return
	}
	r.prefs.Restore(saved)
	r.logger.InfoContext(ctx, "restored saved preferences",
		slog.Int("active_exchanges", len(saved.ActiveExchanges)),
		slog.Int("active_symbols", len(saved.ActiveSymbols)),
	)
}

func (r *Runtime) persistPreferences(ctx context.Context) {
	if r.opts.PreferencesStore == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := r.opts.PreferencesStore.Save(saveCtx, r.prefs.Persisted()); err != nil {
		r.logger.WarnContext(ctx, "save preferences failed", slog.String("error", err.Error()))
	}
}
