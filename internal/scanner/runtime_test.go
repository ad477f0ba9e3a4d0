package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/broker"
	cacheredis "github.com/alanyoungcy/arbscanner/internal/cache/redis"
	"github.com/alanyoungcy/arbscanner/internal/connector"
	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultCosts() Costs {
	return Costs{MinNetEdgePct: 0.2, TakerFeeBps: 10, SlippageBps: 5, WithdrawCostUSDT: 2}
}

// recordingConnector records SetSymbols calls and blocks in Run until
// cancelled.
type recordingConnector struct {
	exchange string
	mu       sync.Mutex
	symbols  [][]string
	runs     int
}

func (c *recordingConnector) Exchange() string { return c.exchange }

func (c *recordingConnector) Run(ctx context.Context, _ connector.Sink) error {
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (c *recordingConnector) SetSymbols(s []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols = append(c.symbols, append([]string(nil), s...))
}

func (c *recordingConnector) Status() connector.Status {
	return connector.Status{Exchange: c.exchange, Mode: "test", Initialized: true}
}

func (c *recordingConnector) lastSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.symbols) == 0 {
		return nil
	}
	return c.symbols[len(c.symbols)-1]
}

func (c *recordingConnector) setCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.symbols)
}

func (c *recordingConnector) runCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

type memoryPrefsStore struct {
	mu    sync.Mutex
	saved *domain.RuntimePreferences
	saves int
}

func (s *memoryPrefsStore) Load(context.Context) (domain.RuntimePreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return domain.RuntimePreferences{}, domain.ErrNotFound
	}
	return *s.saved, nil
}

func (s *memoryPrefsStore) Save(_ context.Context, p domain.RuntimePreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = &p
	s.saves++
	return nil
}

// fixedDetector returns n opportunities with distinct net edges.
type fixedDetector struct{ n int }

func (fixedDetector) Name() string { return "fixed" }

func (d fixedDetector) Detect(map[string]domain.OrderBookSnapshot, arbitrage.Params) []domain.Opportunity {
	out := make([]domain.Opportunity, d.n)
	for i := range out {
		out[i] = domain.Opportunity{ID: fmt.Sprintf("o%03d", i), NetEdgePct: float64(i)}
	}
	return out
}

func twoExchangePrefs(interval int, minSpread float64) *Preferences {
	return NewPreferences(
		Universe{Exchanges: []string{"alpha", "beta", "gamma"}, Symbols: []string{"BTC-USDT", "ETH-USDT"}},
		domain.RuntimePreferences{
			ActiveExchanges:   []string{"alpha", "beta"},
			ActiveSymbols:     []string{"BTC-USDT"},
			ScanIntervalSec:   interval,
			TradeNotionalUSDT: 1000,
			MinSpreadDiffPct:  minSpread,
		},
	)
}

func TestScanOnceBiasedSyntheticExchanges(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	prefs := twoExchangePrefs(10, 0)
	costs := defaultCosts()
	costs.MinNetEdgePct = 0.01
	r := New(ctx, prefs, nil, b, Options{StaleAfter: 30 * time.Second, Costs: costs}, discardLogger())

	now := time.Now().UTC()
	low := connector.NewSynthetic("alpha", []string{"BTC-USDT"}, time.Second, -0.005, connector.SyntheticSeed(0), discardLogger())
	high := connector.NewSynthetic("beta", []string{"BTC-USDT"}, time.Second, 0.005, connector.SyntheticSeed(1), discardLogger())
	low.Tick(r.Store(), now)
	high.Tick(r.Store(), now)

	opps, err := r.ScanOnce(ctx)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	o := opps[0]
	assert.Equal(t, "alpha", o.BuyExchange)
	assert.Equal(t, "beta", o.SellExchange)
	assert.Equal(t, "BTC-USDT", o.Symbol)
	assert.Greater(t, o.NetEdgePct, 0.01)
	assert.Less(t, o.NetEdgePct, o.GrossEdgePct)
	assert.Equal(t, opps, b.Latest())

	st := r.Status()
	assert.Equal(t, 1, st.Counters.OpportunitiesLastScan)
	assert.Equal(t, int64(1), st.Counters.ScanIterations)
	require.NotNil(t, st.Counters.LastScanAgeMs)
}

func TestDetectNotionalBoundedScenario(t *testing.T) {
	ctx := context.Background()
	prefs := NewPreferences(
		Universe{Exchanges: []string{"a", "b"}, Symbols: []string{"X-USDT"}},
		domain.RuntimePreferences{
			ActiveExchanges: []string{"a", "b"}, ActiveSymbols: []string{"X-USDT"},
			ScanIntervalSec: 10, TradeNotionalUSDT: 100, MinSpreadDiffPct: 0,
		},
	)
	r := New(ctx, prefs, nil, broker.NewMemory(), Options{StaleAfter: time.Minute}, discardLogger())

	now := time.Now()
	books := map[string]map[string]domain.OrderBookSnapshot{
		"X-USDT": {
			"a": {Exchange: "a", Symbol: "X-USDT", Healthy: true, IngestTime: now,
				Asks: []domain.PriceLevel{{Price: 100, Quantity: 3}}, Bids: []domain.PriceLevel{{Price: 99, Quantity: 3}}},
			"b": {Exchange: "b", Symbol: "X-USDT", Healthy: true, IngestTime: now,
				Asks: []domain.PriceLevel{{Price: 103, Quantity: 3}}, Bids: []domain.PriceLevel{{Price: 102, Quantity: 3}}},
		},
	}
	opps := r.Detect(books, prefs.Snapshot(), now)
	require.Len(t, opps, 1)
	assert.Equal(t, "a", opps[0].BuyExchange)
	assert.InDelta(t, 1.0, opps[0].AvailableQty, 1e-9)
	assert.InDelta(t, 2.0, opps[0].GrossEdgePct, 1e-9)
	assert.InDelta(t, 2.0, opps[0].NetEdgePct, 1e-9)
	assert.InDelta(t, 2.0, opps[0].ExpectedProfitUSDT, 1e-9)
}

func TestDetectHonoursActiveSets(t *testing.T) {
	ctx := context.Background()
	prefs := twoExchangePrefs(10, 0)
	r := New(ctx, prefs, nil, broker.NewMemory(), Options{StaleAfter: time.Minute}, discardLogger())

	now := time.Now()
	book := func(ex string, ask, bid float64) domain.OrderBookSnapshot {
		return domain.OrderBookSnapshot{Exchange: ex, Healthy: true, IngestTime: now,
			Asks: []domain.PriceLevel{{Price: ask, Quantity: 100}}, Bids: []domain.PriceLevel{{Price: bid, Quantity: 100}}}
	}
	books := map[string]map[string]domain.OrderBookSnapshot{
		// gamma is inactive, leaving one active exchange.
		"BTC-USDT": {"alpha": book("alpha", 100, 99), "gamma": book("gamma", 120, 119)},
		// inactive symbol.
		"ETH-USDT": {"alpha": book("alpha", 100, 99), "beta": book("beta", 120, 119)},
	}
	opps := r.Detect(books, prefs.Snapshot(), now)
	assert.NotNil(t, opps)
	assert.Empty(t, opps)
}

func TestScanOnceTruncatesAndSorts(t *testing.T) {
	ctx := context.Background()
	reg := arbitrage.NewRegistry()
	reg.Register(fixedDetector{n: 200})
	prefs := twoExchangePrefs(10, 0)
	r := New(ctx, prefs, nil, broker.NewMemory(), Options{StaleAfter: time.Minute, Registry: reg}, discardLogger())

	now := time.Now()
	r.Store().Upsert(domain.OrderBookSnapshot{Exchange: "alpha", Symbol: "BTC-USDT", IngestTime: now})
	r.Store().Upsert(domain.OrderBookSnapshot{Exchange: "beta", Symbol: "BTC-USDT", IngestTime: now})

	opps, err := r.ScanOnce(ctx)
	require.NoError(t, err)
	require.Len(t, opps, DefaultMaxOpportunities)
	assert.Equal(t, 199.0, opps[0].NetEdgePct)
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].NetEdgePct, opps[i].NetEdgePct)
	}
}

func TestStartStopIsIdempotentAndPublishes(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	prefs := twoExchangePrefs(1, 0)
	costs := defaultCosts()
	costs.MinNetEdgePct = 0.01
	conns := []connector.Connector{
		connector.NewSynthetic("alpha", nil, 20*time.Millisecond, -0.005, connector.SyntheticSeed(0), discardLogger()),
		connector.NewSynthetic("beta", nil, 20*time.Millisecond, 0.005, connector.SyntheticSeed(1), discardLogger()),
	}
	r := New(ctx, prefs, conns, b, Options{ConnectorMode: connector.ModeSynthetic, StaleAfter: 30 * time.Second, Costs: costs}, discardLogger())

	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Start(ctx))
	assert.Equal(t, StateRunning, r.State())

	assert.Eventually(t, func() bool { return len(b.Latest()) > 0 }, 5*time.Second, 20*time.Millisecond)

	st := r.Status()
	assert.True(t, st.Started)
	assert.Equal(t, 2, st.Counters.ConnectorsTotal)
	assert.Equal(t, 0, st.Counters.ConnectorsUnavailable)
	assert.Equal(t, r.ID(), st.InstanceID)
	assert.NotEmpty(t, st.InstanceID)
	assert.Equal(t, connector.ModeSynthetic, st.ConnectorMode)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(stopCtx))
	require.NoError(t, r.Stop(stopCtx))
	assert.Equal(t, StateStopped, r.State())
	assert.False(t, r.Status().Started)

	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Stop(stopCtx))
}

// stubbornConnector keeps running after cancellation until released.
type stubbornConnector struct {
	release chan struct{}
}

func (c *stubbornConnector) Exchange() string { return "alpha" }

func (c *stubbornConnector) Run(context.Context, connector.Sink) error {
	<-c.release
	return nil
}

func (c *stubbornConnector) SetSymbols([]string) {}

func (c *stubbornConnector) Status() connector.Status {
	return connector.Status{Exchange: "alpha", Mode: "test"}
}

func TestStopDeadlineKeepsRuntimeStopping(t *testing.T) {
	ctx := context.Background()
	conn := &stubbornConnector{release: make(chan struct{})}
	r := New(ctx, twoExchangePrefs(10, 0), []connector.Connector{conn}, broker.NewMemory(),
		Options{StaleAfter: 30 * time.Second}, discardLogger())
	require.NoError(t, r.Start(ctx))

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := r.Stop(shortCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	stateRead := make(chan State, 1)
	go func() { stateRead <- r.State() }()
	select {
	case st := <-stateRead:
		assert.Equal(t, StateStopping, st)
	case <-time.After(time.Second):
		t.Fatal("State blocked while tasks were draining")
	}
	assert.Equal(t, StateStopping, r.Status().State)

	require.NoError(t, r.Start(ctx))
	assert.Equal(t, StateStopping, r.State(), "no restart while tasks drain")

	close(conn.release)
	stopCtx, cancelStop := context.WithTimeout(ctx, 5*time.Second)
	defer cancelStop()
	require.NoError(t, r.Stop(stopCtx))
	assert.Equal(t, StateStopped, r.State())
}

func TestUpdateSettingsPushesSymbolsAndPersists(t *testing.T) {
	ctx := context.Background()
	store := &memoryPrefsStore{}
	a := &recordingConnector{exchange: "alpha"}
	bconn := &recordingConnector{exchange: "beta"}
	r := New(ctx, twoExchangePrefs(10, 0), []connector.Connector{a, bconn}, broker.NewMemory(),
		Options{StaleAfter: time.Minute, PreferencesStore: store}, discardLogger())

	require.NoError(t, r.Start(ctx))
	defer r.Stop(ctx)
	assert.Eventually(t, func() bool { return a.runCount() == 1 && bconn.runCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"BTC-USDT"}, a.lastSymbols())

	s := r.UpdateSettings(ctx, SettingsUpdate{ActiveSymbols: ptr([]string{"eth-usdt", "BTC-USDT"})})
	assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, s.ActiveSymbols)
	assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, a.lastSymbols())
	assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, bconn.lastSymbols())

	calls := a.setCalls()
	r.UpdateSettings(ctx, SettingsUpdate{ScanIntervalSec: ptr(30)})
	assert.Equal(t, calls, a.setCalls(), "non-symbol update must not touch connectors")

	require.NotNil(t, store.saved)
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, 30, store.saved.ScanIntervalSec)
	assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, store.saved.ActiveSymbols)
}

func TestNewRestoresSavedPreferences(t *testing.T) {
	store := &memoryPrefsStore{saved: &domain.RuntimePreferences{
		ActiveExchanges:   []string{"gamma"},
		ActiveSymbols:     []string{"ETH-USDT"},
		ScanIntervalSec:   300,
		TradeNotionalUSDT: 50,
		MinSpreadDiffPct:  0.5,
	}}
	r := New(context.Background(), twoExchangePrefs(10, 0), nil, broker.NewMemory(),
		Options{PreferencesStore: store}, discardLogger())

	s := r.Settings()
	assert.Equal(t, []string{"gamma"}, s.ActiveExchanges)
	assert.Equal(t, []string{"ETH-USDT"}, s.ActiveSymbols)
	assert.Equal(t, 300, s.ScanIntervalSec)
	assert.Equal(t, 50.0, s.TradeNotionalUSDT)
}

type failingLock struct{ err error }

func (l failingLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, l.err
}

func TestScanOnceSkipsWhenCycleLockHeld(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	locks := cacheredis.NewLockManager(cacheredis.Wrap(rdb), "arb:")

	b := broker.NewMemory()
	r := New(ctx, twoExchangePrefs(10, 0), nil, b,
		Options{StaleAfter: time.Minute, CycleLock: locks, LockKey: "cycle"}, discardLogger())

	// The first cycle takes and releases the lock.
	_, err := r.ScanOnce(ctx)
	require.NoError(t, err)
	assert.False(t, mr.Exists("arb:lock:cycle"))

	// Another process holds it now.
	unlock, err := locks.Acquire(ctx, "cycle", time.Minute)
	require.NoError(t, err)
	defer unlock()

	_, err = r.ScanOnce(ctx)
	assert.ErrorIs(t, err, ErrCycleSkipped)
	st := r.Status()
	assert.Equal(t, int64(1), st.Counters.ScanIterations)
	assert.Equal(t, int64(1), st.Counters.CyclesSkipped)
}

func TestScanOnceLockErrorIsReturned(t *testing.T) {
	boom := errors.New("redis down")
	r := New(context.Background(), twoExchangePrefs(10, 0), nil, broker.NewMemory(),
		Options{CycleLock: failingLock{err: boom}}, discardLogger())
	_, err := r.ScanOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCycleSkipped)
}

func TestStatusCountsFreshAndStaleBooks(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	conn := &recordingConnector{exchange: "alpha"}
	r := New(context.Background(), twoExchangePrefs(10, 0), []connector.Connector{conn}, broker.NewMemory(),
		Options{StaleAfter: 30 * time.Second, Now: func() time.Time { return now }}, discardLogger())

	r.Store().Upsert(domain.OrderBookSnapshot{Exchange: "alpha", Symbol: "BTC-USDT", IngestTime: now.Add(-time.Second)})
	r.Store().Upsert(domain.OrderBookSnapshot{Exchange: "alpha", Symbol: "ETH-USDT", IngestTime: now.Add(-30 * time.Second)})
	r.Store().Upsert(domain.OrderBookSnapshot{Exchange: "beta", Symbol: "BTC-USDT", IngestTime: now.Add(-31 * time.Second)})
	r.Store().Upsert(domain.OrderBookSnapshot{Exchange: "delta", Symbol: "BTC-USDT", IngestTime: now})

	st := r.Status()
	assert.False(t, st.Started)
	assert.Equal(t, 4, st.Counters.BooksTotal)
	assert.Equal(t, 3, st.Counters.BooksFresh)
	assert.Equal(t, 1, st.Counters.BooksStale)
	assert.Nil(t, st.Counters.LastScanAgeMs)

	require.Len(t, st.Exchanges, 4)
	byName := map[string]ExchangeStatus{}
	for _, e := range st.Exchanges {
		byName[e.Exchange] = e
	}
	alpha := byName["alpha"]
	assert.Equal(t, 2, alpha.BooksFresh)
	require.NotNil(t, alpha.NewestAgeMs)
	assert.Equal(t, 1000.0, *alpha.NewestAgeMs)
	require.NotNil(t, alpha.Connector)
	assert.Equal(t, "test", alpha.Connector.Mode)

	assert.Equal(t, 1, byName["beta"].BooksStale)
	assert.Nil(t, byName["gamma"].NewestAgeMs)
	assert.Equal(t, 1, byName["delta"].BooksFresh)
	assert.Equal(t, []string{"alpha", "beta", "delta", "gamma"},
		[]string{st.Exchanges[0].Exchange, st.Exchanges[1].Exchange, st.Exchanges[2].Exchange, st.Exchanges[3].Exchange})
}

type unavailableConnector struct{ recordingConnector }

func (c *unavailableConnector) Status() connector.Status {
	return connector.Status{Exchange: c.exchange, Mode: connector.ModeUnavailable}
}

func TestStatusCountsUnavailableConnectors(t *testing.T) {
	conns := []connector.Connector{
		&recordingConnector{exchange: "alpha"},
		&unavailableConnector{recordingConnector{exchange: "gamma"}},
	}
	r := New(context.Background(), twoExchangePrefs(10, 0), conns, broker.NewMemory(),
		Options{StaleAfter: 30 * time.Second}, discardLogger())

	st := r.Status()
	assert.Equal(t, 2, st.Counters.ConnectorsTotal)
	assert.Equal(t, 1, st.Counters.ConnectorsUnavailable)
	for _, e := range st.Exchanges {
		if e.Exchange == "gamma" {
			require.NotNil(t, e.Connector)
			assert.Equal(t, connector.ModeUnavailable, e.Connector.Mode)
		}
	}
}
