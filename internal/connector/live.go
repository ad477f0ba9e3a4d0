package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/metrics"
	"github.com/alanyoungcy/arbscanner/internal/venue"
)

const (
	defaultFailureBackoff = 3 * time.Second
	defaultIdleWait       = 5 * time.Second
	minPollInterval       = 100 * time.Millisecond
)

var errNothingMapped = errors.New("no symbols mapped")

// ClientFactory builds a venue client for an exchange.
type ClientFactory func(exchange string) (venue.Client, error)

// LiveOptions configures a Live connector.
type LiveOptions struct {
	PollInterval time.Duration
	Depth        int
	// Timeout bounds market loading and every book fetch.
	Timeout time.Duration
}

// Live polls a real exchange through a venue client.
//
// The client is created lazily and dropped on any failure, after which the
// connector waits a fixed backoff and starts over.
type Live struct {
	exchange  string
	opts      LiveOptions
	newClient ClientFactory
	logger    *slog.Logger

	failureBackoff time.Duration
	idleWait       time.Duration

	mu          sync.Mutex
	symbols     []string
	initialized bool
	mapped      int
	unavailable bool
	failures    int64
	lastErr     string
	lastUpdate  time.Time

	// Owned by the Run goroutine.
	client    venue.Client
	markets   []string
	symbolMap map[string]string
	symbolKey string
}

// NewLive creates a live connector for exchange.
func NewLive(exchange string, symbols []string, opts LiveOptions, newClient ClientFactory, logger *slog.Logger) *Live {
	if opts.PollInterval < minPollInterval {
		opts.PollInterval = minPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	l := &Live{
		exchange:  exchange,
		opts:      opts,
		newClient: newClient,
		logger: logger.With(
			slog.String("component", "connector"),
			slog.String("exchange", exchange),
			slog.String("mode", ModeLive),
		),
		failureBackoff: defaultFailureBackoff,
		idleWait:       defaultIdleWait,
	}
	l.SetSymbols(symbols)
	return l
}

func (l *Live) Exchange() string { return l.exchange }

func (l *Live) SetSymbols(symbols []string) {
	symbols = normalizeSymbols(symbols)
	l.mu.Lock()
	l.symbols = symbols
	l.mu.Unlock()
}

func (l *Live) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	mode := ModeLive
	if l.unavailable {
		mode = ModeUnavailable
	}
	return Status{
		Exchange:         l.exchange,
		Mode:             mode,
		Initialized:      l.initialized,
		RequestedSymbols: len(l.symbols),
		MappedSymbols:    l.mapped,
		Failures:         l.failures,
		LastError:        l.lastErr,
		LastUpdate:       l.lastUpdate,
	}
}

// Run polls until ctx is cancelled. An exchange without a venue adapter is
// reported unavailable once and then left idle.
func (l *Live) Run(ctx context.Context, sink Sink) error {
	defer l.reset()
	l.logger.InfoContext(ctx, "live connector started")

	for {
		if ctx.Err() != nil {
			l.logger.Info("live connector stopped")
			return nil
		}

		err := l.poll(ctx, sink)
		wait := l.opts.PollInterval
		switch {
		case err == nil:
		case ctx.Err() != nil:
			continue
		case errors.Is(err, errNothingMapped):
			wait = l.idleWait
		case errors.Is(err, domain.ErrUnsupportedExchange):
			l.markUnavailable(err)
			l.logger.InfoContext(ctx, "exchange not supported, connector idle",
				slog.String("error", err.Error()),
			)
			<-ctx.Done()
			l.logger.Info("live connector stopped")
			return nil
		default:
			metrics.ConnectorErrors.WithLabelValues(l.exchange).Inc()
			l.logger.WarnContext(ctx, "connector cycle failed, resetting client",
				slog.String("error", err.Error()),
				slog.Duration("backoff", l.failureBackoff),
			)
			l.setError(err)
			l.reset()
			wait = l.failureBackoff
		}
		sleepCtx(ctx, wait)
	}
}

// poll runs one pass over the mapped symbols.
func (l *Live) poll(ctx context.Context, sink Sink) error {
	if err := l.ensureClient(ctx); err != nil {
		return err
	}
	l.refreshSymbolMap(ctx)
	if len(l.symbolMap) == 0 {
		return errNothingMapped
	}

	canonical := make([]string, 0, len(l.symbolMap))
	for sym := range l.symbolMap {
		canonical = append(canonical, sym)
	}
	sort.Strings(canonical)

	for _, sym := range canonical {
		if ctx.Err() != nil {
			return nil
		}
		market := l.symbolMap[sym]

		fetchCtx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
		book, err := l.client.FetchOrderBook(fetchCtx, market, l.opts.Depth)
		cancel()
		if err != nil {
			return fmt.Errorf("fetch %s (%s): %w", sym, market, err)
		}

		snap, ok := l.snapshot(sym, market, book)
		if !ok {
			continue
		}
		sink.Upsert(snap)
		metrics.SnapshotsIngested.WithLabelValues(l.exchange).Inc()
		l.touch(snap.IngestTime)
	}
	return nil
}

func (l *Live) ensureClient(ctx context.Context) error {
	if l.client != nil {
		return nil
	}

	client, err := l.newClient(l.exchange)
	if err != nil {
		return fmt.Errorf("init client: %w", err)
	}

	loadCtx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	markets, err := client.LoadMarkets(loadCtx)
	cancel()
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("load markets: %w", err)
	}

	l.client = client
	l.markets = markets
	l.symbolMap = nil
	l.symbolKey = ""

	l.mu.Lock()
	l.initialized = true
	l.lastErr = ""
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "live connector initialized", slog.Int("markets", len(markets)))
	return nil
}

// refreshSymbolMap rebuilds the canonical -> market map when the sorted
// working set changed.
func (l *Live) refreshSymbolMap(ctx context.Context) {
	l.mu.Lock()
	symbols := append([]string(nil), l.symbols...)
	l.mu.Unlock()

	key := sortedKey(symbols)
	if l.symbolMap != nil && key == l.symbolKey {
		return
	}

	m := make(map[string]string, len(symbols))
	var missing []string
	for _, sym := range symbols {
		if market, ok := ResolveSymbol(sym, l.markets); ok {
			m[sym] = market
		} else {
			missing = append(missing, sym)
		}
	}
	l.symbolMap = m
	l.symbolKey = key

	l.mu.Lock()
	l.mapped = len(m)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "connector symbols refreshed",
		slog.Int("mapped", len(m)),
		slog.Int("unavailable", len(missing)),
	)
	if len(missing) > 0 {
		l.logger.DebugContext(ctx, "symbols unavailable on exchange",
			slog.String("symbols", strings.Join(missing, ",")),
		)
	}
}

// snapshot converts a raw venue book. It reports false when either side is
// empty after dropping non-positive levels.
func (l *Live) snapshot(symbol, market string, book venue.Book) (domain.OrderBookSnapshot, bool) {
	bids := domain.PositiveLevels(book.Bids)
	asks := domain.PositiveLevels(book.Asks)
	if d := l.opts.Depth; d > 0 {
		if len(bids) > d {
			bids = bids[:d]
		}
		if len(asks) > d {
			asks = asks[:d]
		}
	}
	if len(bids) == 0 || len(asks) == 0 {
		return domain.OrderBookSnapshot{}, false
	}

	now := time.Now().UTC()
	event := book.Timestamp
	if event.IsZero() {
		event = now
	}
	return domain.OrderBookSnapshot{
		Exchange:   l.exchange,
		Symbol:     symbol,
		Bids:       bids,
		Asks:       asks,
		EventTime:  event,
		IngestTime: now,
		Healthy:    true,
		Metadata: map[string]any{
			"source": ModeLive,
			"market": market,
		},
	}, true
}

func (l *Live) reset() {
	if l.client != nil {
		_ = l.client.Close()
	}
	l.client = nil
	l.markets = nil
	l.symbolMap = nil
	l.symbolKey = ""

	l.mu.Lock()
	l.initialized = false
	l.mapped = 0
	l.mu.Unlock()
}

// setError records a failed cycle. The count survives re-initialization;
// the message is cleared once a client initializes again.
func (l *Live) setError(err error) {
	l.mu.Lock()
	l.failures++
	l.lastErr = err.Error()
	l.mu.Unlock()
}

func (l *Live) markUnavailable(err error) {
	l.mu.Lock()
	l.unavailable = true
	l.initialized = false
	l.lastErr = err.Error()
	l.mu.Unlock()
}

func (l *Live) touch(t time.Time) {
	l.mu.Lock()
	l.lastUpdate = t
	l.mu.Unlock()
}

// ResolveSymbol maps a canonical "BASE-QUOTE" symbol onto one of an
// exchange's unified markets. Candidates are tried in order: the exact
// "BASE/QUOTE" market, the first "BASE/QUOTE:<settle>" market, then any
// market whose normalized form ("/" -> "-", cut at ":") equals the symbol.
func ResolveSymbol(canonical string, markets []string) (string, bool) {
	base, quote, ok := strings.Cut(canonical, "-")
	if !ok {
		return "", false
	}
	unified := base + "/" + quote

	for _, m := range markets {
		if m == unified {
			return m, true
		}
	}
	for _, m := range markets {
		if strings.HasPrefix(m, unified+":") {
			return m, true
		}
	}
	for _, m := range markets {
		normalized, _, _ := strings.Cut(strings.ReplaceAll(m, "/", "-"), ":")
		if normalized == canonical {
			return m, true
		}
	}
	return "", false
}

var _ Connector = (*Live)(nil)
