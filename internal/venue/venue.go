// Package venue holds the per-exchange REST adapters the live connector uses
// to list spot markets and fetch depth-limited order books. Markets are
// exposed in unified "BASE/QUOTE" form; each adapter keeps the mapping back
// to its native instrument id.
package venue

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"golang.org/x/time/rate"
)

// Book is a raw order book as returned by a venue. Levels are not yet
// filtered for non-positive values.
type Book struct {
	Bids      []domain.PriceLevel
	Asks      []domain.PriceLevel
	Timestamp time.Time
}

// Client is one exchange's public market-data API.
type Client interface {
	Name() string
	// LoadMarkets returns the tradable spot markets in unified form and
	// refreshes the adapter's market index.
	LoadMarkets(ctx context.Context) ([]string, error)
	// FetchOrderBook returns up to depth levels per side for a unified
	// market previously returned by LoadMarkets.
	FetchOrderBook(ctx context.Context, market string, depth int) (Book, error)
	Close() error
}

// Options configures an adapter.
type Options struct {
	// Timeout bounds every HTTP request.
	Timeout time.Duration
	// RPS and Burst pace requests per adapter. RPS <= 0 disables pacing.
	RPS   float64
	Burst int
	// BaseURL overrides the venue's public endpoint.
	BaseURL string
}

const defaultTimeout = 10 * time.Second

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultTimeout
	}
	return o.Timeout
}

func (o Options) limiter() *rate.Limiter {
	if o.RPS <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := o.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.RPS), burst)
}

func (o Options) httpClient() *http.Client {
	return &http.Client{Timeout: o.timeout()}
}

func (o Options) baseURL(def string) string {
	if o.BaseURL != "" {
		return strings.TrimRight(o.BaseURL, "/")
	}
	return def
}

// constructors maps canonical exchange ids to adapter constructors.
var constructors = map[string]func(Options) Client{
	"binance": func(o Options) Client { return NewBinance(o) },
	"bybit":   func(o Options) Client { return NewBybit(o) },
	"okx":     func(o Options) Client { return NewOKX(o) },
	"gate":    func(o Options) Client { return NewGate(o) },
	"kucoin":  func(o Options) Client { return NewKuCoin(o) },
	"htx":     func(o Options) Client { return NewHTX(o) },
}

var aliases = map[string]string{
	"huobi":  "htx",
	"gateio": "gate",
}

// Canonical returns the adapter id for an exchange name, resolving aliases.
func Canonical(exchange string) string {
	id := strings.ToLower(strings.TrimSpace(exchange))
	if alias, ok := aliases[id]; ok {
		return alias
	}
	return id
}

// Supported returns the sorted list of exchanges with an adapter.
func Supported() []string {
	out := make([]string, 0, len(constructors))
	for id := range constructors {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// New builds the adapter for exchange.
func New(exchange string, opts Options) (Client, error) {
	ctor, ok := constructors[Canonical(exchange)]
	if !ok {
		return nil, fmt.Errorf("venue: %s: %w", exchange, domain.ErrUnsupportedExchange)
	}
	return ctor(opts), nil
}

// Unified joins base and quote into "BASE/QUOTE".
func Unified(base, quote string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}

// marketIndex maps unified market names to native instrument ids.
type marketIndex struct {
	mu     sync.RWMutex
	native map[string]string
}

// replace swaps the index for m and returns the sorted unified names.
func (ix *marketIndex) replace(m map[string]string) []string {
	ix.mu.Lock()
	ix.native = m
	ix.mu.Unlock()

	out := make([]string, 0, len(m))
	for unified := range m {
		out = append(out, unified)
	}
	sort.Strings(out)
	return out
}

func (ix *marketIndex) lookup(venue, market string) (string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.native[market]
	if !ok {
		return "", fmt.Errorf("venue: %s market %s: %w", venue, market, domain.ErrSymbolUnavailable)
	}
	return id, nil
}

// parseLevels converts [price, qty, ...] string rows. Malformed rows are
// skipped. At most depth rows are returned when depth > 0.
func parseLevels(rows [][]string, depth int) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if depth > 0 && len(out) == depth {
			break
		}
		if len(row) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return out
}

// clampLimit returns the smallest allowed value >= n, or the largest one.
func clampLimit(n int, allowed []int) int {
	for _, v := range allowed {
		if n <= v {
			return v
		}
	}
	return allowed[len(allowed)-1]
}

func msTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
