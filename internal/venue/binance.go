package venue

import (
	"context"
	"fmt"
	"time"

	gbinance "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"
)

// Binance reads spot markets and books through go-binance.
type Binance struct {
	client  *gbinance.Client
	limiter *rate.Limiter
	index   marketIndex
}

// NewBinance returns a Binance adapter using public endpoints only.
func NewBinance(opts Options) *Binance {
	client := gbinance.NewClient("", "")
	client.HTTPClient = opts.httpClient()
	if opts.BaseURL != "" {
		client.BaseURL = opts.baseURL("")
	}
	return &Binance{client: client, limiter: opts.limiter()}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) LoadMarkets(ctx context.Context) ([]string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("venue: binance: rate wait: %w", err)
	}
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("venue: binance: exchange info: %w", err)
	}

	m := make(map[string]string, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || s.BaseAsset == "" || s.QuoteAsset == "" {
			continue
		}
		m[Unified(s.BaseAsset, s.QuoteAsset)] = s.Symbol
	}
	return b.index.replace(m), nil
}

func (b *Binance) FetchOrderBook(ctx context.Context, market string, depth int) (Book, error) {
	id, err := b.index.lookup(b.Name(), market)
	if err != nil {
		return Book{}, err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return Book{}, fmt.Errorf("venue: binance: rate wait: %w", err)
	}

	limit := clampLimit(depth, []int{5, 10, 20, 50, 100, 500, 1000, 5000})
	res, err := b.client.NewDepthService().Symbol(id).Limit(limit).Do(ctx)
	if err != nil {
		return Book{}, fmt.Errorf("venue: binance: depth %s (limit=%d): %w", id, limit, err)
	}

	bids := make([][]string, 0, len(res.Bids))
	for _, l := range res.Bids {
		bids = append(bids, []string{l.Price, l.Quantity})
	}
	asks := make([][]string, 0, len(res.Asks))
	for _, l := range res.Asks {
		asks = append(asks, []string{l.Price, l.Quantity})
	}
	return Book{
		Bids:      parseLevels(bids, depth),
		Asks:      parseLevels(asks, depth),
		Timestamp: time.Now().UTC(),
	}, nil
}

func (b *Binance) Close() error {
	b.client.HTTPClient.CloseIdleConnections()
	return nil
}

var _ Client = (*Binance)(nil)
