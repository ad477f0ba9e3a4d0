package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"golang.org/x/time/rate"
)

// Bybit reads spot markets and books through the official v5 SDK.
type Bybit struct {
	client  *bybit.Client
	http    *http.Client
	limiter *rate.Limiter
	index   marketIndex
}

// NewBybit returns a Bybit adapter using public endpoints only.
func NewBybit(opts Options) *Bybit {
	httpClient := opts.httpClient()
	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(opts.baseURL("https://api.bybit.com")))
	client.HTTPClient = httpClient
	return &Bybit{client: client, http: httpClient, limiter: opts.limiter()}
}

func (b *Bybit) Name() string { return "bybit" }

type bybitInstruments struct {
	List []struct {
		Symbol    string `json:"symbol"`
		BaseCoin  string `json:"baseCoin"`
		QuoteCoin string `json:"quoteCoin"`
		Status    string `json:"status"`
	} `json:"list"`
}

type bybitBook struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
	Ts     int64      `json:"ts"`
}

// decodeResult checks the envelope and re-marshals Result into out.
func (b *Bybit) decodeResult(op string, resp *bybit.ServerResponse, out any) error {
	if resp == nil {
		return fmt.Errorf("venue: bybit: %s: empty response", op)
	}
	if resp.RetCode != 0 {
		return fmt.Errorf("venue: bybit: %s: retCode %d: %s", op, resp.RetCode, resp.RetMsg)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("venue: bybit: %s: marshal result: %w", op, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("venue: bybit: %s: decode result: %w", op, err)
	}
	return nil
}

func (b *Bybit) LoadMarkets(ctx context.Context) ([]string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("venue: bybit: rate wait: %w", err)
	}
	params := map[string]interface{}{"category": "spot"}
	resp, err := b.client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("venue: bybit: instruments: %w", err)
	}

	var result bybitInstruments
	if err := b.decodeResult("instruments", resp, &result); err != nil {
		return nil, err
	}

	m := make(map[string]string, len(result.List))
	for _, inst := range result.List {
		if inst.Status != "Trading" || inst.BaseCoin == "" || inst.QuoteCoin == "" {
			continue
		}
		m[Unified(inst.BaseCoin, inst.QuoteCoin)] = inst.Symbol
	}
	return b.index.replace(m), nil
}

func (b *Bybit) FetchOrderBook(ctx context.Context, market string, depth int) (Book, error) {
	id, err := b.index.lookup(b.Name(), market)
	if err != nil {
		return Book{}, err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return Book{}, fmt.Errorf("venue: bybit: rate wait: %w", err)
	}

	limit := depth
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	params := map[string]interface{}{
		"category": "spot",
		"symbol":   id,
		"limit":    limit,
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(ctx)
	if err != nil {
		return Book{}, fmt.Errorf("venue: bybit: orderbook %s: %w", id, err)
	}

	var result bybitBook
	if err := b.decodeResult("orderbook "+id, resp, &result); err != nil {
		return Book{}, err
	}
	return Book{
		Bids:      parseLevels(result.Bids, depth),
		Asks:      parseLevels(result.Asks, depth),
		Timestamp: msTime(result.Ts),
	}, nil
}

func (b *Bybit) Close() error {
	b.http.CloseIdleConnections()
	return nil
}

var _ Client = (*Bybit)(nil)
