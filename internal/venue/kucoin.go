package venue

import (
	"context"
	"fmt"
	"net/url"
)

const kucoinOK = "200000"

// KuCoin reads spot markets and books from the KuCoin public API.
type KuCoin struct {
	rest  *restClient
	index marketIndex
}

// NewKuCoin returns a KuCoin adapter.
func NewKuCoin(opts Options) *KuCoin {
	return &KuCoin{rest: newRESTClient("kucoin", "https://api.kucoin.com", opts)}
}

func (k *KuCoin) Name() string { return "kucoin" }

type kucoinSymbols struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Symbol        string `json:"symbol"`
		BaseCurrency  string `json:"baseCurrency"`
		QuoteCurrency string `json:"quoteCurrency"`
		EnableTrading bool   `json:"enableTrading"`
	} `json:"data"`
}

type kucoinBook struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Time int64      `json:"time"`
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"data"`
}

func (k *KuCoin) LoadMarkets(ctx context.Context) ([]string, error) {
	var resp kucoinSymbols
	if err := k.rest.getJSON(ctx, "/api/v1/symbols", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != kucoinOK {
		return nil, fmt.Errorf("venue: kucoin: symbols: code %s: %s", resp.Code, resp.Msg)
	}

	m := make(map[string]string, len(resp.Data))
	for _, s := range resp.Data {
		if !s.EnableTrading || s.BaseCurrency == "" || s.QuoteCurrency == "" {
			continue
		}
		m[Unified(s.BaseCurrency, s.QuoteCurrency)] = s.Symbol
	}
	return k.index.replace(m), nil
}

func (k *KuCoin) FetchOrderBook(ctx context.Context, market string, depth int) (Book, error) {
	id, err := k.index.lookup(k.Name(), market)
	if err != nil {
		return Book{}, err
	}

	path := "/api/v1/market/orderbook/level2_100"
	if depth > 0 && depth <= 20 {
		path = "/api/v1/market/orderbook/level2_20"
	}

	var resp kucoinBook
	if err := k.rest.getJSON(ctx, path, url.Values{"symbol": {id}}, &resp); err != nil {
		return Book{}, err
	}
	if resp.Code != kucoinOK {
		return Book{}, fmt.Errorf("venue: kucoin: orderbook %s: code %s: %s", id, resp.Code, resp.Msg)
	}
	return Book{
		Bids:      parseLevels(resp.Data.Bids, depth),
		Asks:      parseLevels(resp.Data.Asks, depth),
		Timestamp: msTime(resp.Data.Time),
	}, nil
}

func (k *KuCoin) Close() error { return k.rest.close() }

var _ Client = (*KuCoin)(nil)
