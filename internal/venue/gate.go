package venue

import (
	"context"
	"net/url"
	"strconv"
)

// Gate reads spot markets and books from the Gate v4 API.
type Gate struct {
	rest  *restClient
	index marketIndex
}

// NewGate returns a Gate adapter.
func NewGate(opts Options) *Gate {
	return &Gate{rest: newRESTClient("gate", "https://api.gateio.ws", opts)}
}

func (g *Gate) Name() string { return "gate" }

type gatePair struct {
	ID          string `json:"id"`
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	TradeStatus string `json:"trade_status"`
}

type gateBook struct {
	Current int64      `json:"current"`
	Asks    [][]string `json:"asks"`
	Bids    [][]string `json:"bids"`
}

func (g *Gate) LoadMarkets(ctx context.Context) ([]string, error) {
	var pairs []gatePair
	if err := g.rest.getJSON(ctx, "/api/v4/spot/currency_pairs", nil, &pairs); err != nil {
		return nil, err
	}

	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if p.TradeStatus != "tradable" || p.Base == "" || p.Quote == "" {
			continue
		}
		m[Unified(p.Base, p.Quote)] = p.ID
	}
	return g.index.replace(m), nil
}

func (g *Gate) FetchOrderBook(ctx context.Context, market string, depth int) (Book, error) {
	id, err := g.index.lookup(g.Name(), market)
	if err != nil {
		return Book{}, err
	}

	var resp gateBook
	q := url.Values{
		"currency_pair": {id},
		"limit":         {strconv.Itoa(clampLimit(depth, []int{10, 20, 50, 100}))},
	}
	if err := g.rest.getJSON(ctx, "/api/v4/spot/order_book", q, &resp); err != nil {
		return Book{}, err
	}
	return Book{
		Bids:      parseLevels(resp.Bids, depth),
		Asks:      parseLevels(resp.Asks, depth),
		Timestamp: msTime(resp.Current),
	}, nil
}

func (g *Gate) Close() error { return g.rest.close() }

var _ Client = (*Gate)(nil)
