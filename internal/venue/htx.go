package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// HTX reads spot markets and books from the HTX (formerly Huobi) API.
type HTX struct {
	rest  *restClient
	index marketIndex
}

// NewHTX returns an HTX adapter.
func NewHTX(opts Options) *HTX {
	return &HTX{rest: newRESTClient("htx", "https://api.huobi.pro", opts)}
}

func (h *HTX) Name() string { return "htx" }

type htxSymbols struct {
	Status string `json:"status"`
	ErrMsg string `json:"err-msg"`
	Data   []struct {
		Symbol string `json:"symbol"`
		Base   string `json:"base-currency"`
		Quote  string `json:"quote-currency"`
		State  string `json:"state"`
	} `json:"data"`
}

type htxDepth struct {
	Status string `json:"status"`
	ErrMsg string `json:"err-msg"`
	Ts     int64  `json:"ts"`
	Tick   struct {
		Bids [][]float64 `json:"bids"`
		Asks [][]float64 `json:"asks"`
	} `json:"tick"`
}

func (h *HTX) LoadMarkets(ctx context.Context) ([]string, error) {
	var resp htxSymbols
	if err := h.rest.getJSON(ctx, "/v1/common/symbols", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("venue: htx: symbols: %s", resp.ErrMsg)
	}

	m := make(map[string]string, len(resp.Data))
	for _, s := range resp.Data {
		if s.State != "online" || s.Base == "" || s.Quote == "" {
			continue
		}
		m[Unified(s.Base, s.Quote)] = s.Symbol
	}
	return h.index.replace(m), nil
}

func (h *HTX) FetchOrderBook(ctx context.Context, market string, depth int) (Book, error) {
	id, err := h.index.lookup(h.Name(), market)
	if err != nil {
		return Book{}, err
	}

	q := url.Values{"symbol": {id}, "type": {"step0"}}
	if depth > 0 && depth <= 20 {
		q.Set("depth", strconv.Itoa(clampLimit(depth, []int{5, 10, 20})))
	}

	var resp htxDepth
	if err := h.rest.getJSON(ctx, "/market/depth", q, &resp); err != nil {
		return Book{}, err
	}
	if resp.Status != "ok" {
		return Book{}, fmt.Errorf("venue: htx: depth %s: %s", id, resp.ErrMsg)
	}
	return Book{
		Bids:      floatLevels(resp.Tick.Bids, depth),
		Asks:      floatLevels(resp.Tick.Asks, depth),
		Timestamp: msTime(resp.Ts),
	}, nil
}

func (h *HTX) Close() error { return h.rest.close() }

func floatLevels(rows [][]float64, depth int) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if depth > 0 && len(out) == depth {
			break
		}
		if len(row) < 2 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: row[0], Quantity: row[1]})
	}
	return out
}

var _ Client = (*HTX)(nil)
