package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// OKX reads spot markets and books from the OKX v5 public API.
type OKX struct {
	rest  *restClient
	index marketIndex
}

// NewOKX returns an OKX adapter.
func NewOKX(opts Options) *OKX {
	return &OKX{rest: newRESTClient("okx", "https://www.okx.com", opts)}
}

func (o *OKX) Name() string { return "okx" }

type okxInstruments struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID   string `json:"instId"`
		BaseCcy  string `json:"baseCcy"`
		QuoteCcy string `json:"quoteCcy"`
		State    string `json:"state"`
	} `json:"data"`
}

type okxBooks struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
		Ts   string     `json:"ts"`
	} `json:"data"`
}

func (o *OKX) LoadMarkets(ctx context.Context) ([]string, error) {
	var resp okxInstruments
	q := url.Values{"instType": {"SPOT"}}
	if err := o.rest.getJSON(ctx, "/api/v5/public/instruments", q, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("venue: okx: instruments: code %s: %s", resp.Code, resp.Msg)
	}

	m := make(map[string]string, len(resp.Data))
	for _, inst := range resp.Data {
		if inst.State != "live" || inst.BaseCcy == "" || inst.QuoteCcy == "" {
			continue
		}
		m[Unified(inst.BaseCcy, inst.QuoteCcy)] = inst.InstID
	}
	return o.index.replace(m), nil
}

func (o *OKX) FetchOrderBook(ctx context.Context, market string, depth int) (Book, error) {
	id, err := o.index.lookup(o.Name(), market)
	if err != nil {
		return Book{}, err
	}

	var resp okxBooks
	q := url.Values{
		"instId": {id},
		"sz":     {strconv.Itoa(clampLimit(depth, []int{1, 5, 10, 20, 50, 100, 400}))},
	}
	if err := o.rest.getJSON(ctx, "/api/v5/market/books", q, &resp); err != nil {
		return Book{}, err
	}
	if resp.Code != "0" {
		return Book{}, fmt.Errorf("venue: okx: books %s: code %s: %s", id, resp.Code, resp.Msg)
	}
	if len(resp.Data) == 0 {
		return Book{}, fmt.Errorf("venue: okx: books %s: empty data", id)
	}

	d := resp.Data[0]
	ts, _ := strconv.ParseInt(d.Ts, 10, 64)
	return Book{
		Bids:      parseLevels(d.Bids, depth),
		Asks:      parseLevels(d.Asks, depth),
		Timestamp: msTime(ts),
	}, nil
}

func (o *OKX) Close() error { return o.rest.close() }

var _ Client = (*OKX)(nil)
