package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// route serves fixed bodies keyed by path, recording the last query per path.
type route struct {
	body    string
	status  int
	queries []string
}

func newVenueServer(t *testing.T, routes map[string]*route) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for path, rt := range routes {
			if strings.HasSuffix(r.URL.Path, path) {
				rt.queries = append(rt.queries, r.URL.RawQuery)
				if rt.status != 0 {
					w.WriteHeader(rt.status)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(rt.body))
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(base string) Options {
	return Options{Timeout: 2 * time.Second, BaseURL: base}
}

func TestNewAndCanonical(t *testing.T) {
	for _, name := range []string{"binance", "Bybit", "okx", "gate", "gateio", "kucoin", "htx", "HUOBI"} {
		c, err := New(name, Options{})
		require.NoError(t, err, name)
		assert.Equal(t, Canonical(name), c.Name())
		assert.NoError(t, c.Close())
	}

	_, err := New("mtgox", Options{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedExchange)

	assert.Equal(t, []string{"binance", "bybit", "gate", "htx", "kucoin", "okx"}, Supported())
}

func TestParseLevels(t *testing.T) {
	rows := [][]string{{"100.5", "2"}, {"bad", "1"}, {"99"}, {"99", "0"}, {"98", "3", "extra"}}
	got := parseLevels(rows, 0)
	assert.Equal(t, []domain.PriceLevel{
		{Price: 100.5, Quantity: 2},
		{Price: 99, Quantity: 0},
		{Price: 98, Quantity: 3},
	}, got)

	assert.Len(t, parseLevels(rows, 1), 1)
}

func TestClampLimit(t *testing.T) {
	allowed := []int{5, 10, 20}
	assert.Equal(t, 5, clampLimit(1, allowed))
	assert.Equal(t, 10, clampLimit(10, allowed))
	assert.Equal(t, 20, clampLimit(11, allowed))
	assert.Equal(t, 20, clampLimit(500, allowed))
}

func TestFetchBeforeLoadIsUnavailable(t *testing.T) {
	c := NewOKX(testOptions("http://127.0.0.1:1"))
	_, err := c.FetchOrderBook(context.Background(), "BTC/USDT", 20)
	assert.ErrorIs(t, err, domain.ErrSymbolUnavailable)
}

func TestOKX(t *testing.T) {
	books := &route{body: `{"code":"0","msg":"","data":[{"asks":[["65010.1","0.5","0","3"]],"bids":[["65000","1.25","0","2"],["64990","2","0","1"]],"ts":"1700000000000"}]}`}
	srv := newVenueServer(t, map[string]*route{
		"/api/v5/public/instruments": {body: `{"code":"0","data":[
			{"instId":"BTC-USDT","baseCcy":"BTC","quoteCcy":"USDT","state":"live"},
			{"instId":"OLD-USDT","baseCcy":"OLD","quoteCcy":"USDT","state":"suspend"}]}`},
		"/api/v5/market/books": books,
	})
	c := NewOKX(testOptions(srv.URL))
	ctx := context.Background()

	markets, err := c.LoadMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT"}, markets)

	book, err := c.FetchOrderBook(ctx, "BTC/USDT", 20)
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{{Price: 65000, Quantity: 1.25}, {Price: 64990, Quantity: 2}}, book.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 65010.1, Quantity: 0.5}}, book.Asks)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), book.Timestamp)
	require.Len(t, books.queries, 1)
	assert.Contains(t, books.queries[0], "instId=BTC-USDT")
	assert.Contains(t, books.queries[0], "sz=20")
}

func TestOKXErrorCode(t *testing.T) {
	srv := newVenueServer(t, map[string]*route{
		"/api/v5/public/instruments": {body: `{"code":"50011","msg":"too many requests","data":[]}`},
	})
	_, err := NewOKX(testOptions(srv.URL)).LoadMarkets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many requests")
}

func TestGate(t *testing.T) {
	srv := newVenueServer(t, map[string]*route{
		"/api/v4/spot/currency_pairs": {body: `[
			{"id":"ETH_USDT","base":"ETH","quote":"USDT","trade_status":"tradable"},
			{"id":"X_USDT","base":"X","quote":"USDT","trade_status":"untradable"}]`},
		"/api/v4/spot/order_book": {body: `{"current":1700000000123,"asks":[["3500.5","4"]],"bids":[["3500","3"]]}`},
	})
	c := NewGate(testOptions(srv.URL))
	ctx := context.Background()

	markets, err := c.LoadMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH/USDT"}, markets)

	book, err := c.FetchOrderBook(ctx, "ETH/USDT", 20)
	require.NoError(t, err)
	assert.Equal(t, 3500.0, book.Bids[0].Price)
	assert.Equal(t, 4.0, book.Asks[0].Quantity)
}

func TestKuCoin(t *testing.T) {
	level20 := &route{body: `{"code":"200000","data":{"time":1700000000000,"bids":[["165.1","10"]],"asks":[["165.2","8"]]}}`}
	level100 := &route{body: `{"code":"200000","data":{"time":1700000000000,"bids":[],"asks":[]}}`}
	srv := newVenueServer(t, map[string]*route{
		"/api/v1/symbols": {body: `{"code":"200000","data":[
			{"symbol":"SOL-USDT","baseCurrency":"SOL","quoteCurrency":"USDT","enableTrading":true},
			{"symbol":"OFF-USDT","baseCurrency":"OFF","quoteCurrency":"USDT","enableTrading":false}]}`},
		"/level2_20":  level20,
		"/level2_100": level100,
	})
	c := NewKuCoin(testOptions(srv.URL))
	ctx := context.Background()

	markets, err := c.LoadMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SOL/USDT"}, markets)

	book, err := c.FetchOrderBook(ctx, "SOL/USDT", 20)
	require.NoError(t, err)
	assert.Equal(t, 165.1, book.Bids[0].Price)
	assert.Len(t, level20.queries, 1)

	_, err = c.FetchOrderBook(ctx, "SOL/USDT", 50)
	require.NoError(t, err)
	assert.Len(t, level100.queries, 1)
}

func TestHTX(t *testing.T) {
	depth := &route{body: `{"status":"ok","ts":1700000000000,"tick":{"bids":[[100,1],[99,2]],"asks":[[101,1.5]]}}`}
	srv := newVenueServer(t, map[string]*route{
		"/v1/common/symbols": {body: `{"status":"ok","data":[
			{"symbol":"btcusdt","base-currency":"btc","quote-currency":"usdt","state":"online"},
			{"symbol":"offusdt","base-currency":"off","quote-currency":"usdt","state":"offline"}]}`},
		"/market/depth": depth,
	})
	c := NewHTX(testOptions(srv.URL))
	ctx := context.Background()

	markets, err := c.LoadMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT"}, markets)

	book, err := c.FetchOrderBook(ctx, "BTC/USDT", 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{{Price: 100, Quantity: 1}}, book.Bids)
	assert.Contains(t, depth.queries[0], "symbol=btcusdt")
	assert.Contains(t, depth.queries[0], "depth=5")
}

func TestRESTStatusError(t *testing.T) {
	srv := newVenueServer(t, map[string]*route{
		"/api/v4/spot/currency_pairs": {status: http.StatusTooManyRequests, body: `{"label":"TOO_MANY_REQUESTS"}`},
	})
	_, err := NewGate(testOptions(srv.URL)).LoadMarkets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestRESTRateLimiterHonoursContext(t *testing.T) {
	srv := newVenueServer(t, map[string]*route{
		"/api/v4/spot/currency_pairs": {body: `[]`},
	})
	opts := testOptions(srv.URL)
	opts.RPS = 0.001
	c := NewGate(opts)

	_, err := c.LoadMarkets(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.LoadMarkets(ctx)
	assert.Error(t, err)
}

func TestBinance(t *testing.T) {
	srv := newVenueServer(t, map[string]*route{
		"/api/v3/exchangeInfo": {body: `{"timezone":"UTC","serverTime":1700000000000,"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"},
			{"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT"}]}`},
		"/api/v3/depth": {body: `{"lastUpdateId":1,"bids":[["65000.00","0.5"]],"asks":[["65001.00","0.7"]]}`},
	})
	c := NewBinance(testOptions(srv.URL))
	ctx := context.Background()

	markets, err := c.LoadMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT"}, markets)

	book, err := c.FetchOrderBook(ctx, "BTC/USDT", 20)
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{{Price: 65000, Quantity: 0.5}}, book.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 65001, Quantity: 0.7}}, book.Asks)
}

func TestBybit(t *testing.T) {
	srv := newVenueServer(t, map[string]*route{
		"/v5/market/instruments-info": {body: `{"retCode":0,"retMsg":"OK","result":{"category":"spot","list":[
			{"symbol":"ETHUSDT","baseCoin":"ETH","quoteCoin":"USDT","status":"Trading"},
			{"symbol":"OLDUSDT","baseCoin":"OLD","quoteCoin":"USDT","status":"Closed"}]},"time":1700000000000}`},
		"/v5/market/orderbook": {body: `{"retCode":0,"retMsg":"OK","result":{"s":"ETHUSDT","b":[["3499.9","2.1"]],"a":[["3500.1","1.4"]],"ts":1700000000000,"u":1},"time":1700000000000}`},
	})
	c := NewBybit(testOptions(srv.URL))
	ctx := context.Background()

	markets, err := c.LoadMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH/USDT"}, markets)

	book, err := c.FetchOrderBook(ctx, "ETH/USDT", 20)
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{{Price: 3499.9, Quantity: 2.1}}, book.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 3500.1, Quantity: 1.4}}, book.Asks)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), book.Timestamp)
}
