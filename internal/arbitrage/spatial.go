package arbitrage

import (
	"sort"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Spatial detects buy-here-sell-there opportunities between every ordered
// pair of exchanges quoting the same symbol.
type Spatial struct{}

// Name returns the detector identifier.
func (Spatial) Name() string { return string(domain.OpportunitySpatial) }

// Detect evaluates all ordered exchange pairs whose books are healthy and
// fresh at p.Now and returns the surviving opportunities ranked by net edge.
func (Spatial) Detect(books map[string]domain.OrderBookSnapshot, p Params) []domain.Opportunity {
	exchanges := make([]string, 0, len(books))
	for ex, b := range books {
		if !b.Healthy || b.Stale(p.Now, p.StaleAfter) {
			continue
		}
		exchanges = append(exchanges, ex)
	}
	if len(exchanges) < 2 {
		return nil
	}
	sort.Strings(exchanges)

	var out []domain.Opportunity
	for _, buy := range exchanges {
		for _, sell := range exchanges {
			if buy == sell {
				continue
			}
			if opp, ok := evaluatePair(books[buy], books[sell], p); ok {
				out = append(out, opp)
			}
		}
	}
	Rank(out)
	return out
}

// evaluatePair prices buying on buy's asks and selling into sell's bids.
func evaluatePair(buy, sell domain.OrderBookSnapshot, p Params) (domain.Opportunity, bool) {
	qty := FillableQty(buy.Asks, p.TradeNotional)
	if depth := TotalQty(sell.Bids); depth < qty {
		qty = depth
	}
	if qty <= 0 {
		return domain.Opportunity{}, false
	}

	_, buyFilled := VWAP(buy.Asks, qty)
	_, sellFilled := VWAP(sell.Bids, qty)
	qty = min(buyFilled, sellFilled)
	if qty <= 0 {
		return domain.Opportunity{}, false
	}
	buyVWAP, _ := VWAP(buy.Asks, qty)
	sellVWAP, _ := VWAP(sell.Bids, qty)
	if buyVWAP <= 0 || sellVWAP <= 0 {
		return domain.Opportunity{}, false
	}

	buyNotional := buyVWAP * qty
	sellNotional := sellVWAP * qty
	grossProfit := sellNotional - buyNotional
	grossEdgePct := grossProfit / buyNotional * 100
	if grossEdgePct < p.MinSpreadDiffPct {
		return domain.Opportunity{}, false
	}

	feeRate := p.TakerFeeBps / 10_000
	slippageRate := p.SlippageBps / 10_000
	netProfit := grossProfit -
		feeRate*(buyNotional+sellNotional) -
		slippageRate*buyNotional -
		p.WithdrawCostUSDT
	netEdgePct := netProfit / buyNotional * 100
	if netEdgePct < p.MinNetEdgePct {
		return domain.Opportunity{}, false
	}

	symbol := buy.Symbol
	return domain.Opportunity{
		ID:                 domain.Fingerprint(domain.OpportunitySpatial, symbol, buy.Exchange, sell.Exchange),
		Type:               domain.OpportunitySpatial,
		Symbol:             symbol,
		BuyExchange:        buy.Exchange,
		SellExchange:       sell.Exchange,
		BuyVWAP:            buyVWAP,
		SellVWAP:           sellVWAP,
		GrossEdgePct:       grossEdgePct,
		NetEdgePct:         netEdgePct,
		ExpectedProfitUSDT: netProfit,
		AvailableQty:       qty,
		RiskFlag:           RiskFlagFor(netEdgePct),
		DetectedAt:         p.Now,
	}, true
}
