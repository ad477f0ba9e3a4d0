package arbitrage

import "github.com/alanyoungcy/arbscanner/internal/domain"

// VWAP walks levels in order, consuming up to qty, and returns the
// volume-weighted average price together with the quantity actually filled.
// It returns 0, 0 when nothing fills.
func VWAP(levels []domain.PriceLevel, qty float64) (vwap, filled float64) {
	if qty <= 0 {
		return 0, 0
	}
	remaining := qty
	var notional float64
	for _, l := range levels {
		if remaining <= 0 {
			break
		}
		take := min(l.Quantity, remaining)
		if take <= 0 {
			continue
		}
		notional += take * l.Price
		filled += take
		remaining -= take
	}
	if filled <= 0 {
		return 0, 0
	}
	return notional / filled, filled
}

// FillableQty returns the base quantity purchasable on an ascending ask
// ladder within a quote-currency budget. The final level is partially taken
// when the budget runs out inside it.
func FillableQty(asks []domain.PriceLevel, budget float64) float64 {
	var qty float64
	for _, l := range asks {
		if budget <= 0 {
			break
		}
		if l.Price <= 0 || l.Quantity <= 0 {
			continue
		}
		cost := l.Price * l.Quantity
		if cost <= budget {
			qty += l.Quantity
			budget -= cost
			continue
		}
		qty += budget / l.Price
		budget = 0
	}
	return qty
}

// TotalQty sums the quantity of all levels.
func TotalQty(levels []domain.PriceLevel) float64 {
	var total float64
	for _, l := range levels {
		total += l.Quantity
	}
	return total
}
