// Package arbitrage detects cross-exchange opportunities from same-symbol
// order-book sets. Detectors are pure: every input, including the clock, is
// passed in and results are returned by value.
package arbitrage

import (
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Params carries the thresholds and costs applied during one scan cycle.
type Params struct {
	// TradeNotional is the quote-currency budget walked across the ask ladder.
	TradeNotional    float64
	MinSpreadDiffPct float64
	MinNetEdgePct    float64
	TakerFeeBps      float64
	SlippageBps      float64
	WithdrawCostUSDT float64
	// StaleAfter excludes books whose ingest time is older than Now-StaleAfter.
	StaleAfter time.Duration
	Now        time.Time
}

// Detector finds opportunities for one symbol. books maps exchange name to
// that exchange's snapshot of the symbol.
type Detector interface {
	Name() string
	Detect(books map[string]domain.OrderBookSnapshot, p Params) []domain.Opportunity
}
