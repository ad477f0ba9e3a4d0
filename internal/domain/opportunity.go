package domain

import "time"

// OpportunityType distinguishes the detection family that produced an
// opportunity.
type OpportunityType string

const (
	OpportunitySpatial    OpportunityType = "spatial"
	OpportunityTriangular OpportunityType = "triangular"
)

// RiskFlag is a coarse traffic-light rating derived from net edge.
type RiskFlag string

const (
	RiskGreen  RiskFlag = "green"
	RiskYellow RiskFlag = "yellow"
	RiskRed    RiskFlag = "red"
)

// Opportunity is one executable cross-exchange signal. Opportunities are not
// persisted; each scan cycle produces a fresh list that replaces the last.
type Opportunity struct {
	ID                 string          `json:"id"`
	Type               OpportunityType `json:"opportunity_type"`
	Symbol             string          `json:"symbol"`
	BuyExchange        string          `json:"buy_exchange"`
	SellExchange       string          `json:"sell_exchange"`
	BuyVWAP            float64         `json:"buy_vwap"`
	SellVWAP           float64         `json:"sell_vwap"`
	GrossEdgePct       float64         `json:"gross_edge_pct"`
	NetEdgePct         float64         `json:"net_edge_pct"`
	ExpectedProfitUSDT float64         `json:"expected_profit_usdt"`
	AvailableQty       float64         `json:"available_qty"`
	RiskFlag           RiskFlag        `json:"risk_flag"`
	DetectedAt         time.Time       `json:"detected_at"`
}

// Fingerprint identifies an opportunity across scan cycles for debounce and
// de-duplication: type, symbol, buy exchange and sell exchange.
func Fingerprint(t OpportunityType, symbol, buy, sell string) string {
	return string(t) + ":" + symbol + ":" + buy + ":" + sell
}

// Fingerprint returns the identity of o.
func (o Opportunity) Fingerprint() string {
	return Fingerprint(o.Type, o.Symbol, o.BuyExchange, o.SellExchange)
}
