package arbitrage

import "github.com/alanyoungcy/arbscanner/internal/domain"

// Triangular is the extension point for single-venue cycle detection. It
// currently reports nothing.
type Triangular struct{}

// Name returns the detector identifier.
func (Triangular) Name() string { return string(domain.OpportunityTriangular) }

// Detect returns no opportunities.
func (Triangular) Detect(map[string]domain.OrderBookSnapshot, Params) []domain.Opportunity {
	return nil
}
