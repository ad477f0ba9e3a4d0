package arbitrage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func levels(pq ...float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pq)/2)
	for i := 0; i+1 < len(pq); i += 2 {
		out = append(out, domain.PriceLevel{Price: pq[i], Quantity: pq[i+1]})
	}
	return out
}

func TestVWAP(t *testing.T) {
	tests := []struct {
		name       string
		levels     []domain.PriceLevel
		qty        float64
		wantVWAP   float64
		wantFilled float64
	}{
		{"single level partial", levels(100, 3), 1, 100, 1},
		{"two levels", levels(100, 1, 110, 1), 2, 105, 2},
		{"crosses into second level", levels(100, 1, 110, 2), 1.5, (100 + 55) / 1.5, 1.5},
		{"depth exhausted", levels(100, 1, 110, 1), 5, 105, 2},
		{"zero quantity", levels(100, 1), 0, 0, 0},
		{"empty ladder", nil, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vwap, filled := VWAP(tt.levels, tt.qty)
			assert.InDelta(t, tt.wantVWAP, vwap, 1e-9)
			assert.InDelta(t, tt.wantFilled, filled, 1e-9)
		})
	}
}

func TestVWAP_FillBoundedAndMonotonic(t *testing.T) {
	ladder := levels(100, 0.5, 101, 1.25, 102, 2, 103, 0.75)
	prev := 0.0
	for q := 0.0; q <= 6; q += 0.25 {
		_, filled := VWAP(ladder, q)
		assert.LessOrEqual(t, filled, q+1e-12)
		assert.GreaterOrEqual(t, filled, prev-1e-12)
		prev = filled
	}
	assert.InDelta(t, TotalQty(ladder), prev, 1e-9)
}

func TestFillableQty(t *testing.T) {
	tests := []struct {
		name   string
		asks   []domain.PriceLevel
		budget float64
		want   float64
	}{
		{"budget inside first level", levels(100, 3), 100, 1},
		{"budget spans levels", levels(100, 1, 200, 5), 300, 2},
		{"depth exhausted", levels(100, 1), 1000, 1},
		{"skips non-positive levels", levels(0, 5, 100, 1), 50, 0.5},
		{"no budget", levels(100, 1), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, FillableQty(tt.asks, tt.budget), 1e-9)
		})
	}
}

func TestRiskFlagFor(t *testing.T) {
	assert.Equal(t, domain.RiskGreen, RiskFlagFor(0.75))
	assert.Equal(t, domain.RiskGreen, RiskFlagFor(3))
	assert.Equal(t, domain.RiskYellow, RiskFlagFor(0.30))
	assert.Equal(t, domain.RiskYellow, RiskFlagFor(0.5))
	assert.Equal(t, domain.RiskRed, RiskFlagFor(0.29))
	assert.Equal(t, domain.RiskRed, RiskFlagFor(-1))
}
