package arbitrage

import (
	"sort"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Risk thresholds on net edge, in percent.
const (
	greenNetEdgePct  = 0.75
	yellowNetEdgePct = 0.30
)

// RiskFlagFor maps a net edge percentage to a traffic-light flag.
func RiskFlagFor(netEdgePct float64) domain.RiskFlag {
	switch {
	case netEdgePct >= greenNetEdgePct:
		return domain.RiskGreen
	case netEdgePct >= yellowNetEdgePct:
		return domain.RiskYellow
	default:
		return domain.RiskRed
	}
}

// Rank sorts opps in place by net edge descending. Equal edges are ordered by
// id so the output is fully determined by the input set.
func Rank(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].NetEdgePct != opps[j].NetEdgePct {
			return opps[i].NetEdgePct > opps[j].NetEdgePct
		}
		return opps[i].ID < opps[j].ID
	})
}

// Top ranks opps and keeps at most n entries.
func Top(opps []domain.Opportunity, n int) []domain.Opportunity {
	Rank(opps)
	if n >= 0 && len(opps) > n {
		opps = opps[:n]
	}
	return opps
}
