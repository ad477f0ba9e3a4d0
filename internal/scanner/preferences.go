package scanner

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// AllowedScanIntervals lists the scan intervals, in seconds, an operator may
// select at runtime.
var AllowedScanIntervals = []int{5, 10, 15, 30, 60, 300, 600}

// Settings is the flat, JSON-facing view of the runtime preferences.
type Settings struct {
	ScanIntervalSec         int      `json:"scan_interval_sec"`
	AllowedScanIntervalsSec []int    `json:"allowed_scan_intervals_sec"`
	TradeNotionalUSDT       float64  `json:"trade_notional_usdt"`
	MinSpreadDiffPct        float64  `json:"min_spread_diff_pct"`
	ActiveExchanges         []string `json:"active_exchanges"`
	ActiveSymbols           []string `json:"active_symbols"`
	AvailableExchanges      []string `json:"available_exchanges"`
	AvailableSymbols        []string `json:"available_symbols"`
}

// SettingsUpdate is a partial update. Nil fields are left unchanged.
type SettingsUpdate struct {
	ActiveExchanges   *[]string `json:"active_exchanges,omitempty"`
	ActiveSymbols     *[]string `json:"active_symbols,omitempty"`
	ScanIntervalSec   *int      `json:"scan_interval_sec,omitempty"`
	TradeNotionalUSDT *float64  `json:"trade_notional_usdt,omitempty"`
	MinSpreadDiffPct  *float64  `json:"min_spread_diff_pct,omitempty"`
}

// Snapshot is a private copy of the preferences for one scan cycle or one
// API response.
type Snapshot struct {
	ActiveExchanges   map[string]struct{}
	ActiveSymbols     map[string]struct{}
	ScanInterval      time.Duration
	TradeNotionalUSDT float64
	MinSpreadDiffPct  float64
}

// Allows reports whether o's symbol and both exchanges are active.
func (s Snapshot) Allows(o domain.Opportunity) bool {
	if _, ok := s.ActiveSymbols[o.Symbol]; !ok {
		return false
	}
	if _, ok := s.ActiveExchanges[o.BuyExchange]; !ok {
		return false
	}
	_, ok := s.ActiveExchanges[o.SellExchange]
	return ok
}

// Filter returns the opportunities allowed by s, preserving order. The
// result is never nil.
func (s Snapshot) Filter(opps []domain.Opportunity) []domain.Opportunity {
	out := make([]domain.Opportunity, 0, len(opps))
	for _, o := range opps {
		if s.Allows(o) {
			out = append(out, o)
		}
	}
	return out
}

// Universe is the configured set of exchanges and symbols the active sets
// are drawn from.
type Universe struct {
	Exchanges []string
	Symbols   []string
}

// Preferences holds the operator-adjustable settings behind one mutex.
// Readers always receive copies.
type Preferences struct {
	mu sync.Mutex

	availableExchanges []string
	availableSymbols   []string

	activeExchanges map[string]struct{}
	activeSymbols   map[string]struct{}
	scanIntervalSec int
	tradeNotional   float64
	minSpreadDiff   float64
	updatedAt       time.Time
}

// NewPreferences builds preferences over u, seeded from initial. Entries of
// the initial active sets outside the universe are dropped.
func NewPreferences(u Universe, initial domain.RuntimePreferences) *Preferences {
	p := &Preferences{
		availableExchanges: normalizeSet(u.Exchanges, strings.ToLower),
		availableSymbols:   normalizeSet(u.Symbols, strings.ToUpper),
		scanIntervalSec:    initial.ScanIntervalSec,
		tradeNotional:      initial.TradeNotionalUSDT,
		minSpreadDiff:      initial.MinSpreadDiffPct,
		updatedAt:          initial.UpdatedAt,
	}
	p.activeExchanges = p.pick(initial.ActiveExchanges, p.availableExchanges, strings.ToLower)
	p.activeSymbols = p.pick(initial.ActiveSymbols, p.availableSymbols, strings.ToUpper)
	return p
}

// Settings returns the current settings view.
func (p *Preferences) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settingsLocked()
}

// Snapshot returns a copy of the current preferences.
func (p *Preferences) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		ActiveExchanges:   copySet(p.activeExchanges),
		ActiveSymbols:     copySet(p.activeSymbols),
		ScanInterval:      time.Duration(p.scanIntervalSec) * time.Second,
		TradeNotionalUSDT: p.tradeNotional,
		MinSpreadDiffPct:  p.minSpreadDiff,
	}
}

// ActiveSymbols returns the sorted active symbols.
func (p *Preferences) ActiveSymbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedKeys(p.activeSymbols)
}

// Update merges u and returns the resulting settings. symbolsChanged is true
// when u carried active_symbols. Values outside their valid range leave the
// field unchanged; set members outside the universe are dropped.
func (p *Preferences) Update(u SettingsUpdate) (s Settings, symbolsChanged bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	if u.ActiveExchanges != nil {
		p.activeExchanges = p.pick(*u.ActiveExchanges, p.availableExchanges, strings.ToLower)
		changed = true
	}
	if u.ActiveSymbols != nil {
		p.activeSymbols = p.pick(*u.ActiveSymbols, p.availableSymbols, strings.ToUpper)
		symbolsChanged = true
		changed = true
	}
	if u.ScanIntervalSec != nil && slices.Contains(AllowedScanIntervals, *u.ScanIntervalSec) {
		p.scanIntervalSec = *u.ScanIntervalSec
		changed = true
	}
	if u.TradeNotionalUSDT != nil && *u.TradeNotionalUSDT > 0 {
		p.tradeNotional = *u.TradeNotionalUSDT
		changed = true
	}
	if u.MinSpreadDiffPct != nil && *u.MinSpreadDiffPct >= 0 {
		p.minSpreadDiff = *u.MinSpreadDiffPct
		changed = true
	}
	if changed {
		p.updatedAt = time.Now().UTC()
	}
	return p.settingsLocked(), symbolsChanged
}

// UpdateSettings applies u. It lets a bare Preferences serve the settings
// API when no scanner runs in the process.
func (p *Preferences) UpdateSettings(_ context.Context, u SettingsUpdate) Settings {
	s, _ := p.Update(u)
	return s
}

// Restore overlays persisted preferences through the same validation as
// Update.
func (p *Preferences) Restore(saved domain.RuntimePreferences) {
	exchanges := saved.ActiveExchanges
	symbols := saved.ActiveSymbols
	u := SettingsUpdate{
		ActiveExchanges:   &exchanges,
		ActiveSymbols:     &symbols,
		ScanIntervalSec:   &saved.ScanIntervalSec,
		TradeNotionalUSDT: &saved.TradeNotionalUSDT,
		MinSpreadDiffPct:  &saved.MinSpreadDiffPct,
	}
	p.Update(u)

	p.mu.Lock()
	if !saved.UpdatedAt.IsZero() {
		p.updatedAt = saved.UpdatedAt
	}
	p.mu.Unlock()
}

// Persisted returns the preferences in storable form.
func (p *Preferences) Persisted() domain.RuntimePreferences {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.RuntimePreferences{
		ActiveExchanges:   sortedKeys(p.activeExchanges),
		ActiveSymbols:     sortedKeys(p.activeSymbols),
		ScanIntervalSec:   p.scanIntervalSec,
		TradeNotionalUSDT: p.tradeNotional,
		MinSpreadDiffPct:  p.minSpreadDiff,
		UpdatedAt:         p.updatedAt,
	}
}

// Available returns the configured universes.
func (p *Preferences) Available() Universe {
	return Universe{
		Exchanges: append([]string(nil), p.availableExchanges...),
		Symbols:   append([]string(nil), p.availableSymbols...),
	}
}

func (p *Preferences) settingsLocked() Settings {
	return Settings{
		ScanIntervalSec:         p.scanIntervalSec,
		AllowedScanIntervalsSec: append([]int(nil), AllowedScanIntervals...),
		TradeNotionalUSDT:       p.tradeNotional,
		MinSpreadDiffPct:        p.minSpreadDiff,
		ActiveExchanges:         sortedKeys(p.activeExchanges),
		ActiveSymbols:           sortedKeys(p.activeSymbols),
		AvailableExchanges:      append([]string(nil), p.availableExchanges...),
		AvailableSymbols:        append([]string(nil), p.availableSymbols...),
	}
}

// pick normalizes requested and keeps the members present in available.
func (p *Preferences) pick(requested, available []string, norm func(string) string) map[string]struct{} {
	out := make(map[string]struct{}, len(requested))
	for _, r := range requested {
		v := norm(strings.TrimSpace(r))
		if _, ok := slices.BinarySearch(available, v); ok {
			out[v] = struct{}{}
		}
	}
	return out
}

// normalizeSet returns the sorted, de-duplicated, normalized values.
func normalizeSet(values []string, norm func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = norm(strings.TrimSpace(v))
		if v != "" {
			seen[v] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copySet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
