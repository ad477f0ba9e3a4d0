package domain

import (
	"context"
	"time"
)

// RuntimePreferences is the persisted form of the operator-adjustable scanner
// settings.
type RuntimePreferences struct {
	ActiveExchanges   []string
	ActiveSymbols     []string
	ScanIntervalSec   int
	TradeNotionalUSDT float64
	MinSpreadDiffPct  float64
	UpdatedAt         time.Time
}

// PreferencesStore persists runtime preferences across restarts.
type PreferencesStore interface {
	// Load returns ErrNotFound when nothing has been saved yet.
	Load(ctx context.Context) (RuntimePreferences, error)
	Save(ctx context.Context, prefs RuntimePreferences) error
}
