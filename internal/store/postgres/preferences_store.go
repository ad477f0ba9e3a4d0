package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// querier is the subset of *pgxpool.Pool the stores use.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PreferencesStore implements domain.PreferencesStore on the single-row
// runtime_preferences table.
type PreferencesStore struct {
	db querier
}

// NewPreferencesStore creates a PreferencesStore backed by db, typically a
// *pgxpool.Pool.
func NewPreferencesStore(db querier) *PreferencesStore {
	return &PreferencesStore{db: db}
}

// Load returns the saved preferences, or domain.ErrNotFound when nothing has
// been saved yet.
func (s *PreferencesStore) Load(ctx context.Context) (domain.RuntimePreferences, error) {
	const query = `
		SELECT active_exchanges, active_symbols, scan_interval_sec,
		       trade_notional_usdt, min_spread_diff_pct, updated_at
		FROM runtime_preferences WHERE id = 1`

	var p domain.RuntimePreferences
	err := s.db.QueryRow(ctx, query).Scan(
		&p.ActiveExchanges, &p.ActiveSymbols, &p.ScanIntervalSec,
		&p.TradeNotionalUSDT, &p.MinSpreadDiffPct, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RuntimePreferences{}, domain.ErrNotFound
		}
		return domain.RuntimePreferences{}, fmt.Errorf("postgres: load preferences: %w", err)
	}
	if p.ActiveExchanges == nil {
		p.ActiveExchanges = []string{}
	}
	if p.ActiveSymbols == nil {
		p.ActiveSymbols = []string{}
	}
	return p, nil
}

// Save upserts the single preferences row.
func (s *PreferencesStore) Save(ctx context.Context, p domain.RuntimePreferences) error {
	const query = `
		INSERT INTO runtime_preferences (id, active_exchanges, active_symbols,
			scan_interval_sec, trade_notional_usdt, min_spread_diff_pct, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, COALESCE($6, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			active_exchanges    = EXCLUDED.active_exchanges,
			active_symbols      = EXCLUDED.active_symbols,
			scan_interval_sec   = EXCLUDED.scan_interval_sec,
			trade_notional_usdt = EXCLUDED.trade_notional_usdt,
			min_spread_diff_pct = EXCLUDED.min_spread_diff_pct,
			updated_at          = EXCLUDED.updated_at`

	exchanges := p.ActiveExchanges
	if exchanges == nil {
		exchanges = []string{}
	}
	symbols := p.ActiveSymbols
	if symbols == nil {
		symbols = []string{}
	}
	var updatedAt any
	if !p.UpdatedAt.IsZero() {
		updatedAt = p.UpdatedAt
	}

	_, err := s.db.Exec(ctx, query, exchanges, symbols, p.ScanIntervalSec,
		p.TradeNotionalUSDT, p.MinSpreadDiffPct, updatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save preferences: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PreferencesStore = (*PreferencesStore)(nil)
