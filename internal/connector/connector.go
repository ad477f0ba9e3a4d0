// Package connector runs one long-lived ingestion task per exchange and
// writes order-book snapshots into a Sink.
package connector

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Connector modes.
const (
	ModeSynthetic = "synthetic"
	ModeLive      = "live"
)

// ModeUnavailable is reported by a connector whose exchange has no adapter.
const ModeUnavailable = "unavailable"

// Sink receives snapshots. marketdata.Store satisfies it.
type Sink interface {
	Upsert(snap domain.OrderBookSnapshot)
}

// Connector ingests books for one exchange.
type Connector interface {
	Exchange() string
	// Run ingests until ctx is cancelled. Failures are logged and retried
	// inside Run; it returns nil on cancellation.
	Run(ctx context.Context, sink Sink) error
	// SetSymbols replaces the working set; it takes effect on the next poll.
	SetSymbols(symbols []string)
	Status() Status
}

// Status is a point-in-time view of a connector for the status endpoint.
type Status struct {
	Exchange         string    `json:"exchange"`
	Mode             string    `json:"mode"`
	Initialized      bool      `json:"initialized"`
	RequestedSymbols int       `json:"requested_symbols"`
	MappedSymbols    int       `json:"mapped_symbols"`
	Failures         int64     `json:"failures"`
	LastError        string    `json:"last_error,omitempty"`
	LastUpdate       time.Time `json:"last_update,omitempty"`
}

// normalizeSymbols uppercases, trims and de-duplicates symbols, preserving
// first-seen order.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sortedKey(symbols []string) string {
	cp := append([]string(nil), symbols...)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
