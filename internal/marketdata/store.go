// Package marketdata holds the latest order-book snapshot per exchange and
// symbol. Connectors write into it; the scanner reads point-in-time copies.
package marketdata

import (
	"sync"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Store is a concurrency-safe map of the latest snapshot keyed by symbol and
// then exchange. All access goes through one mutex.
type Store struct {
	mu    sync.Mutex
	books map[string]map[string]domain.OrderBookSnapshot
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{books: make(map[string]map[string]domain.OrderBookSnapshot)}
}

// Upsert replaces the entry for (snap.Exchange, snap.Symbol). Snapshots with
// an empty exchange or symbol are ignored.
func (s *Store) Upsert(snap domain.OrderBookSnapshot) {
	if snap.Exchange == "" || snap.Symbol == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bySymbol, ok := s.books[snap.Symbol]
	if !ok {
		bySymbol = make(map[string]domain.OrderBookSnapshot)
		s.books[snap.Symbol] = bySymbol
	}
	bySymbol[snap.Exchange] = snap
}

// Snapshot returns a copy of the current symbol -> exchange -> snapshot
// grouping. The maps are fresh; the level slices inside each snapshot are
// shared because snapshots are never mutated after Upsert.
func (s *Store) Snapshot() map[string]map[string]domain.OrderBookSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]domain.OrderBookSnapshot, len(s.books))
	for symbol, bySymbol := range s.books {
		cp := make(map[string]domain.OrderBookSnapshot, len(bySymbol))
		for exchange, snap := range bySymbol {
			cp[exchange] = snap
		}
		out[symbol] = cp
	}
	return out
}

// Get returns the snapshot for exchange and symbol.
func (s *Store) Get(exchange, symbol string) (domain.OrderBookSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.books[symbol][exchange]
	return snap, ok
}

// Len returns the number of stored snapshots.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, bySymbol := range s.books {
		n += len(bySymbol)
	}
	return n
}
