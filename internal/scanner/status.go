package scanner

import (
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/connector"
)

// Status is the runtime status document served by the API.
type Status struct {
	Started         bool             `json:"started"`
	State           State            `json:"state"`
	InstanceID      string           `json:"instance_id"`
	ConnectorMode   string           `json:"connector_mode"`
	ScanIntervalSec int              `json:"scan_interval_sec"`
	StaleAfterSec   float64          `json:"stale_after_sec"`
	ActiveExchanges []string         `json:"active_exchanges"`
	ActiveSymbols   []string         `json:"active_symbols"`
	Counters        Counters         `json:"counters"`
	Exchanges       []ExchangeStatus `json:"exchanges"`
}

// Counters aggregates the per-exchange rows and the scan loop statistics.
type Counters struct {
	ConnectorsTotal       int      `json:"connectors_total"`
	ConnectorsUnavailable int      `json:"connectors_unavailable"`
	SymbolsActiveCount    int      `json:"symbols_active_count"`
	BooksTotal            int      `json:"books_total"`
	BooksFresh            int      `json:"books_fresh"`
	BooksStale            int      `json:"books_stale"`
	OpportunitiesLastScan int      `json:"opportunities_last_scan"`
	ScanIterations        int64    `json:"scan_iterations"`
	CyclesSkipped         int64    `json:"cycles_skipped"`
	LastScanElapsedMs     float64  `json:"last_scan_elapsed_ms"`
	LastScanAgeMs         *float64 `json:"last_scan_age_ms"`
}

// ExchangeStatus is one row per configured or observed exchange.
type ExchangeStatus struct {
	Exchange    string            `json:"exchange"`
	BooksTotal  int               `json:"books_total"`
	BooksFresh  int               `json:"books_fresh"`
	BooksStale  int               `json:"books_stale"`
	NewestAgeMs *float64          `json:"newest_age_ms"`
	Connector   *connector.Status `json:"connector,omitempty"`
}

// Status returns a consistent view of books, connectors and scan counters.
func (r *Runtime) Status() Status {
	now := r.opts.Now()
	prefs := r.prefs.Snapshot()
	books := r.store.Snapshot()

	rows := make(map[string]*ExchangeStatus)
	row := func(ex string) *ExchangeStatus {
		if e, ok := rows[ex]; ok {
			return e
		}
		e := &ExchangeStatus{Exchange: ex}
		rows[ex] = e
		return e
	}
	for _, ex := range r.prefs.Available().Exchanges {
		row(ex)
	}

	for _, byExchange := range books {
		for ex, snap := range byExchange {
			e := row(ex)
			e.BooksTotal++
			if snap.Stale(now, r.opts.StaleAfter) {
				e.BooksStale++
			} else {
				e.BooksFresh++
			}
			age := math.Max(0, float64(snap.Age(now))/float64(time.Millisecond))
			age = math.Round(age*10) / 10
			if e.NewestAgeMs == nil || age < *e.NewestAgeMs {
				e.NewestAgeMs = &age
			}
		}
	}
	unavailable := 0
	for _, c := range r.connectors {
		cs := c.Status()
		if cs.Mode == connector.ModeUnavailable {
			unavailable++
		}
		row(c.Exchange()).Connector = &cs
	}

	names := make([]string, 0, len(rows))
	for ex := range rows {
		names = append(names, ex)
	}
	sort.Strings(names)

	st := Status{
		Started:         r.State() == StateRunning,
		State:           r.State(),
		InstanceID:      r.ID(),
		ConnectorMode:   r.opts.ConnectorMode,
		ScanIntervalSec: int(prefs.ScanInterval / time.Second),
		StaleAfterSec:   r.opts.StaleAfter.Seconds(),
		ActiveExchanges: sortedKeys(prefs.ActiveExchanges),
		ActiveSymbols:   sortedKeys(prefs.ActiveSymbols),
		Exchanges:       make([]ExchangeStatus, 0, len(names)),
	}
	for _, ex := range names {
		e := rows[ex]
		st.Exchanges = append(st.Exchanges, *e)
		st.Counters.BooksTotal += e.BooksTotal
		st.Counters.BooksFresh += e.BooksFresh
		st.Counters.BooksStale += e.BooksStale
	}

	r.statsMu.Lock()
	st.Counters.ConnectorsTotal = len(r.connectors)
	st.Counters.ConnectorsUnavailable = unavailable
	st.Counters.SymbolsActiveCount = len(prefs.ActiveSymbols)
	st.Counters.OpportunitiesLastScan = r.lastCount
	st.Counters.ScanIterations = r.iterations
	st.Counters.CyclesSkipped = r.skipped
	st.Counters.LastScanElapsedMs = math.Round(float64(r.lastElapsed)/float64(time.Millisecond)*100) / 100
	if !r.lastFinished.IsZero() {
		age := math.Max(0, float64(now.Sub(r.lastFinished))/float64(time.Millisecond))
		age = math.Round(age*10) / 10
		st.Counters.LastScanAgeMs = &age
	}
	r.statsMu.Unlock()
	return st
}
