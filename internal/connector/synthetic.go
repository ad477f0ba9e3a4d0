package connector

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/metrics"
)

const (
	syntheticDepth = 20
	syntheticStep  = 0.00025
	defaultMid     = 100.0
)

var baseMids = map[string]float64{
	"BTC-USDT": 65000,
	"ETH-USDT": 3500,
	"SOL-USDT": 165,
}

// SyntheticBias is the fixed relative price offset of the exchange at idx
// among n synthetic exchanges.
func SyntheticBias(idx, n int, step float64) float64 {
	return (float64(idx) - float64(n)/2) * step
}

// SyntheticSeed is the PRNG seed of the exchange at idx.
func SyntheticSeed(idx int) uint64 {
	return uint64(1000 + idx)
}

// Synthetic generates reproducible random-walk books. Each exchange carries
// a constant bias so that stable cross-exchange spreads appear.
type Synthetic struct {
	exchange string
	bias     float64
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	symbols []string
	mids    map[string]float64
	seq     int64
	last    time.Time
}

// NewSynthetic creates a synthetic connector for exchange with the given
// bias and seed.
func NewSynthetic(exchange string, symbols []string, interval time.Duration, bias float64, seed uint64, logger *slog.Logger) *Synthetic {
	s := &Synthetic{
		exchange: exchange,
		bias:     bias,
		interval: interval,
		logger: logger.With(
			slog.String("component", "connector"),
			slog.String("exchange", exchange),
			slog.String("mode", ModeSynthetic),
		),
		rng:  rand.New(rand.NewPCG(seed, 0)),
		mids: make(map[string]float64),
	}
	s.SetSymbols(symbols)
	return s
}

func (s *Synthetic) Exchange() string { return s.exchange }

// Bias returns the exchange's relative price offset.
func (s *Synthetic) Bias() float64 { return s.bias }

func (s *Synthetic) SetSymbols(symbols []string) {
	symbols = normalizeSymbols(symbols)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = symbols
	for _, sym := range symbols {
		if _, ok := s.mids[sym]; ok {
			continue
		}
		base, ok := baseMids[sym]
		if !ok {
			base = defaultMid
		}
		s.mids[sym] = base * (1 + s.bias)
	}
}

func (s *Synthetic) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Exchange:         s.exchange,
		Mode:             ModeSynthetic,
		Initialized:      true,
		RequestedSymbols: len(s.symbols),
		MappedSymbols:    len(s.symbols),
		LastUpdate:       s.last,
	}
}

// Run writes one snapshot per symbol every interval until ctx is cancelled.
func (s *Synthetic) Run(ctx context.Context, sink Sink) error {
	s.logger.InfoContext(ctx, "synthetic connector started", slog.Float64("bias", s.bias))
	for {
		s.Tick(sink, time.Now().UTC())
		if !sleepCtx(ctx, s.interval) {
			s.logger.Info("synthetic connector stopped")
			return nil
		}
	}
}

// Tick advances every symbol one step and upserts the resulting books.
func (s *Synthetic) Tick(sink Sink, now time.Time) {
	for _, snap := range s.next(now) {
		sink.Upsert(snap)
	}
}

func (s *Synthetic) next(now time.Time) []domain.OrderBookSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.OrderBookSnapshot, 0, len(s.symbols))
	for _, sym := range s.symbols {
		out = append(out, s.nextBook(sym, now))
	}
	if len(out) > 0 {
		s.last = now
		metrics.SnapshotsIngested.WithLabelValues(s.exchange).Add(float64(len(out)))
	}
	return out
}

// nextBook must be called with s.mu held.
func (s *Synthetic) nextBook(symbol string, now time.Time) domain.OrderBookSnapshot {
	s.seq++
	drift := uniform(s.rng, -0.0006, 0.0006)
	mid := math.Max(0.1, s.mids[symbol]*(1+drift))
	s.mids[symbol] = mid

	topSpread := 0.0004 + s.rng.Float64()*0.0008
	bids := make([]domain.PriceLevel, 0, syntheticDepth)
	asks := make([]domain.PriceLevel, 0, syntheticDepth)
	for level := 0; level < syntheticDepth; level++ {
		off := topSpread + float64(level)*syntheticStep
		qty := round6(uniform(s.rng, 0.4, 2.5))
		bids = append(bids, domain.PriceLevel{Price: round6(mid * (1 - off)), Quantity: qty})
		asks = append(asks, domain.PriceLevel{Price: round6(mid * (1 + off)), Quantity: qty})
	}

	return domain.OrderBookSnapshot{
		Exchange:   s.exchange,
		Symbol:     symbol,
		Bids:       bids,
		Asks:       asks,
		EventTime:  now,
		IngestTime: now,
		Healthy:    true,
		Metadata: map[string]any{
			"seq_id": s.seq,
			"source": ModeSynthetic,
		},
	}
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

var _ Connector = (*Synthetic)(nil)
