package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/metrics"
)

// defaultLatestTTL bounds how long a replayable payload survives in Redis.
const defaultLatestTTL = 10 * time.Minute

// Redis publishes payloads on a shared pub/sub channel and runs a reader
// goroutine that fans every received payload out to local subscribers,
// including payloads this process published itself.
type Redis struct {
	fanout

	bus       domain.SignalBus
	cache     domain.PayloadCache
	channel   string
	latestTTL time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// RedisOptions configures a Redis broker.
type RedisOptions struct {
	Channel string
	// Cache, when set, stores the last payload under "<channel>:latest" so a
	// newly started process can serve Latest before the next publish.
	Cache     domain.PayloadCache
	LatestTTL time.Duration
}

// NewRedis creates a broker on top of bus.
func NewRedis(bus domain.SignalBus, opts RedisOptions, logger *slog.Logger) *Redis {
	ttl := opts.LatestTTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	return &Redis{
		fanout:    newFanout(),
		bus:       bus,
		cache:     opts.Cache,
		channel:   opts.Channel,
		latestTTL: ttl,
		logger: logger.With(
			slog.String("component", "broker"),
			slog.String("channel", opts.Channel),
		),
	}
}

func (r *Redis) latestKey() string {
	return r.channel + ":latest"
}

// Start subscribes to the channel and launches the reader. Calling Start on a
// started broker is a no-op.
func (r *Redis) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	readerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	msgs, err := r.bus.Subscribe(readerCtx, r.channel)
	if err != nil {
		cancel()
		return fmt.Errorf("broker: subscribe %s: %w", r.channel, err)
	}

	r.restoreLatest(ctx)

	r.cancel = cancel
	r.done = make(chan struct{})
	r.started = true
	go r.readLoop(readerCtx, msgs, r.done)

	r.logger.InfoContext(ctx, "redis broker started")
	return nil
}

// Stop cancels the reader and waits for it to exit.
func (r *Redis) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("broker: stop: %w", ctx.Err())
	}
	r.logger.InfoContext(ctx, "redis broker stopped")
	return nil
}

// Publish serializes opps and sends them to the channel. Local subscribers
// receive the payload through the reader, not directly.
func (r *Redis) Publish(ctx context.Context, opps []domain.Opportunity) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return domain.ErrBrokerNotStarted
	}

	data, err := Encode(opps)
	if err != nil {
		return err
	}
	if err := r.bus.Publish(ctx, r.channel, data); err != nil {
		return fmt.Errorf("broker: publish: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.SetLatest(ctx, r.latestKey(), data, r.latestTTL); err != nil {
			r.logger.WarnContext(ctx, "store latest payload failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (r *Redis) readLoop(ctx context.Context, msgs <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			opps, err := Decode(data)
			if err != nil {
				metrics.MalformedPayloads.Inc()
				r.logger.Warn("dropping malformed payload",
					slog.Int("bytes", len(data)),
					slog.String("error", err.Error()),
				)
				continue
			}
			r.deliver(opps)
		}
	}
}

func (r *Redis) restoreLatest(ctx context.Context) {
	if r.cache == nil {
		return
	}
	data, err := r.cache.GetLatest(ctx, r.latestKey())
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "load latest payload failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	opps, err := Decode(data)
	if err != nil {
		r.logger.WarnContext(ctx, "cached latest payload is malformed",
			slog.String("error", err.Error()),
		)
		return
	}
	r.setLatest(opps)
}

// Compile-time interface check.
var _ domain.OpportunityBroker = (*Redis)(nil)
