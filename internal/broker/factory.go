package broker

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Broker modes accepted in configuration.
const (
	ModeAuto     = "auto"
	ModeMemory   = "inmemory"
	ModeRedis    = "redis"
	DefaultTopic = "opportunities_feed"
)

// ResolveMode turns a configured mode into a concrete backend name. "auto"
// selects Redis when an address is configured.
func ResolveMode(mode, redisAddr string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeRedis:
		return ModeRedis
	case ModeMemory, "memory":
		return ModeMemory
	default:
		if strings.TrimSpace(redisAddr) != "" {
			return ModeRedis
		}
		return ModeMemory
	}
}

// Options selects and configures a backend.
type Options struct {
	// Mode is a resolved mode, see ResolveMode.
	Mode    string
	Channel string
	Bus     domain.SignalBus
	Cache   domain.PayloadCache
	// LatestTTL defaults to ten minutes.
	LatestTTL time.Duration
}

// New builds the broker for opts. Redis mode without a bus is a
// configuration error.
func New(opts Options, logger *slog.Logger) (domain.OpportunityBroker, error) {
	switch opts.Mode {
	case ModeMemory:
		return NewMemory(), nil
	case ModeRedis:
		if opts.Bus == nil {
			return nil, fmt.Errorf("broker: mode redis requires a redis address: %w", domain.ErrInvalidConfig)
		}
		channel := opts.Channel
		if channel == "" {
			channel = DefaultTopic
		}
		return NewRedis(opts.Bus, RedisOptions{Channel: channel, Cache: opts.Cache, LatestTTL: opts.LatestTTL}, logger), nil
	default:
		return nil, fmt.Errorf("broker: unknown mode %q: %w", opts.Mode, domain.ErrInvalidConfig)
	}
}
