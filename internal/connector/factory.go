package connector

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/venue"
)

// Config selects and configures the connectors for a scanner.
type Config struct {
	Mode         string
	Exchanges    []string
	Symbols      []string
	PollInterval time.Duration
	Depth        int
	Timeout      time.Duration
	BiasStep     float64
	Venue        venue.Options
}

// ResolveMode maps configured mode names onto ModeSynthetic or ModeLive.
func ResolveMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeSynthetic, "mock":
		return ModeSynthetic, nil
	case ModeLive, "real", "":
		return ModeLive, nil
	default:
		return "", fmt.Errorf("connector: unknown mode %q: %w", mode, domain.ErrInvalidConfig)
	}
}

// Build creates one connector per exchange in cfg.Exchanges order.
func Build(cfg Config, logger *slog.Logger) ([]Connector, error) {
	mode, err := ResolveMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	out := make([]Connector, 0, len(cfg.Exchanges))
	n := len(cfg.Exchanges)
	for idx, ex := range cfg.Exchanges {
		switch mode {
		case ModeSynthetic:
			bias := SyntheticBias(idx, n, cfg.BiasStep)
			out = append(out, NewSynthetic(ex, cfg.Symbols, cfg.PollInterval, bias, SyntheticSeed(idx), logger))
		case ModeLive:
			vopts := cfg.Venue
			if vopts.Timeout <= 0 {
				vopts.Timeout = cfg.Timeout
			}
			factory := func(exchange string) (venue.Client, error) {
				return venue.New(exchange, vopts)
			}
			out = append(out, NewLive(ex, cfg.Symbols, LiveOptions{
				PollInterval: cfg.PollInterval,
				Depth:        cfg.Depth,
				Timeout:      cfg.Timeout,
			}, factory, logger))
		}
	}
	return out, nil
}
