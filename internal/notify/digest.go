package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// DigestTitle heads every digest message.
const DigestTitle = "Arbitrage digest"

// Defaults for DigestOptions.
const (
	DefaultDigestRows     = 5
	DefaultDigestDebounce = 15 * time.Second
)

// Feed is the subscription side of the opportunity broker.
type Feed interface {
	Subscribe() <-chan []domain.Opportunity
	Unsubscribe(ch <-chan []domain.Opportunity)
}

// DigestOptions configures a Digest.
type DigestOptions struct {
	// MaxRows caps the rows per message.
	MaxRows int
	// Debounce suppresses an opportunity fingerprint seen within this window. Zero
	// disables it.
	Debounce time.Duration
	Now      func() time.Time
}

// Digest turns published opportunity lists into short chat messages.
type Digest struct {
	feed     Feed
	notifier *Notifier
	opts     DigestOptions
	logger   *slog.Logger

	lastSeen map[string]time.Time
}

// NewDigest creates a Digest reading from feed. When notifier has no senders
// the digest is only logged.
func NewDigest(feed Feed, notifier *Notifier, opts DigestOptions, logger *slog.Logger) *Digest {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultDigestRows
	}
	if opts.Debounce < 0 {
		opts.Debounce = DefaultDigestDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Digest{
		feed:     feed,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With(slog.String("component", "digest")),
		lastSeen: make(map[string]time.Time),
	}
}

// Run consumes payloads until ctx is cancelled. It always returns nil after
// cancellation; send failures are logged.
func (d *Digest) Run(ctx context.Context) error {
	ch := d.feed.Subscribe()
	defer d.feed.Unsubscribe(ch)

	d.logger.InfoContext(ctx, "digest notifier started",
		slog.Bool("dry_run", !d.notifier.Enabled()),
		slog.Int("max_rows", d.opts.MaxRows),
	)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("digest notifier stopped")
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			d.Handle(ctx, payload)
		}
	}
}

// Handle processes one payload: empty payloads and fully debounced ones send
// nothing. It reports whether a digest was produced.
func (d *Digest) Handle(ctx context.Context, payload []domain.Opportunity) bool {
	if len(payload) == 0 {
		return false
	}
	rows := d.debounce(payload)
	if len(rows) == 0 {
		return false
	}
	if len(rows) > d.opts.MaxRows {
		rows = rows[:d.opts.MaxRows]
	}
	body := FormatDigest(rows)

	if !d.notifier.Enabled() {
		d.logger.InfoContext(ctx, "digest (dry-run)",
			slog.Int("rows", len(rows)),
			slog.String("text", body),
		)
		return true
	}
	if err := d.notifier.Notify(ctx, DigestTitle, body); err != nil {
		d.logger.WarnContext(ctx, "digest delivery failed", slog.String("error", err.Error()))
	}
	return true
}

// debounce keeps the rows whose fingerprint was not seen within the window
// and forgets fingerprints older than the window.
func (d *Digest) debounce(payload []domain.Opportunity) []domain.Opportunity {
	now := d.opts.Now()
	for key, seen := range d.lastSeen {
		if now.Sub(seen) >= d.opts.Debounce {
			delete(d.lastSeen, key)
		}
	}

	out := make([]domain.Opportunity, 0, len(payload))
	for _, o := range payload {
		key := o.Fingerprint()
		if _, recent := d.lastSeen[key]; recent {
			continue
		}
		d.lastSeen[key] = now
		out = append(out, o)
	}
	return out
}

// FormatDigest renders one line per opportunity. Symbols are emphasized with
// <b> tags.
func FormatDigest(rows []domain.Opportunity) string {
	lines := make([]string, 0, len(rows))
	for _, o := range rows {
		lines = append(lines, fmt.Sprintf("• <b>%s</b> %s -> %s | net: %.3f%% | qty: %.4f",
			html.EscapeString(o.Symbol),
			html.EscapeString(o.BuyExchange),
			html.EscapeString(o.SellExchange),
			o.NetEdgePct,
			o.AvailableQty,
		))
	}
	return strings.Join(lines, "\n")
}
