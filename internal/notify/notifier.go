// Package notify delivers opportunity digests to chat channels. A Digest
// subscribes to the opportunity broker and hands formatted messages to a
// Notifier, which dispatches them to every registered Sender (Telegram,
// Discord).
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	// The body may contain <b>...</b> emphasis; senders translate it to their
	// own markup.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that delivers to the given senders. Nil
// senders are skipped.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	kept := make([]Sender, 0, len(senders))
	for _, s := range senders {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Notifier{
		senders: kept,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is registered.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify sends a notification to all senders. A single sender failure does
// not prevent delivery to the remaining senders; failures are joined into the
// returned error.
func (n *Notifier) Notify(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
