// Package notify alerts operators about oracle events over chat webhooks.
// Every configured sender receives each message whose event type is enabled.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Event types.
const (
	EventPenalty     = "penalty"
	EventPublished   = "published"
	EventBondCreated = "bond_created"
	EventBatch       = "batch"
)

// Field is a labelled value rendered under the message body.
type Field struct {
	Name  string
	Value string
}

// Message is a single notification.
type Message struct {
	Event  string
	Title  string
	Body   string
	Fields []Field
}

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier fans messages out to its senders. An empty event list enables
// every event.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether msgs of this event type are delivered.
func (n *Notifier) Enabled(event string) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers msg to every sender. A failing sender does not stop
// delivery to the others; all failures are returned together.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if !n.Enabled(msg.Event) {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", msg.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
