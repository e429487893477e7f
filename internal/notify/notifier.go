// Package notify delivers operator alerts over one or more channels
// (Telegram, Discord). Routine lifecycle events can be filtered per
// deployment; critical alerts always go out on every channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event names emitted by the trading pipeline.
const (
	EventPositionOpened  = "position_opened"
	EventPositionClosed  = "position_closed"
	EventRollback        = "rollback"
	EventRollbackFailed  = "rollback_failed"
	EventRecovery        = "recovery"
	EventStopUnprotected = "stop_unprotected"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	// critical marks alerts that require operator action.
	Send(ctx context.Context, title, message string, critical bool) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify forwards
// only events whose type is in the allowed set; NotifyAll bypasses the
// filter and marks the alert critical.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. If events
// is empty, all event types pass the filter.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a routine notification, subject to the event filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message, false)
}

// NotifyAll sends a critical alert to every sender, bypassing the event
// filter. Unverified rollbacks arrive through this path.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message, true)
}

// dispatch fans out to all senders. A single sender failure does not prevent
// delivery to the rest; failures are combined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string, critical bool) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message, critical); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent", slog.String("sender", s.Name()))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %s", strings.Join(errs, "; "))
	}
	return nil
}
