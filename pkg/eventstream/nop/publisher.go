// Package nop provides the publisher used when no event stream is configured.
package nop

import (
	"context"
	"log/slog"

	"github.com/vincenthz/ThinkMate/pkg/eventstream"
	"github.com/vincenthz/ThinkMate/pkg/logger"
)

// Publisher drops turn events after validating them. Dropped events are
// logged at debug level so a disabled stream is still visible in the log.
type Publisher struct {
	logger *slog.Logger
}

// NewPublisher creates a new no-op eventstream publisher. A nil logger
// discards the debug lines.
func NewPublisher(log *slog.Logger) *Publisher {
	return &Publisher{logger: logger.OrNop(log).With("component", "eventstream", "publisher", "nop")}
}

// PublishTurn checks the event like a real publisher would and otherwise
// does nothing.
func (p *Publisher) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	if err := eventstream.CheckTurn(event); err != nil {
		return err
	}

	p.logger.Debug("dropping turn event",
		"event_type", event.EventType,
		"conversation_id", event.Conversation.ID,
		"status", event.Turn.Status,
	)
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
