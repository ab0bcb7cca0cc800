package eventstream

import (
	"errors"
	"fmt"
)

var (
	// ErrNilTurnEvent indicates a nil turn event payload was provided to a publisher.
	ErrNilTurnEvent = errors.New("nil turn event")

	// ErrUnsupportedEvent is returned for events of another type or schema.
	ErrUnsupportedEvent = errors.New("unsupported turn event")

	// ErrNoConversation is returned for events that name no conversation,
	// which publishers key messages by.
	ErrNoConversation = errors.New("turn event has no conversation id")

	ErrNoBrokers = errors.New("no brokers configured")
	ErrNoTopic   = errors.New("no topic configured")
)

// CheckTurn reports whether event can be published.
func CheckTurn(event *TurnCompletedEvent) error {
	switch {
	case event == nil:
		return ErrNilTurnEvent
	case event.EventType != EventTypeTurnCompleted || event.SchemaVersion != SchemaVersionV1:
		return fmt.Errorf("%w: %s v%d", ErrUnsupportedEvent, event.EventType, event.SchemaVersion)
	case event.Conversation.ID == "":
		return ErrNoConversation
	}
	return nil
}
