package eventstream

import (
	"time"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after a finished turn is persisted.
	EventTypeTurnCompleted = "thinkmate.turn.completed"
)

// TurnCompletedEvent is a transport-neutral event payload for a turn whose
// assistant message reached a terminal status and was flushed to storage.
type TurnCompletedEvent struct {
	SchemaVersion int              `json:"schema_version"`
	EventType     string           `json:"event_type"`
	EventID       string           `json:"event_id"`
	EmittedAt     time.Time        `json:"emitted_at"`
	Source        EventSource      `json:"source"`
	Conversation  ConversationMeta `json:"conversation"`
	Turn          TurnMeta         `json:"turn"`
}

// EventSource identifies the backend that produced the turn.
type EventSource struct {
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

// ConversationMeta identifies the conversation the turn belongs to.
type ConversationMeta struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
}

// TurnMeta describes the finished turn.
type TurnMeta struct {
	UserMessageID      string              `json:"user_message_id"`
	AssistantMessageID string              `json:"assistant_message_id"`
	Status             conversation.Status `json:"status"`
	Prompt             string              `json:"prompt"`
	Response           string              `json:"response"`
	Error              string              `json:"error,omitempty"`
	StartedAt          time.Time           `json:"started_at"`
	CompletedAt        time.Time           `json:"completed_at"`
	DurationMs         int64               `json:"duration_ms"`
	Usage              *llm.Usage          `json:"usage,omitempty"`
}
