// Package conversation defines the conversation and message model shared by
// the engine and every storage driver, and the self-describing record format
// conversations are persisted in.
package conversation

import (
	"strings"
	"time"

	"github.com/huandu/go-clone"

	"github.com/vincenthz/ThinkMate/pkg/ident"
	"github.com/vincenthz/ThinkMate/pkg/llm"
	"github.com/vincenthz/ThinkMate/pkg/utils"
)

// Status is the lifecycle state of a single message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a message in this status will never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// DefaultTitleLength is the number of runes kept when deriving a title from
// the first prompt.
const DefaultTitleLength = 40

const defaultTitleLayout = "2006-01-02 15:04:05"

// Message is one entry of a conversation.
type Message struct {
	ID      string `json:"id" validate:"ident"`
	Role    string `json:"role" validate:"role"`
	Content string `json:"content"`
	Status  Status `json:"status" validate:"oneof=pending streaming complete error cancelled"`

	// Error describes why the message ended in StatusError, or a persistence
	// lag annotation on an otherwise complete message.
	Error string `json:"error,omitempty"`

	// Usage is what the backend reported when the turn finished.
	Usage *llm.Usage `json:"usage,omitempty"`

	CreatedAt time.Time `json:"created_at" validate:"required"`
}

// Conversation is an ordered sequence of messages with identity and title.
type Conversation struct {
	ID        string    `json:"id" validate:"ident"`
	Title     string    `json:"title,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at" validate:"required"`
	UpdatedAt time.Time `json:"updated_at" validate:"required"`
	Messages  []Message `json:"messages" validate:"required,min=1,dive"`
}

// New returns an empty conversation with a fresh time-ordered identifier.
func New(model string, now time.Time) *Conversation {
	now = now.UTC()
	return &Conversation{
		ID:        ident.New(),
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewMessage returns a message with a fresh identifier.
func NewMessage(role, content string, status Status, now time.Time) Message {
	return Message{
		ID:        ident.New(),
		Role:      role,
		Content:   content,
		Status:    status,
		CreatedAt: now.UTC(),
	}
}

// Clone returns a deep copy of c.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	return clone.Clone(c).(*Conversation)
}

// DisplayTitle returns the title, or a timestamp based placeholder while the
// conversation has none.
func (c *Conversation) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return DefaultTitle(c.CreatedAt)
}

// Last returns a pointer to the last message, or nil for an empty
// conversation.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// History returns the messages to send to a backend as context. Failed
// replies carry no model output and are left out; cancelled partial replies
// are kept since the user saw them.
func (c *Conversation) History() []llm.Message {
	out := make([]llm.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		switch m.Status {
		case StatusComplete, StatusCancelled:
		default:
			continue
		}
		if m.Content == "" {
			continue
		}
		out = append(out, llm.NewTextMessage(m.Role, m.Content))
	}
	return out
}

// DefaultTitle is the placeholder title for a conversation created at t.
func DefaultTitle(t time.Time) string {
	return "Chat " + t.Local().Format(defaultTitleLayout)
}

// DeriveTitle builds a title from a prompt: whitespace runs collapse to a
// single space and the result is cut to maxRunes.
func DeriveTitle(text string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultTitleLength
	}
	return strings.TrimSpace(utils.TruncateRunes(utils.CollapseWhitespace(text), maxRunes))
}
