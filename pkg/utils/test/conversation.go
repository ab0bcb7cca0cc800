package testutils

import (
	"time"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/llm"
)

// NewTestConversation builds a persisted-shape conversation from alternating
// user and assistant contents. Every message is complete.
func NewTestConversation(title string, contents ...string) *conversation.Conversation {
	now := time.Now().UTC().Truncate(time.Millisecond)
	c := conversation.New("test-model", now)
	c.Title = title

	for i, text := range contents {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		c.Messages = append(c.Messages, conversation.NewMessage(role, text, conversation.StatusComplete, now))
	}
	return c
}
