package cliui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/llm"
	"github.com/vincenthz/ThinkMate/pkg/storage"
	"github.com/vincenthz/ThinkMate/pkg/utils"
)

var (
	UserPrompt      = UserStyle.Render("you> ")
	AssistantPrompt = AssistStyle.Render("assistant> ")
)

// TranscriptOptions controls PrintTranscript.
type TranscriptOptions struct {
	// Markdown renders assistant replies with glamour.
	Markdown bool

	// Width is the wrap width for rendered markdown.
	Width int
}

// PrintTranscript writes every message of c, oldest first.
func PrintTranscript(w io.Writer, c *conversation.Conversation, opts TranscriptOptions) {
	fmt.Fprintf(w, "\n  %s %s\n\n",
		NameStyle.Render(c.DisplayTitle()),
		DimStyle.Render(fmt.Sprintf("(%d messages, %s)", len(c.Messages), c.Model)),
	)

	for _, m := range c.Messages {
		switch m.Role {
		case llm.RoleUser:
			fmt.Fprintf(w, "%s%s\n", UserPrompt, m.Content)
		case llm.RoleAssistant:
			fmt.Fprint(w, AssistantPrompt)
			content := m.Content
			if opts.Markdown && content != "" {
				if rendered, err := RenderMarkdown(content, opts.Width); err == nil {
					content = "\n" + strings.TrimRight(rendered, "\n")
				}
			}
			fmt.Fprintln(w, content)
		default:
			fmt.Fprintf(w, "%s %s\n", DimStyle.Render(m.Role+">"), m.Content)
		}

		if note := StatusNote(m); note != "" {
			fmt.Fprintf(w, "  %s\n", note)
		}
		fmt.Fprintln(w)
	}
}

// StatusNote explains a message that did not complete normally.
func StatusNote(m conversation.Message) string {
	switch m.Status {
	case conversation.StatusCancelled:
		return DimStyle.Render("(cancelled)")
	case conversation.StatusError:
		return FailMark + " " + ErrorStyle.Render(m.Error)
	case conversation.StatusPending, conversation.StatusStreaming:
		return DimStyle.Render("(in progress)")
	}
	if m.Error != "" {
		return WarnMark + " " + WarnStyle.Render(m.Error)
	}
	return ""
}

// PrintEntries writes a numbered listing of entries. The entry whose id is
// activeID is marked.
func PrintEntries(w io.Writer, entries []storage.Entry, skipped int, activeID string, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "  %s\n", DimStyle.Render("No saved conversations."))
	}

	for i, e := range entries {
		marker := " "
		if e.ID == activeID {
			marker = SuccessMark
		}
		fmt.Fprintf(w, "  %s %3d. %s %s %s\n",
			marker,
			i+1,
			NameStyle.Render(utils.TruncateRunes(e.Title, 48)),
			DimStyle.Render(fmt.Sprintf("%d messages, %s", e.MessageCount, FormatAge(e.UpdatedAt, now))),
			HashStyle.Render(utils.Truncate(e.ID, 13)),
		)
	}

	if skipped > 0 {
		fmt.Fprintf(w, "  %s %s\n", WarnMark, WarnStyle.Render(fmt.Sprintf("%d unreadable records skipped", skipped)))
	}
}
