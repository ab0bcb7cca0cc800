package conversation_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/ident"
	"github.com/vincenthz/ThinkMate/pkg/llm"
)

var _ = Describe("Conversation", func() {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	Describe("New", func() {
		It("assigns a time-ordered id and timestamps", func() {
			c := conversation.New("gemma3:latest", now)
			Expect(ident.Valid(c.ID)).To(BeTrue())
			Expect(c.Model).To(Equal("gemma3:latest"))
			Expect(c.CreatedAt).To(Equal(now))
			Expect(c.UpdatedAt).To(Equal(now))
			Expect(c.Messages).To(BeEmpty())
			Expect(c.Last()).To(BeNil())
		})
	})

	Describe("DisplayTitle", func() {
		It("falls back to the creation time", func() {
			c := conversation.New("m", now)
			Expect(c.DisplayTitle()).To(Equal(conversation.DefaultTitle(now)))
			Expect(c.DisplayTitle()).To(HavePrefix("Chat "))
		})

		It("prefers the explicit title", func() {
			c := conversation.New("m", now)
			c.Title = "Arithmetic"
			Expect(c.DisplayTitle()).To(Equal("Arithmetic"))
		})
	})

	Describe("DeriveTitle", func() {
		It("collapses whitespace", func() {
			Expect(conversation.DeriveTitle("  What is\n\t2+2?  ", 40)).To(Equal("What is 2+2?"))
		})

		It("truncates by runes", func() {
			Expect(conversation.DeriveTitle("héllo wörld", 5)).To(Equal("héllo"))
		})

		It("uses the default length when none is given", func() {
			long := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
			Expect(conversation.DeriveTitle(long, 0)).To(HaveLen(conversation.DefaultTitleLength))
		})
	})

	Describe("Clone", func() {
		It("returns an independent copy", func() {
			c := conversation.New("m", now)
			c.Messages = append(c.Messages,
				conversation.NewMessage(llm.RoleUser, "Hello", conversation.StatusComplete, now),
				conversation.NewMessage(llm.RoleAssistant, "Hi", conversation.StatusComplete, now),
			)
			c.Messages[1].Usage = &llm.Usage{TotalTokens: 5}

			cp := c.Clone()
			Expect(cp).To(Equal(c))

			cp.Messages[1].Content = "changed"
			cp.Messages[1].Usage.TotalTokens = 9
			Expect(c.Messages[1].Content).To(Equal("Hi"))
			Expect(c.Messages[1].Usage.TotalTokens).To(Equal(5))
		})

		It("is nil safe", func() {
			var c *conversation.Conversation
			Expect(c.Clone()).To(BeNil())
		})
	})

	Describe("History", func() {
		It("keeps complete and cancelled content and drops failures", func() {
			c := conversation.New("m", now)
			c.Messages = []conversation.Message{
				conversation.NewMessage(llm.RoleUser, "one", conversation.StatusComplete, now),
				conversation.NewMessage(llm.RoleAssistant, "partial", conversation.StatusCancelled, now),
				conversation.NewMessage(llm.RoleUser, "two", conversation.StatusComplete, now),
				conversation.NewMessage(llm.RoleAssistant, "", conversation.StatusError, now),
				conversation.NewMessage(llm.RoleUser, "three", conversation.StatusComplete, now),
				conversation.NewMessage(llm.RoleAssistant, "", conversation.StatusPending, now),
			}

			Expect(c.History()).To(Equal([]llm.Message{
				{Role: llm.RoleUser, Content: "one"},
				{Role: llm.RoleAssistant, Content: "partial"},
				{Role: llm.RoleUser, Content: "two"},
				{Role: llm.RoleUser, Content: "three"},
			}))
		})
	})

	Describe("Status", func() {
		DescribeTable("Terminal",
			func(s conversation.Status, terminal bool) {
				Expect(s.Terminal()).To(Equal(terminal))
			},
			Entry("pending", conversation.StatusPending, false),
			Entry("streaming", conversation.StatusStreaming, false),
			Entry("complete", conversation.StatusComplete, true),
			Entry("error", conversation.StatusError, true),
			Entry("cancelled", conversation.StatusCancelled, true),
		)
	})
})
