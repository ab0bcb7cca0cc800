package llm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vincenthz/ThinkMate/pkg/llm"
)

var _ = Describe("ChatRequest", func() {
	It("returns the history unchanged without a system prompt", func() {
		req := &llm.ChatRequest{Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}}
		Expect(req.WithSystem()).To(Equal(req.Messages))
	})

	It("prepends the system prompt", func() {
		req := &llm.ChatRequest{
			System:   "Be brief.",
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
		}
		Expect(req.WithSystem()).To(Equal([]llm.Message{
			{Role: llm.RoleSystem, Content: "Be brief."},
			{Role: llm.RoleUser, Content: "hi"},
		}))
		Expect(req.Messages).To(HaveLen(1))
	})
})

var _ = Describe("ValidRole", func() {
	It("accepts conversation roles", func() {
		Expect(llm.ValidRole("user")).To(BeTrue())
		Expect(llm.ValidRole("assistant")).To(BeTrue())
		Expect(llm.ValidRole("system")).To(BeTrue())
	})

	It("rejects anything else", func() {
		Expect(llm.ValidRole("tool")).To(BeFalse())
		Expect(llm.ValidRole("")).To(BeFalse())
	})
})
