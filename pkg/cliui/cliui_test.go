package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vincenthz/ThinkMate/pkg/cliui"
)

var _ = Describe("Step", func() {
	It("prints a success mark after fn returns", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "Listing models", func() error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("Listing models"))
		Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
	})

	It("returns the error of fn with a fail mark", func() {
		var buf bytes.Buffer
		boom := errors.New("boom")
		err := cliui.Step(&buf, "Connecting", func() error { return boom })
		Expect(err).To(MatchError(boom))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})
})

var _ = Describe("FormatDuration", func() {
	It("uses milliseconds below a second", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("uses seconds with one decimal above", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})

var _ = Describe("FormatAge", func() {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	DescribeTable("relative ages",
		func(ago time.Duration, want string) {
			Expect(cliui.FormatAge(now.Add(-ago), now)).To(Equal(want))
		},
		Entry("seconds", 20*time.Second, "just now"),
		Entry("minutes", 5*time.Minute, "5m ago"),
		Entry("hours", 3*time.Hour, "3h ago"),
		Entry("days", 49*time.Hour, "2d ago"),
	)

	It("falls back to a date for old timestamps", func() {
		Expect(cliui.FormatAge(now.Add(-30*24*time.Hour), now)).To(MatchRegexp(`^\d{4}-\d{2}-\d{2}$`))
	})
})

var _ = Describe("RenderMarkdown", func() {
	It("keeps the text of the content", func() {
		out, err := cliui.RenderMarkdown("# Title\n\nSome *text*.", 60)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Title"))
		Expect(out).To(ContainSubstring("text"))
	})
})
