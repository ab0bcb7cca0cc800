package testutils

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/storage"
)

// DriverContract declares the behaviour every storage.Driver must satisfy.
// newDriver is called before each test. corrupt, when non-nil, must plant
// an undecodable record under id so List can be checked for skipping it.
func DriverContract(newDriver func() storage.Driver, corrupt func(d storage.Driver, id string)) {
	var (
		ctx    context.Context
		driver storage.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
		DeferCleanup(func() {
			Expect(driver.Close()).To(Succeed())
		})
	})

	It("round-trips a conversation", func() {
		c := NewTestConversation("Arithmetic", "What is 2+2?", "4")
		Expect(driver.Save(ctx, c)).To(Succeed())

		got, err := driver.Load(ctx, c.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(c.ID))
		Expect(got.Title).To(Equal(c.Title))
		Expect(got.Messages).To(Equal(c.Messages))
		Expect(got.CreatedAt).To(BeTemporally("==", c.CreatedAt))
	})

	It("overwrites an existing record wholesale", func() {
		c := NewTestConversation("first", "Hello", "Hi")
		Expect(driver.Save(ctx, c)).To(Succeed())

		c.Title = "second"
		c.Messages = append(c.Messages,
			conversation.NewMessage("user", "And?", conversation.StatusComplete, c.UpdatedAt),
			conversation.NewMessage("assistant", "That's all.", conversation.StatusComplete, c.UpdatedAt),
		)
		Expect(driver.Save(ctx, c)).To(Succeed())

		got, err := driver.Load(ctx, c.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Title).To(Equal("second"))
		Expect(got.Messages).To(HaveLen(4))

		list, err := driver.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Entries).To(HaveLen(1))
	})

	It("rejects conversations without messages", func() {
		c := NewTestConversation("empty")
		Expect(driver.Save(ctx, c)).To(MatchError(conversation.ErrInvalid))
	})

	It("returns NotFoundError for unknown ids", func() {
		_, err := driver.Load(ctx, "0190f3c4-0000-7000-8000-000000000000")
		Expect(storage.IsNotFound(err)).To(BeTrue())

		err = driver.Delete(ctx, "0190f3c4-0000-7000-8000-000000000000")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("deletes records", func() {
		c := NewTestConversation("gone", "Hello", "Hi")
		Expect(driver.Save(ctx, c)).To(Succeed())
		Expect(driver.Delete(ctx, c.ID)).To(Succeed())

		_, err := driver.Load(ctx, c.ID)
		Expect(storage.IsNotFound(err)).To(BeTrue())

		list, err := driver.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Entries).To(BeEmpty())
	})

	It("lists the most recently updated first", func() {
		older := NewTestConversation("older", "a", "b")
		older.UpdatedAt = older.UpdatedAt.Add(-time.Hour)
		newer := NewTestConversation("", "c", "d")

		Expect(driver.Save(ctx, older)).To(Succeed())
		Expect(driver.Save(ctx, newer)).To(Succeed())

		list, err := driver.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Skipped).To(BeZero())
		Expect(list.Entries).To(HaveLen(2))
		Expect(list.Entries[0].ID).To(Equal(newer.ID))
		Expect(list.Entries[0].Title).To(Equal(newer.DisplayTitle()))
		Expect(list.Entries[0].MessageCount).To(Equal(2))
		Expect(list.Entries[1].Title).To(Equal("older"))
	})

	It("skips corrupt records and counts them", func() {
		if corrupt == nil {
			Skip("driver cannot hold corrupt records")
		}

		good := NewTestConversation("good", "Hello", "Hi")
		Expect(driver.Save(ctx, good)).To(Succeed())

		bad := NewTestConversation("bad", "x", "y")
		corrupt(driver, bad.ID)

		list, err := driver.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Skipped).To(Equal(1))
		Expect(list.Entries).To(HaveLen(1))
		Expect(list.Entries[0].ID).To(Equal(good.ID))

		_, err = driver.Load(ctx, bad.ID)
		Expect(storage.IsCorrupt(err)).To(BeTrue())
	})
}
