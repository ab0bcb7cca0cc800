package writer

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	testutils "github.com/vincenthz/ThinkMate/pkg/utils/test"
)

// newTestPool creates a writer pool backed by a mock driver.
// Callers should "p.Close(ctx)" to drain enqueued jobs before asserting storage state.
func newTestPool() (*Pool, *testutils.MockDriver) {
	driver := testutils.NewMockDriver()

	p, err := NewPool(&Config{Driver: driver})
	Expect(err).NotTo(HaveOccurred())

	return p, driver
}

func saveJob(c *conversation.Conversation, rev uint64) Job {
	return Job{Op: OpSave, ID: c.ID, Conversation: c.Clone(), Revision: rev}
}

func receiveResult(p *Pool) Result {
	var r Result
	Eventually(p.Results(), 2*time.Second).Should(Receive(&r))
	return r
}

var _ = Describe("Writer Pool", func() {
	var (
		p      *Pool
		driver *testutils.MockDriver
		ctx    context.Context
	)

	BeforeEach(func() {
		p, driver = newTestPool()
		ctx = context.Background()
		DeferCleanup(func() {
			driver.Unblock()
			_ = p.Close(ctx)
		})
	})

	It("requires a driver", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
	})

	It("saves a conversation and reports the revision", func() {
		c := testutils.NewTestConversation("t", "What is 2+2?", "4")
		Expect(p.Enqueue(saveJob(c, 1))).To(Succeed())

		r := receiveResult(p)
		Expect(r.Op).To(Equal(OpSave))
		Expect(r.ID).To(Equal(c.ID))
		Expect(r.Revision).To(Equal(uint64(1)))
		Expect(r.Err).NotTo(HaveOccurred())

		got, err := driver.Load(ctx, c.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Messages).To(HaveLen(2))
	})

	It("reports driver failures in the result", func() {
		driver.SetSaveError(errors.New("disk on fire"))
		c := testutils.NewTestConversation("t", "Hello", "Hi")
		Expect(p.Enqueue(saveJob(c, 7))).To(Succeed())

		r := receiveResult(p)
		Expect(r.Revision).To(Equal(uint64(7)))
		Expect(r.Err).To(MatchError("disk on fire"))
	})

	It("coalesces saves queued behind an in-flight write", func() {
		driver.Block()
		c := testutils.NewTestConversation("t", "Hello", "Hi")

		Expect(p.Enqueue(saveJob(c, 1))).To(Succeed())
		Eventually(driver.Started()).Should(Receive(Equal(c.ID)))

		for rev := uint64(2); rev <= 5; rev++ {
			c.Title = "v" + string(rune('0'+rev))
			Expect(p.Enqueue(saveJob(c, rev))).To(Succeed())
		}

		// Nothing else may start for this id while the first write runs.
		Consistently(driver.Started(), 100*time.Millisecond).ShouldNot(Receive())

		driver.Unblock()
		revs := []uint64{receiveResult(p).Revision, receiveResult(p).Revision}
		Expect(revs).To(ConsistOf(uint64(1), uint64(5)))

		saves := driver.Saves()
		Expect(saves).To(HaveLen(2))
		Expect(saves[1].Title).To(Equal("v5"))
		Consistently(p.Results(), 100*time.Millisecond).ShouldNot(Receive())
	})

	It("writes different conversations independently", func() {
		a := testutils.NewTestConversation("a", "1", "2")
		b := testutils.NewTestConversation("b", "3", "4")

		Expect(p.Enqueue(saveJob(a, 1))).To(Succeed())
		Expect(p.Enqueue(saveJob(b, 1))).To(Succeed())

		ids := []string{receiveResult(p).ID, receiveResult(p).ID}
		Expect(ids).To(ConsistOf(a.ID, b.ID))
	})

	It("lets a queued delete supersede a queued save", func() {
		c := testutils.NewTestConversation("t", "Hello", "Hi")
		Expect(driver.Save(ctx, c)).To(Succeed())

		driver.Block()
		Expect(p.Enqueue(saveJob(c, 1))).To(Succeed())
		Eventually(driver.Started()).Should(Receive())

		Expect(p.Enqueue(saveJob(c, 2))).To(Succeed())
		Expect(p.Enqueue(Job{Op: OpDelete, ID: c.ID, Revision: 3})).To(Succeed())
		driver.Unblock()

		results := []Result{receiveResult(p), receiveResult(p)}
		Expect(results).To(ConsistOf(
			HaveField("Op", OpSave),
			And(HaveField("Op", OpDelete), HaveField("Err", BeNil())),
		))
		Expect(driver.Deletes()).To(Equal([]string{c.ID}))

		_, err := driver.Load(ctx, c.ID)
		Expect(err).To(HaveOccurred())
	})

	It("treats deleting a never saved conversation as success", func() {
		Expect(p.Enqueue(Job{Op: OpDelete, ID: "missing"})).To(Succeed())
		Expect(receiveResult(p).Err).NotTo(HaveOccurred())
	})

	It("rejects malformed jobs", func() {
		Expect(p.Enqueue(Job{Op: OpSave})).To(HaveOccurred())
		Expect(p.Enqueue(Job{Op: OpSave, ID: "x"})).To(HaveOccurred())
	})

	Describe("Close", func() {
		It("drains queued writes", func() {
			c := testutils.NewTestConversation("t", "Hello", "Hi")
			Expect(p.Enqueue(saveJob(c, 1))).To(Succeed())
			Expect(p.Close(ctx)).To(Succeed())

			_, err := driver.Load(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns failures of writes finished while closing", func() {
			driver.Block()
			driver.SetSaveError(errors.New("no space left on device"))
			c := testutils.NewTestConversation("t", "Hello", "Hi")
			Expect(p.Enqueue(saveJob(c, 1))).To(Succeed())
			Eventually(driver.Started()).Should(Receive())

			errc := make(chan error, 1)
			go func() { errc <- p.Close(ctx) }()
			Consistently(errc, 50*time.Millisecond).ShouldNot(Receive())

			driver.Unblock()
			var err error
			Eventually(errc).Should(Receive(&err))
			Expect(err).To(MatchError(ContainSubstring("no space left on device")))
		})

		It("gives up when the context ends", func() {
			driver.Block()
			c := testutils.NewTestConversation("t", "Hello", "Hi")
			Expect(p.Enqueue(saveJob(c, 1))).To(Succeed())
			Eventually(driver.Started()).Should(Receive())

			short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			Expect(p.Close(short)).To(MatchError(context.DeadlineExceeded))
		})

		It("refuses new jobs", func() {
			Expect(p.Close(ctx)).To(Succeed())
			c := testutils.NewTestConversation("t", "Hello", "Hi")
			Expect(p.Enqueue(saveJob(c, 1))).To(MatchError(ErrClosed))
		})
	})
})
