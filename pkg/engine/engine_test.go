package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/engine"
	"github.com/vincenthz/ThinkMate/pkg/eventstream"
	"github.com/vincenthz/ThinkMate/pkg/llm"
	"github.com/vincenthz/ThinkMate/pkg/monitor"
	"github.com/vincenthz/ThinkMate/pkg/storage"
	testutils "github.com/vincenthz/ThinkMate/pkg/utils/test"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnCompletedEvent
}

func (p *recordingPublisher) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error {
	return nil
}

func (p *recordingPublisher) Events() []*eventstream.TurnCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.TurnCompletedEvent(nil), p.events...)
}

var _ = Describe("Engine", func() {
	var (
		ctx       context.Context
		be        *testutils.ScriptedBackend
		driver    *testutils.MockDriver
		publisher *recordingPublisher
		eng       *engine.Engine
		config    *engine.Config
	)

	start := func() {
		var err error
		eng, err = engine.New(ctx, config)
		Expect(err).NotTo(HaveOccurred())
	}

	state := func() engine.TurnState {
		return eng.Snapshot().State
	}

	nextTurn := func() *testutils.ScriptedTurn {
		t := be.NextTurn(2 * time.Second)
		Expect(t).NotTo(BeNil(), "expected the engine to open a stream")
		return t
	}

	last := func() conversation.Message {
		active := eng.Snapshot().Active
		Expect(active).NotTo(BeNil())
		Expect(active.Messages).NotTo(BeEmpty())
		return active.Messages[len(active.Messages)-1]
	}

	stored := func(id string) func() *conversation.Conversation {
		return func() *conversation.Conversation {
			c, err := driver.Load(ctx, id)
			if err != nil {
				return nil
			}
			return c
		}
	}

	completeTurn := func(prompt, reply string) string {
		Expect(eng.Submit(prompt)).To(Succeed())
		t := nextTurn()
		Expect(t.Delta(reply)).To(BeTrue())
		t.Finish(nil)
		Eventually(state).Should(Equal(engine.Idle))
		return eng.Snapshot().Active.ID
	}

	BeforeEach(func() {
		ctx = context.Background()
		be = testutils.NewScriptedBackend()
		driver = testutils.NewMockDriver()
		publisher = &recordingPublisher{}
		config = &engine.Config{
			Backend:   be,
			Driver:    driver,
			Publisher: publisher,
			Model:     "test-model",
		}
	})

	AfterEach(func() {
		driver.Unblock()
		if eng != nil {
			_ = eng.Close(ctx)
			eng = nil
		}
	})

	Describe("New", func() {
		It("requires a backend and a driver", func() {
			_, err := engine.New(ctx, &engine.Config{Driver: driver})
			Expect(err).To(HaveOccurred())
			_, err = engine.New(ctx, &engine.Config{Backend: be})
			Expect(err).To(HaveOccurred())
		})

		It("starts idle with the stored entries listed", func() {
			c := testutils.NewTestConversation("Stored", "hi", "hello")
			Expect(driver.Driver.Save(ctx, c)).To(Succeed())

			start()
			snap := eng.Snapshot()
			Expect(snap.State).To(Equal(engine.Idle))
			Expect(snap.Active).To(BeNil())
			Expect(snap.Entries).To(HaveLen(1))
			Expect(snap.Entries[0].ID).To(Equal(c.ID))
		})

		It("counts corrupt records", func() {
			driver.PutRaw("corrupt", []byte("{not json"))
			start()
			Expect(eng.Snapshot().Skipped).To(Equal(1))
		})

		It("resumes the previous conversation", func() {
			c := testutils.NewTestConversation("Stored", "hi", "hello")
			Expect(driver.Driver.Save(ctx, c)).To(Succeed())
			config.ActiveID = c.ID

			start()
			Expect(eng.Snapshot().Active.ID).To(Equal(c.ID))
		})

		It("starts empty when the previous conversation is gone", func() {
			config.ActiveID = "missing"
			start()
			Expect(eng.Snapshot().Active).To(BeNil())
			Expect(eng.Snapshot().Err).To(BeNil())
		})
	})

	Describe("Submit", func() {
		BeforeEach(start)

		It("streams a reply into a complete message pair", func() {
			Expect(eng.Submit("What is 2+2?")).To(Succeed())

			t := nextTurn()
			Expect(t.Request.Model).To(Equal("test-model"))
			Expect(t.Request.Messages).To(Equal([]llm.Message{llm.NewTextMessage(llm.RoleUser, "What is 2+2?")}))
			Expect(state()).To(Equal(engine.AwaitingFirstToken))
			Expect(last().Status).To(Equal(conversation.StatusPending))

			Expect(t.Delta("4")).To(BeTrue())
			Eventually(state).Should(Or(Equal(engine.Streaming), Equal(engine.Idle)))

			t.Finish(&llm.Completion{Usage: &llm.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}})
			Eventually(state).Should(Equal(engine.Idle))

			snap := eng.Snapshot()
			Expect(snap.Active.Title).To(Equal("What is 2+2?"))
			Expect(snap.Active.Messages).To(HaveLen(2))

			user, reply := snap.Active.Messages[0], snap.Active.Messages[1]
			Expect(user.Role).To(Equal(llm.RoleUser))
			Expect(user.Content).To(Equal("What is 2+2?"))
			Expect(user.Status).To(Equal(conversation.StatusComplete))
			Expect(reply.Role).To(Equal(llm.RoleAssistant))
			Expect(reply.Content).To(Equal("4"))
			Expect(reply.Status).To(Equal(conversation.StatusComplete))
			Expect(reply.Usage.TotalTokens).To(Equal(4))

			c := stored(snap.Active.ID)()
			Expect(c).NotTo(BeNil())
			Expect(c.Messages).To(HaveLen(2))
			Expect(c.Messages[1].Content).To(Equal("4"))

			Eventually(func() []storage.Entry { return eng.Snapshot().Entries }).
				Should(ContainElement(HaveField("ID", snap.Active.ID)))
		})

		It("sends the previous turns as history", func() {
			completeTurn("first", "one")

			Expect(eng.Submit("second")).To(Succeed())
			t := nextTurn()
			Expect(t.Request.Messages).To(Equal([]llm.Message{
				llm.NewTextMessage(llm.RoleUser, "first"),
				llm.NewTextMessage(llm.RoleAssistant, "one"),
				llm.NewTextMessage(llm.RoleUser, "second"),
			}))
			t.Finish(nil)
			Eventually(state).Should(Equal(engine.Idle))
		})

		It("sends the system prompt", func() {
			Expect(eng.Close(ctx)).To(Succeed())
			config.SystemPrompt = "Be brief."
			start()

			Expect(eng.Submit("hi")).To(Succeed())
			Expect(nextTurn().Request.System).To(Equal("Be brief."))
		})

		It("sends the configured generation options", func() {
			Expect(eng.Close(ctx)).To(Succeed())
			temperature, maxTokens := 0.3, 256
			config.Options = llm.Options{Temperature: &temperature, MaxTokens: &maxTokens}
			start()

			completeTurn("hi", "hello")
			Expect(eng.Submit("again")).To(Succeed())
			nextTurn()

			Expect(be.Requests()).To(HaveLen(2))
			for _, req := range be.Requests() {
				Expect(req.Temperature).To(HaveValue(Equal(0.3)))
				Expect(req.MaxTokens).To(HaveValue(Equal(256)))
				Expect(req.TopP).To(BeNil())
			}
		})

		It("rejects empty input without changing state", func() {
			err := eng.Submit("  \n\t ")
			Expect(engine.IsKind(err, engine.KindValidation)).To(BeTrue())
			Expect(errors.Is(err, engine.ErrEmptyInput)).To(BeTrue())
			Expect(eng.Snapshot().Active).To(BeNil())
			Expect(be.Requests()).To(BeEmpty())
		})

		It("allows one stream at a time", func() {
			Expect(eng.Submit("one")).To(Succeed())
			nextTurn()

			err := eng.Submit("two")
			Expect(engine.IsKind(err, engine.KindValidation)).To(BeTrue())
			Expect(errors.Is(err, engine.ErrTurnActive)).To(BeTrue())
			Expect(be.Requests()).To(HaveLen(1))
		})

		It("does not persist a new conversation before its first turn ends", func() {
			Expect(eng.Submit("hello")).To(Succeed())
			t := nextTurn()
			Expect(t.Delta("partial")).To(BeTrue())

			Consistently(driver.SaveCount, 100*time.Millisecond).Should(BeZero())
			Expect(eng.Snapshot().Entries).To(BeEmpty())

			t.Finish(nil)
			Eventually(driver.SaveCount).Should(Equal(1))
		})

		It("publishes a turn event once the turn is stored", func() {
			id := completeTurn("ping", "pong")

			Eventually(publisher.Events).Should(HaveLen(1))
			ev := publisher.Events()[0]
			Expect(ev.EventType).To(Equal(eventstream.EventTypeTurnCompleted))
			Expect(ev.Source.Backend).To(Equal("scripted"))
			Expect(ev.Source.Model).To(Equal("test-model"))
			Expect(ev.Conversation.ID).To(Equal(id))
			Expect(ev.Conversation.MessageCount).To(Equal(2))
			Expect(ev.Turn.Status).To(Equal(conversation.StatusComplete))
			Expect(ev.Turn.Prompt).To(Equal("ping"))
			Expect(ev.Turn.Response).To(Equal("pong"))
			Expect(ev.EmittedAt.IsZero()).To(BeFalse())
		})
	})

	Describe("backend failures", func() {
		BeforeEach(start)

		It("keeps the partial reply with an error status", func() {
			Expect(eng.Submit("Hello")).To(Succeed())
			t := nextTurn()
			Expect(t.Delta("Hi")).To(BeTrue())
			t.Fail(context.DeadlineExceeded)

			Eventually(state).Should(Equal(engine.Idle))

			msg := last()
			Expect(msg.Content).To(Equal("Hi"))
			Expect(msg.Status).To(Equal(conversation.StatusError))
			Expect(msg.Error).To(ContainSubstring("timeout"))

			snap := eng.Snapshot()
			Expect(engine.IsKind(snap.Err, engine.KindTransport)).To(BeTrue())

			c := stored(snap.Active.ID)()
			Expect(c).NotTo(BeNil())
			Expect(c.Messages[1].Status).To(Equal(conversation.StatusError))
			Expect(c.Messages[1].Content).To(Equal("Hi"))
		})

		It("retries a failed reply with a fresh pending message", func() {
			Expect(eng.Submit("Hello")).To(Succeed())
			t := nextTurn()
			Expect(t.Delta("Hi")).To(BeTrue())
			t.Fail(context.DeadlineExceeded)
			Eventually(state).Should(Equal(engine.Idle))

			Expect(eng.RetryLastTurn()).To(Succeed())

			snap := eng.Snapshot()
			Expect(snap.State).To(Equal(engine.AwaitingFirstToken))
			Expect(snap.Err).To(BeNil())
			Expect(snap.Active.Messages).To(HaveLen(2))
			Expect(snap.Active.Messages[0].Content).To(Equal("Hello"))
			Expect(snap.Active.Messages[1].Status).To(Equal(conversation.StatusPending))
			Expect(snap.Active.Messages[1].Content).To(BeEmpty())

			retry := nextTurn()
			Expect(retry.Request.Messages).To(Equal([]llm.Message{llm.NewTextMessage(llm.RoleUser, "Hello")}))
			Expect(retry.Delta("Hi there")).To(BeTrue())
			retry.Finish(nil)

			Eventually(state).Should(Equal(engine.Idle))
			Expect(last().Content).To(Equal("Hi there"))
			Expect(last().Status).To(Equal(conversation.StatusComplete))
		})

		It("refuses to retry a reply that did not fail", func() {
			completeTurn("q", "a")

			err := eng.RetryLastTurn()
			Expect(engine.IsKind(err, engine.KindValidation)).To(BeTrue())
			Expect(errors.Is(err, engine.ErrNothingToRetry)).To(BeTrue())
		})

		It("refuses to retry without a conversation", func() {
			err := eng.RetryLastTurn()
			Expect(errors.Is(err, engine.ErrNoConversation)).To(BeTrue())
		})
	})

	Describe("Cancel", func() {
		BeforeEach(start)

		It("keeps the content received before cancelling", func() {
			Expect(eng.Submit("Name a city")).To(Succeed())
			t := nextTurn()
			Expect(t.Delta("Par")).To(BeTrue())

			Expect(eng.Cancel()).To(Succeed())
			t.Delta("is")

			Eventually(state).Should(Equal(engine.Idle))
			Expect(last().Content).To(Equal("Par"))
			Expect(last().Status).To(Equal(conversation.StatusCancelled))

			Eventually(t.Done()).Should(BeClosed())

			c := stored(eng.Snapshot().Active.ID)()
			Expect(c).NotTo(BeNil())
			Expect(c.Messages[1].Content).To(Equal("Par"))
			Expect(c.Messages[1].Status).To(Equal(conversation.StatusCancelled))
		})

		It("is idempotent", func() {
			Expect(eng.Cancel()).To(Succeed())

			Expect(eng.Submit("q")).To(Succeed())
			nextTurn()
			Expect(eng.Cancel()).To(Succeed())
			Expect(eng.Cancel()).To(Succeed())
			Eventually(state).Should(Equal(engine.Idle))
			Expect(eng.Cancel()).To(Succeed())
			Expect(state()).To(Equal(engine.Idle))
		})

		It("keeps cancelled replies as history", func() {
			Expect(eng.Submit("one")).To(Succeed())
			t := nextTurn()
			Expect(t.Delta("partial")).To(BeTrue())
			Expect(eng.Cancel()).To(Succeed())
			Eventually(state).Should(Equal(engine.Idle))

			Expect(eng.Submit("two")).To(Succeed())
			Expect(nextTurn().Request.Messages).To(Equal([]llm.Message{
				llm.NewTextMessage(llm.RoleUser, "one"),
				llm.NewTextMessage(llm.RoleAssistant, "partial"),
				llm.NewTextMessage(llm.RoleUser, "two"),
			}))
		})
	})

	Describe("persistence failures", func() {
		BeforeEach(start)

		It("flags the reply and retries the flush on request", func() {
			driver.SetSaveError(errors.New("disk on fire"))

			Expect(eng.Submit("q")).To(Succeed())
			t := nextTurn()
			Expect(t.Delta("4")).To(BeTrue())
			t.Finish(nil)

			Eventually(state).Should(Equal(engine.Errored))
			snap := eng.Snapshot()
			Expect(snap.PendingFlush).To(BeTrue())
			Expect(engine.IsKind(snap.Err, engine.KindPersistence)).To(BeTrue())
			Expect(last().Content).To(Equal("4"))
			Expect(last().Status).To(Equal(conversation.StatusComplete))
			Expect(last().Error).To(ContainSubstring("disk on fire"))

			driver.SetSaveError(nil)
			Expect(eng.RetryFlush()).To(Succeed())

			Eventually(state).Should(Equal(engine.Idle))
			Expect(eng.Snapshot().PendingFlush).To(BeFalse())
			Expect(last().Error).To(BeEmpty())

			c := stored(snap.Active.ID)()
			Expect(c).NotTo(BeNil())
			Expect(c.Messages[1].Error).To(BeEmpty())
		})

		It("retries the flush with the next turn", func() {
			driver.SetSaveError(errors.New("transient"))
			Expect(eng.Submit("one")).To(Succeed())
			t := nextTurn()
			t.Finish(nil)
			Eventually(state).Should(Equal(engine.Errored))
			id := eng.Snapshot().Active.ID

			driver.SetSaveError(nil)
			Expect(eng.Submit("two")).To(Succeed())
			next := nextTurn()

			Eventually(stored(id)).ShouldNot(BeNil())
			Expect(stored(id)().Messages).To(HaveLen(2))

			next.Finish(nil)
			Eventually(state).Should(Equal(engine.Idle))
			Eventually(func() int { return len(stored(id)().Messages) }).Should(Equal(4))
		})

		It("raises a banner while the disk is full", func() {
			driver.SetSaveError(fmt.Errorf("write record: %w", syscall.ENOSPC))
			Expect(eng.Submit("q")).To(Succeed())
			nextTurn().Finish(nil)

			Eventually(func() string { return eng.Snapshot().Banner }).ShouldNot(BeEmpty())

			driver.SetSaveError(nil)
			Expect(eng.RetryFlush()).To(Succeed())
			Eventually(func() string { return eng.Snapshot().Banner }).Should(BeEmpty())
		})

		It("rejects a flush retry with nothing pending", func() {
			err := eng.RetryFlush()
			Expect(errors.Is(err, engine.ErrNothingToFlush)).To(BeTrue())
		})

		It("does not publish a turn that was not stored", func() {
			driver.SetSaveError(errors.New("nope"))
			Expect(eng.Submit("q")).To(Succeed())
			nextTurn().Finish(nil)
			Eventually(state).Should(Equal(engine.Errored))

			Consistently(publisher.Events, 100*time.Millisecond).Should(BeEmpty())

			driver.SetSaveError(nil)
			Expect(eng.RetryFlush()).To(Succeed())
			Eventually(publisher.Events).Should(HaveLen(1))
		})

		It("publishes every turn that waited on the same failed flush in order", func() {
			driver.SetSaveError(errors.New("nope"))
			Expect(eng.Submit("first")).To(Succeed())
			t := nextTurn()
			Expect(t.Delta("one")).To(BeTrue())
			t.Finish(nil)
			Eventually(state).Should(Equal(engine.Errored))

			Expect(eng.Submit("second")).To(Succeed())
			t = nextTurn()
			Expect(t.Delta("two")).To(BeTrue())
			t.Finish(nil)
			Eventually(func() bool {
				snap := eng.Snapshot()
				return snap.State == engine.Errored && len(snap.Active.Messages) == 4
			}).Should(BeTrue())
			Expect(publisher.Events()).To(BeEmpty())

			driver.SetSaveError(nil)
			Expect(eng.RetryFlush()).To(Succeed())
			Eventually(publisher.Events).Should(HaveLen(2))

			events := publisher.Events()
			Expect(events[0].Turn.Prompt).To(Equal("first"))
			Expect(events[0].Turn.Response).To(Equal("one"))
			Expect(events[1].Turn.Prompt).To(Equal("second"))
			Expect(events[1].Turn.Response).To(Equal("two"))
			Expect(events[0].EventID).NotTo(Equal(events[1].EventID))
		})
	})

	Describe("registry operations", func() {
		var saved *conversation.Conversation

		BeforeEach(func() {
			saved = testutils.NewTestConversation("Stored", "hi", "hello")
			Expect(driver.Driver.Save(ctx, saved)).To(Succeed())
			start()
		})

		It("switches to a stored conversation", func() {
			Expect(eng.SwitchActive(saved.ID)).To(Succeed())
			snap := eng.Snapshot()
			Expect(snap.Active.ID).To(Equal(saved.ID))
			Expect(snap.Active.Messages).To(HaveLen(2))
			Expect(snap.Switching).To(BeEmpty())

			Expect(eng.Submit("again")).To(Succeed())
			Expect(nextTurn().Request.Messages).To(HaveLen(3))
		})

		It("reports unknown and corrupt conversations", func() {
			err := eng.SwitchActive("missing")
			Expect(engine.IsKind(err, engine.KindValidation)).To(BeTrue())
			Expect(storage.IsNotFound(err)).To(BeTrue())

			driver.PutRaw("broken", []byte("{"))
			err = eng.SwitchActive("broken")
			Expect(engine.IsKind(err, engine.KindCorrupt)).To(BeTrue())
			Expect(eng.Snapshot().Active).To(BeNil())
		})

		It("only switches while idle", func() {
			Expect(eng.Submit("q")).To(Succeed())
			nextTurn()

			err := eng.SwitchActive(saved.ID)
			Expect(errors.Is(err, engine.ErrNotIdle)).To(BeTrue())
			Expect(eng.Snapshot().Active.ID).NotTo(Equal(saved.ID))
		})

		It("creates a conversation that is not listed until its first turn", func() {
			c, err := eng.CreateNew()
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Messages).To(BeEmpty())
			Expect(c.Model).To(Equal("test-model"))

			snap := eng.Snapshot()
			Expect(snap.Active.ID).To(Equal(c.ID))
			Expect(snap.Entries).NotTo(ContainElement(HaveField("ID", c.ID)))
			Expect(driver.SaveCount()).To(BeZero())

			completeTurn("first", "reply")
			Expect(eng.Snapshot().Active.ID).To(Equal(c.ID))
			Eventually(func() []storage.Entry { return eng.Snapshot().Entries }).
				Should(ContainElement(HaveField("ID", c.ID)))
		})

		It("deletes a stored conversation", func() {
			Expect(eng.Delete(saved.ID)).To(Succeed())
			Expect(eng.Snapshot().Entries).NotTo(ContainElement(HaveField("ID", saved.ID)))

			_, err := driver.Load(ctx, saved.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(driver.Deletes()).To(ConsistOf(saved.ID))
		})

		It("deletes the active conversation when idle", func() {
			Expect(eng.SwitchActive(saved.ID)).To(Succeed())
			Expect(eng.Delete(saved.ID)).To(Succeed())
			Expect(eng.Snapshot().Active).To(BeNil())
		})

		It("refuses to delete the conversation whose turn is running", func() {
			Expect(eng.Submit("q")).To(Succeed())
			nextTurn()
			id := eng.Snapshot().Active.ID

			err := eng.Delete(id)
			Expect(engine.IsKind(err, engine.KindValidation)).To(BeTrue())
			Expect(errors.Is(err, engine.ErrTurnActive)).To(BeTrue())

			Expect(eng.Delete(saved.ID)).To(Succeed())
		})

		It("refuses to delete the active conversation while its flush is pending", func() {
			driver.SetSaveError(errors.New("disk on fire"))
			Expect(eng.Submit("q")).To(Succeed())
			t := nextTurn()
			Expect(t.Delta("4")).To(BeTrue())
			t.Finish(nil)
			Eventually(state).Should(Equal(engine.Errored))
			id := eng.Snapshot().Active.ID

			err := eng.Delete(id)
			Expect(engine.IsKind(err, engine.KindValidation)).To(BeTrue())
			Expect(errors.Is(err, engine.ErrNotIdle)).To(BeTrue())

			snap := eng.Snapshot()
			Expect(snap.State).To(Equal(engine.Errored))
			Expect(snap.PendingFlush).To(BeTrue())
			Expect(snap.Active.ID).To(Equal(id))
			Expect(last().Content).To(Equal("4"))
			Expect(driver.Deletes()).To(BeEmpty())

			driver.SetSaveError(nil)
			Expect(eng.RetryFlush()).To(Succeed())
			Eventually(state).Should(Equal(engine.Idle))
			Expect(eng.Delete(id)).To(Succeed())
		})

		It("refuses to delete the active conversation while its save runs", func() {
			driver.Block()
			Expect(eng.Submit("q")).To(Succeed())
			nextTurn().Finish(nil)
			Eventually(state).Should(Equal(engine.Finalizing))
			id := eng.Snapshot().Active.ID

			err := eng.Delete(id)
			Expect(engine.IsKind(err, engine.KindValidation)).To(BeTrue())
			Expect(errors.Is(err, engine.ErrTurnActive)).To(BeTrue())
			Expect(driver.Deletes()).To(BeEmpty())

			driver.Unblock()
			Eventually(state).Should(Equal(engine.Idle))
			Expect(stored(id)()).NotTo(BeNil())
		})

		It("refuses to delete an unknown conversation", func() {
			err := eng.Delete("missing")
			Expect(errors.Is(err, engine.ErrUnknownID)).To(BeTrue())
		})

		It("renames a stored conversation", func() {
			Expect(eng.Rename(saved.ID, "  Renamed  ")).To(Succeed())

			c := stored(saved.ID)()
			Expect(c.Title).To(Equal("Renamed"))
			Eventually(func() []storage.Entry { return eng.Snapshot().Entries }).
				Should(ContainElement(And(HaveField("ID", saved.ID), HaveField("Title", "Renamed"))))
		})

		It("renames the active conversation", func() {
			Expect(eng.SwitchActive(saved.ID)).To(Succeed())
			Expect(eng.Rename(saved.ID, "Active title")).To(Succeed())

			Expect(eng.Snapshot().Active.Title).To(Equal("Active title"))
			Eventually(func() string { return stored(saved.ID)().Title }).Should(Equal("Active title"))
		})

		It("rejects empty titles", func() {
			err := eng.Rename(saved.ID, " ")
			Expect(errors.Is(err, engine.ErrEmptyTitle)).To(BeTrue())
		})
	})

	Describe("Subscribe", func() {
		BeforeEach(start)

		It("delivers the current state and later changes", func() {
			subCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			updates := eng.Subscribe(subCtx)
			first := <-updates
			Expect(first.State).To(Equal(engine.Idle))

			Expect(eng.Submit("hello")).To(Succeed())
			Eventually(updates).Should(Receive(HaveField("State", engine.AwaitingFirstToken)))
		})

		It("closes the channel when the context ends", func() {
			subCtx, cancel := context.WithCancel(ctx)
			updates := eng.Subscribe(subCtx)
			cancel()

			Eventually(func() bool {
				select {
				case _, ok := <-updates:
					return !ok
				default:
					return false
				}
			}).Should(BeTrue())
		})
	})

	Describe("Close", func() {
		It("cancels the running turn and saves what was received", func() {
			start()
			Expect(eng.Submit("tell me")).To(Succeed())
			t := nextTurn()
			Expect(t.Delta("Par")).To(BeTrue())
			id := eng.Snapshot().Active.ID

			Expect(eng.Close(ctx)).To(Succeed())
			eng = nil

			c := stored(id)()
			Expect(c).NotTo(BeNil())
			Expect(c.Messages[1].Content).To(Equal("Par"))
			Expect(c.Messages[1].Status).To(Equal(conversation.StatusCancelled))
		})

		It("rejects commands afterwards", func() {
			start()
			Expect(eng.Close(ctx)).To(Succeed())
			Expect(eng.Close(ctx)).To(Succeed())

			err := eng.Submit("late")
			Expect(errors.Is(err, engine.ErrClosed)).To(BeTrue())
			eng = nil
		})
	})

	Describe("backend monitoring", func() {
		It("reports the probe results", func() {
			config.Monitor = monitor.New(&monitor.Config{Backend: be, Interval: 20 * time.Millisecond})
			start()

			Eventually(func() monitor.Status { return eng.Snapshot().Backend.Status }).
				Should(Equal(monitor.StatusConnected))
			Expect(eng.Snapshot().Backend.ModelNames()).To(ConsistOf("test-model"))

			be.SetModels(nil, errors.New("down"))
			Eventually(func() monitor.Status { return eng.Snapshot().Backend.Status }).
				Should(Equal(monitor.StatusDisconnected))
		})
	})
})
