// Package engine holds the conversation engine: the owner of the active
// conversation, its turn state machine, the registry of stored
// conversations and the background writes that persist them.
//
// All state is owned by a single loop goroutine. Public methods post a
// command to the loop and wait for its answer, and backend streams, storage
// writes, listings and probes deliver their results back to the loop, so
// the state is never touched concurrently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/eventstream"
	"github.com/vincenthz/ThinkMate/pkg/eventstream/nop"
	"github.com/vincenthz/ThinkMate/pkg/llm"
	"github.com/vincenthz/ThinkMate/pkg/llm/backend"
	"github.com/vincenthz/ThinkMate/pkg/logger"
	"github.com/vincenthz/ThinkMate/pkg/monitor"
	"github.com/vincenthz/ThinkMate/pkg/registry"
	"github.com/vincenthz/ThinkMate/pkg/storage"
	"github.com/vincenthz/ThinkMate/pkg/storage/writer"
)

const publishTimeout = 5 * time.Second

// Config is the configuration for an Engine.
type Config struct {
	// Backend streams completions. Required.
	Backend backend.Backend

	// Driver stores conversations. Required. The engine does not close it.
	Driver storage.Driver

	// Publisher receives an event for every persisted turn. Defaults to a
	// publisher that drops events. The engine does not close it.
	Publisher eventstream.Publisher

	// Monitor, when set, is run by the engine until Close and its state is
	// reported in snapshots.
	Monitor *monitor.Monitor

	// Model is used for new conversations and for stored ones that name no
	// model.
	Model string

	// SystemPrompt is sent ahead of the history on every request.
	SystemPrompt string

	// TitleLength bounds titles derived from the first prompt.
	TitleLength int

	// Options tune generation on every request.
	Options llm.Options

	// ActiveID resumes a stored conversation. A missing or unreadable
	// record is logged and the engine starts without an active conversation.
	ActiveID string

	// WriterWorkers is the number of storage write workers.
	WriterWorkers uint

	Logger *slog.Logger
}

// Engine is the conversation engine.
type Engine struct {
	backend   backend.Backend
	driver    storage.Driver
	publisher eventstream.Publisher
	writer    *writer.Pool
	registry  *registry.Registry
	logger    *slog.Logger

	model        string
	systemPrompt string
	titleLength  int
	options      llm.Options

	ctx    context.Context
	cancel context.CancelFunc

	requests  chan request
	loopDone  chan struct{}
	last      atomic.Pointer[Snapshot]
	publishes sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	// Everything below is owned by the loop goroutine.

	active *conversation.Conversation
	state  TurnState
	turn   *turn
	stream *backend.Stream
	events <-chan backend.Event

	// revision counts changes to conversations and numbers storage jobs;
	// dirty is the revision of the last change to active and saved the
	// newest revision of active known to be stored.
	revision uint64
	dirty    uint64
	saved    uint64
	flushErr error
	pending  []pendingEvent

	lastErr      *Error
	banner       string
	backendState monitor.State
	switching    string

	waiters []waiter
	outbox  []func()

	listing bool
	relist  bool
	listed  chan listResult
	loaded  chan loadResult
	watch   <-chan struct{}
	probes  <-chan monitor.State

	subs    broadcaster
	seq     uint64
	exiting bool
}

type request struct {
	run  func(done func(error))
	done chan error
}

// New creates an engine, lists the store and starts the owner loop.
func New(ctx context.Context, c *Config) (*Engine, error) {
	if c.Backend == nil {
		return nil, errors.New("engine requires a backend")
	}
	if c.Driver == nil {
		return nil, errors.New("engine requires a storage driver")
	}

	log := logger.OrNop(c.Logger)

	publisher := c.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher(log)
	}

	titleLength := c.TitleLength
	if titleLength <= 0 {
		titleLength = conversation.DefaultTitleLength
	}

	pool, err := writer.NewPool(&writer.Config{
		Driver:     c.Driver,
		NumWorkers: c.WriterWorkers,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating writer pool: %w", err)
	}

	reg := registry.New(c.Driver, log)
	if err := reg.Refresh(ctx); err != nil {
		_ = pool.Close(ctx)
		return nil, &Error{Kind: KindPersistence, Op: "list", Err: err}
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		backend:      c.Backend,
		driver:       c.Driver,
		publisher:    publisher,
		writer:       pool,
		registry:     reg,
		logger:       log.With("component", "engine"),
		model:        c.Model,
		systemPrompt: c.SystemPrompt,
		titleLength:  titleLength,
		options:      c.Options,
		ctx:          loopCtx,
		cancel:       cancel,
		requests:     make(chan request),
		loopDone:     make(chan struct{}),
		listed:       make(chan listResult, 1),
		loaded:       make(chan loadResult, 1),
	}

	if c.ActiveID != "" {
		e.resume(ctx, c.ActiveID)
	}

	if w, ok := c.Driver.(storage.Watcher); ok {
		changes, err := w.Watch(loopCtx)
		if err != nil {
			e.logger.Warn("not watching storage for external changes", "error", err)
		} else {
			e.watch = changes
		}
	}

	if c.Monitor != nil {
		e.probes = c.Monitor.Updates()
		go c.Monitor.Run(loopCtx)
	}

	e.broadcast()
	go e.loop()

	return e, nil
}

func (e *Engine) resume(ctx context.Context, id string) {
	c, err := e.registry.Load(ctx, id)
	switch {
	case err == nil:
		e.active = c
		e.logger.Info("resumed conversation", "id", id, "messages", len(c.Messages))
	case storage.IsNotFound(err):
		e.logger.Info("previous conversation no longer exists", "id", id)
	default:
		e.logger.Warn("could not resume conversation", "id", id, "error", err)
		e.lastErr = loadError("resume", err)
	}
}

// Submit appends text as a user message and starts streaming the reply. A
// conversation is created when none is active.
func (e *Engine) Submit(text string) error {
	return e.exec("submit", func(done func(error)) {
		done(e.submit(text))
	})
}

// Cancel aborts the running turn. The partial reply is kept and marked
// cancelled. Cancel is a no-op when no turn is streaming.
func (e *Engine) Cancel() error {
	return e.exec("cancel", func(done func(error)) {
		done(e.cancelTurn())
	})
}

// RetryLastTurn drops a failed reply and requests a new one for the same
// prompt.
func (e *Engine) RetryLastTurn() error {
	return e.exec("retry", func(done func(error)) {
		done(e.retryLastTurn())
	})
}

// RetryFlush saves the active conversation again after a failed save.
func (e *Engine) RetryFlush() error {
	return e.exec("flush", func(done func(error)) {
		if e.flushErr == nil {
			done(validation("flush", ErrNothingToFlush))
			return
		}
		e.flush()
		done(nil)
	})
}

// SwitchActive loads a stored conversation and makes it active. It returns
// once the load finished.
func (e *Engine) SwitchActive(id string) error {
	return e.exec("switch", func(done func(error)) {
		e.switchActive(id, done)
	})
}

// CreateNew makes a fresh, unsaved conversation active and returns a copy
// of it.
func (e *Engine) CreateNew() (*conversation.Conversation, error) {
	var c *conversation.Conversation
	err := e.exec("new", func(done func(error)) {
		var err error
		c, err = e.createNew()
		done(err)
	})
	return c, err
}

// Delete removes a conversation from storage. It returns once the delete
// reached storage.
func (e *Engine) Delete(id string) error {
	return e.exec("delete", func(done func(error)) {
		e.deleteConversation(id, done)
	})
}

// Rename sets the title of a conversation. Renaming the active conversation
// returns at once; renaming a stored one returns once it was saved.
func (e *Engine) Rename(id, title string) error {
	return e.exec("rename", func(done func(error)) {
		e.rename(id, title, done)
	})
}

// Snapshot returns the most recently published state.
func (e *Engine) Snapshot() Snapshot {
	return *e.last.Load()
}

// Subscribe returns a channel that receives the current snapshot and then
// every newer one, keeping only the latest undelivered. The channel is
// closed when ctx is done or the engine is closed.
func (e *Engine) Subscribe(ctx context.Context) <-chan Snapshot {
	var (
		id uint64
		ch <-chan Snapshot
	)

	err := e.exec("subscribe", func(done func(error)) {
		id, ch = e.subs.add(e.snapshot())
		done(nil)
	})
	if err != nil {
		closed := make(chan Snapshot)
		close(closed)
		return closed
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = e.exec("unsubscribe", func(done func(error)) {
				e.subs.remove(id)
				done(nil)
			})
		case <-e.loopDone:
		}
	}()

	return ch
}

// Close cancels a running turn, stops the loop and waits for pending
// storage writes, including a final save of the active conversation, until
// ctx is done. It returns the failures of writes that finished during Close.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		_ = e.exec("close", func(done func(error)) {
			e.shutdown()
			done(nil)
		})
		<-e.loopDone

		err := e.writer.Close(ctx)
		e.cancel()

		published := make(chan struct{})
		go func() {
			e.publishes.Wait()
			close(published)
		}()
		select {
		case <-published:
		case <-ctx.Done():
			e.logger.Warn("turn events still publishing at shutdown")
		}

		if err != nil {
			e.closeErr = &Error{Kind: KindPersistence, Op: "close", Err: err}
		}
	})
	return e.closeErr
}

func (e *Engine) exec(op string, run func(done func(error))) error {
	req := request{run: run, done: make(chan error, 1)}

	select {
	case e.requests <- req:
	case <-e.loopDone:
		return validation(op, ErrClosed)
	}

	select {
	case err := <-req.done:
		return err
	case <-e.loopDone:
		select {
		case err := <-req.done:
			return err
		default:
			return validation(op, ErrClosed)
		}
	}
}

func (e *Engine) loop() {
	defer close(e.loopDone)
	defer e.subs.closeAll()

	for !e.exiting {
		select {
		case req := <-e.requests:
			req.run(func(err error) {
				e.outbox = append(e.outbox, func() { req.done <- err })
			})
		case ev, ok := <-e.events:
			e.handleEvent(ev, ok)
		case r := <-e.writer.Results():
			e.handleResult(r)
		case res := <-e.loaded:
			e.handleLoaded(res)
		case res := <-e.listed:
			e.handleListed(res)
		case st := <-e.probes:
			e.backendState = st
		case _, ok := <-e.watch:
			if !ok {
				e.watch = nil
				continue
			}
			e.scheduleList()
		}

		e.broadcast()
		e.deliver()
	}

	for _, w := range e.waiters {
		w.reply(validation(w.name, ErrClosed))
	}
	e.waiters = nil
	e.deliver()
}

// broadcast publishes the state before any reply is delivered, so a caller
// returning from a command observes its effect in Snapshot.
func (e *Engine) broadcast() {
	e.seq++
	s := e.snapshot()
	e.last.Store(&s)
	e.subs.publish(s)
}

func (e *Engine) deliver() {
	for _, f := range e.outbox {
		f()
	}
	e.outbox = nil
}

func (e *Engine) shutdown() {
	switch e.state {
	case AwaitingFirstToken, Streaming:
		_ = e.cancelTurn()
	default:
		if e.flushErr != nil || e.saved < e.dirty {
			e.flush()
		}
	}
	e.exiting = true
	e.logger.Debug("engine loop stopping", "state", e.state)
}
