package engine

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/registry"
	"github.com/vincenthz/ThinkMate/pkg/storage"
	"github.com/vincenthz/ThinkMate/pkg/storage/writer"
)

const (
	diskFullBanner = "Disk full: conversations cannot be saved until space is freed"

	lagPrefix = "not saved: "
)

// waiter is a command whose reply waits for a storage job.
type waiter struct {
	name     string
	op       writer.Op
	id       string
	revision uint64
	reply    func(error)
}

type listResult struct {
	res *storage.ListResult
	err error
}

type loadPurpose int

const (
	loadSwitch loadPurpose = iota + 1
	loadRename
)

type loadResult struct {
	purpose loadPurpose
	id      string
	title   string
	conv    *conversation.Conversation
	err     error
	reply   func(error)
}

func (e *Engine) touch() {
	e.revision++
	e.dirty = e.revision
}

// resetTracking marks the active conversation as matching storage.
func (e *Engine) resetTracking() {
	e.revision++
	e.dirty = e.revision
	e.saved = e.revision
	e.flushErr = nil
	e.pending = nil
	e.turn = nil
	e.state = Idle
}

// flush queues a save of the active conversation. Conversations without
// messages are never written.
func (e *Engine) flush() {
	if e.active == nil || len(e.active.Messages) == 0 {
		return
	}

	job := writer.Job{
		Op:           writer.OpSave,
		ID:           e.active.ID,
		Conversation: persistable(e.active),
		Revision:     e.dirty,
	}
	if err := e.writer.Enqueue(job); err != nil {
		e.flushFailed(err)
	}
}

// persistable copies c without the in-memory persistence lag annotations.
func persistable(c *conversation.Conversation) *conversation.Conversation {
	out := c.Clone()
	for i := range out.Messages {
		if out.Messages[i].Status == conversation.StatusComplete {
			out.Messages[i].Error = ""
		}
	}
	return out
}

func (e *Engine) handleResult(r writer.Result) {
	e.answerWaiters(r)

	if r.Err != nil {
		e.logger.Error("storage write failed", "op", r.Op, "id", r.ID, "revision", r.Revision, "error", r.Err)
		if errors.Is(r.Err, syscall.ENOSPC) {
			e.banner = diskFullBanner
		}
	} else {
		if r.Op == writer.OpSave && e.banner != "" {
			e.banner = ""
		}
		e.scheduleList()
	}

	if e.active == nil || r.ID != e.active.ID || r.Op != writer.OpSave || r.Revision < e.saved {
		return
	}

	if r.Err != nil {
		e.flushFailed(r.Err)
		return
	}

	e.saved = r.Revision
	e.flushErr = nil
	e.clearLag()
	if e.lastErr != nil && e.lastErr.Kind == KindPersistence {
		e.lastErr = nil
	}
	e.registry.Upsert(e.active)
	e.publishPending()
	e.settle()
}

func (e *Engine) flushFailed(err error) {
	e.flushErr = err
	e.lastErr = &Error{Kind: KindPersistence, Op: "flush", Err: err}

	if last := e.active.Last(); last != nil && last.Status == conversation.StatusComplete {
		last.Error = lagPrefix + err.Error()
	}

	switch e.state {
	case Idle, Finalizing:
		e.state = Errored
	case Cancelling:
		e.settle()
	}
}

func (e *Engine) clearLag() {
	for i := range e.active.Messages {
		m := &e.active.Messages[i]
		if m.Status == conversation.StatusComplete && strings.HasPrefix(m.Error, lagPrefix) {
			m.Error = ""
		}
	}
}

func (e *Engine) answerWaiters(r writer.Result) {
	kept := e.waiters[:0]
	for _, w := range e.waiters {
		if w.id != r.ID || r.Revision < w.revision {
			kept = append(kept, w)
			continue
		}
		switch {
		case w.op != r.Op:
			w.reply(&Error{Kind: KindPersistence, Op: w.name, Err: fmt.Errorf("superseded by %s of %s", r.Op, r.ID)})
		case r.Err != nil:
			w.reply(&Error{Kind: KindPersistence, Op: w.name, Err: r.Err})
		default:
			w.reply(nil)
		}
	}
	e.waiters = kept
}

// scheduleList lists the store off the loop. Requests arriving while a
// listing runs collapse into one more listing.
func (e *Engine) scheduleList() {
	if e.listing {
		e.relist = true
		return
	}
	e.listing = true

	go func() {
		res, err := e.driver.List(e.ctx)
		select {
		case e.listed <- listResult{res: res, err: err}:
		case <-e.ctx.Done():
		}
	}()
}

func (e *Engine) handleListed(l listResult) {
	e.listing = false

	if l.err != nil {
		e.logger.Warn("listing conversations", "error", l.err)
	} else {
		e.registry.Apply(l.res)
	}

	if e.relist {
		e.relist = false
		e.scheduleList()
	}
}

func (e *Engine) load(purpose loadPurpose, id, title string, reply func(error)) {
	go func() {
		c, err := e.driver.Load(e.ctx, id)
		res := loadResult{purpose: purpose, id: id, title: title, conv: c, err: err, reply: reply}
		select {
		case e.loaded <- res:
		case <-e.ctx.Done():
		}
	}()
}

func (e *Engine) handleLoaded(res loadResult) {
	if res.purpose == loadSwitch {
		e.switching = ""
	}

	if res.err != nil {
		err := loadError(opName(res.purpose), res.err)
		if storage.IsCorrupt(res.err) {
			e.scheduleList()
		}
		e.logger.Warn("loading conversation", "id", res.id, "error", res.err)
		res.reply(err)
		return
	}

	switch res.purpose {
	case loadSwitch:
		e.active = res.conv
		e.resetTracking()
		e.lastErr = nil
		e.logger.Info("switched conversation", "id", res.id, "messages", len(res.conv.Messages))
		res.reply(nil)

	case loadRename:
		if e.active != nil && e.active.ID == res.id {
			res.reply(e.renameActive(res.title))
			return
		}
		res.conv.Title = res.title
		res.conv.UpdatedAt = time.Now().UTC()
		e.revision++
		job := writer.Job{Op: writer.OpSave, ID: res.id, Conversation: res.conv, Revision: e.revision}
		if err := e.writer.Enqueue(job); err != nil {
			res.reply(&Error{Kind: KindPersistence, Op: "rename", Err: err})
			return
		}
		e.waiters = append(e.waiters, waiter{name: "rename", op: writer.OpSave, id: res.id, revision: e.revision, reply: res.reply})
	}
}

func opName(p loadPurpose) string {
	if p == loadRename {
		return "rename"
	}
	return "switch"
}

func (e *Engine) switchActive(id string, done func(error)) {
	const op = "switch"

	switch {
	case id == "":
		done(validation(op, ErrUnknownID))
		return
	case e.switching != "":
		done(validation(op, ErrSwitching))
		return
	case e.state != Idle:
		done(validation(op, ErrNotIdle))
		return
	case e.active != nil && e.active.ID == id:
		done(nil)
		return
	}

	e.switching = id
	e.load(loadSwitch, id, "", done)
}

func (e *Engine) createNew() (*conversation.Conversation, error) {
	const op = "new"

	if e.switching != "" {
		return nil, validation(op, ErrSwitching)
	}
	if e.state != Idle {
		return nil, validation(op, ErrNotIdle)
	}

	e.active = e.registry.CreateNew(e.model)
	e.resetTracking()
	e.lastErr = nil
	return e.active.Clone(), nil
}

func (e *Engine) deleteConversation(id string, done func(error)) {
	const op = "delete"

	activeID := ""
	if e.active != nil {
		activeID = e.active.ID
	}

	if err := e.registry.CheckDelete(id, activeID, e.state != Idle); err != nil {
		if errors.Is(err, registry.ErrTurnActive) {
			err = ErrNotIdle
			if e.state.TurnActive() || e.state == Finalizing {
				err = ErrTurnActive
			}
		}
		done(validation(op, err))
		return
	}
	if e.switching == id {
		done(validation(op, ErrSwitching))
		return
	}

	_, listed := e.registry.Get(id)
	if !listed && id != activeID {
		done(validation(op, fmt.Errorf("%w: %s", ErrUnknownID, id)))
		return
	}

	if id == activeID {
		e.active = nil
		e.resetTracking()
	}
	e.registry.Remove(id)

	// Deletes go through the writer so they are ordered after any save of
	// the same conversation still in flight.
	e.revision++
	job := writer.Job{Op: writer.OpDelete, ID: id, Revision: e.revision}
	if err := e.writer.Enqueue(job); err != nil {
		done(&Error{Kind: KindPersistence, Op: op, Err: err})
		return
	}
	e.waiters = append(e.waiters, waiter{name: op, op: writer.OpDelete, id: id, revision: e.revision, reply: done})
	e.logger.Info("deleting conversation", "id", id)
}

func (e *Engine) rename(id, title string, done func(error)) {
	const op = "rename"

	title = strings.TrimSpace(title)
	if title == "" {
		done(validation(op, ErrEmptyTitle))
		return
	}

	if e.active != nil && e.active.ID == id {
		done(e.renameActive(title))
		return
	}

	if _, ok := e.registry.Get(id); !ok {
		done(validation(op, fmt.Errorf("%w: %s", ErrUnknownID, id)))
		return
	}
	if e.switching == id {
		done(validation(op, ErrSwitching))
		return
	}

	e.load(loadRename, id, title, done)
}

func (e *Engine) renameActive(title string) error {
	e.active.Title = title
	e.active.UpdatedAt = time.Now().UTC()
	e.touch()

	// A streaming turn is saved when it ends; saving now would store the
	// partial reply.
	switch e.state {
	case AwaitingFirstToken, Streaming:
	default:
		e.flush()
	}
	return nil
}

func loadError(op string, err error) *Error {
	switch {
	case storage.IsCorrupt(err):
		return &Error{Kind: KindCorrupt, Op: op, Err: err}
	case storage.IsNotFound(err):
		return &Error{Kind: KindValidation, Op: op, Err: err}
	default:
		return &Error{Kind: KindPersistence, Op: op, Err: err}
	}
}
