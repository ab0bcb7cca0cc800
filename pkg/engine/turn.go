package engine

import (
	"context"
	"strings"
	"time"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/eventstream"
	"github.com/vincenthz/ThinkMate/pkg/ident"
	"github.com/vincenthz/ThinkMate/pkg/llm"
	"github.com/vincenthz/ThinkMate/pkg/llm/backend"
)

// turn tracks the request behind the active assistant message.
type turn struct {
	userID      string
	assistantID string
	model       string
	startedAt   time.Time
}

// pendingEvent is published once revision is stored. Events wait in
// revision order.
type pendingEvent struct {
	revision uint64
	event    *eventstream.TurnCompletedEvent
}

// checkTurn rejects commands that need the stream slot while it is taken.
func (e *Engine) checkTurn(op string) error {
	if e.switching != "" {
		return validation(op, ErrSwitching)
	}
	if e.stream != nil || e.state.TurnActive() || e.state == Finalizing {
		return validation(op, ErrTurnActive)
	}
	return nil
}

func (e *Engine) submit(text string) error {
	const op = "submit"

	text = strings.TrimSpace(text)
	if text == "" {
		return validation(op, ErrEmptyInput)
	}
	if err := e.checkTurn(op); err != nil {
		return err
	}

	if e.active == nil {
		e.active = e.registry.CreateNew(e.model)
		e.resetTracking()
	}

	if e.flushErr != nil {
		e.flush()
	}

	now := time.Now()
	if e.active.Title == "" && !hasRole(e.active, llm.RoleUser) {
		e.active.Title = conversation.DeriveTitle(text, e.titleLength)
	}

	user := conversation.NewMessage(llm.RoleUser, text, conversation.StatusComplete, now)
	e.active.Messages = append(e.active.Messages, user)

	e.startTurn(user.ID, now)
	return nil
}

func (e *Engine) retryLastTurn() error {
	const op = "retry"

	if err := e.checkTurn(op); err != nil {
		return err
	}
	if e.active == nil {
		return validation(op, ErrNoConversation)
	}

	last := e.active.Last()
	if last == nil || last.Role != llm.RoleAssistant || last.Status != conversation.StatusError {
		return validation(op, ErrNothingToRetry)
	}

	e.active.Messages = e.active.Messages[:len(e.active.Messages)-1]

	userID := ""
	if prev := e.active.Last(); prev != nil && prev.Role == llm.RoleUser {
		userID = prev.ID
	}

	e.startTurn(userID, time.Now())
	return nil
}

func (e *Engine) startTurn(userID string, now time.Time) {
	model := e.active.Model
	if model == "" {
		model = e.model
	}

	req := &llm.ChatRequest{
		Model:    model,
		System:   e.systemPrompt,
		Messages: e.active.History(),
		Options:  e.options,
	}

	assistant := conversation.NewMessage(llm.RoleAssistant, "", conversation.StatusPending, now)
	e.active.Messages = append(e.active.Messages, assistant)
	e.active.UpdatedAt = now.UTC()
	e.touch()

	e.lastErr = nil
	e.turn = &turn{
		userID:      userID,
		assistantID: assistant.ID,
		model:       model,
		startedAt:   now,
	}
	e.stream = e.backend.BeginStream(e.ctx, req)
	e.events = e.stream.Events()
	e.state = AwaitingFirstToken

	e.logger.Info("turn started",
		"conversation", e.active.ID,
		"backend", e.backend.Name(),
		"model", model,
		"history", len(req.Messages),
	)
}

// reply returns the assistant message of the running turn.
func (e *Engine) reply() *conversation.Message {
	if e.turn == nil || e.active == nil {
		return nil
	}
	m := e.active.Last()
	if m == nil || m.ID != e.turn.assistantID {
		return nil
	}
	return m
}

func (e *Engine) handleEvent(ev backend.Event, ok bool) {
	if !ok {
		e.stream, e.events = nil, nil
		switch e.state {
		case AwaitingFirstToken, Streaming:
			// Closed with no terminal event: the engine context was cancelled.
			e.markCancelled()
			e.state = Cancelling
			e.flush()
		}
		e.settle()
		return
	}

	msg := e.reply()
	if msg == nil || (e.state != AwaitingFirstToken && e.state != Streaming) {
		e.logger.Debug("dropping stream event", "type", ev.Type, "state", e.state)
		return
	}

	switch ev.Type {
	case backend.EventDelta:
		msg.Content += ev.Text
		msg.Status = conversation.StatusStreaming
		e.state = Streaming
		e.touch()

	case backend.EventDone:
		msg.Status = conversation.StatusComplete
		if ev.Completion != nil {
			msg.Usage = ev.Completion.Usage
		}
		e.logger.Info("turn completed", "conversation", e.active.ID, "chars", len(msg.Content))
		e.endTurn(Finalizing)

	case backend.EventFailed:
		failure := ev.Failure
		if failure == nil {
			failure = backend.NewProtocolError("stream failed without detail")
		}
		msg.Status = conversation.StatusError
		msg.Error = failure.Error()
		e.lastErr = &Error{Kind: KindTransport, Op: "stream", Err: failure}
		e.logger.Warn("turn failed", "conversation", e.active.ID, "kind", failure.Kind, "error", failure)
		e.endTurn(Errored)
	}
}

// endTurn handles a terminal stream event. The producer has returned by
// then, so the stream slot is released at once.
func (e *Engine) endTurn(next TurnState) {
	e.stream, e.events = nil, nil
	e.active.UpdatedAt = time.Now().UTC()
	e.touch()
	e.state = next
	e.queueEvent()
	e.flush()
}

func (e *Engine) cancelTurn() error {
	switch e.state {
	case AwaitingFirstToken, Streaming:
	default:
		return nil
	}

	// No delta is delivered once Cancel returns, so the kept content is
	// exactly what was shown.
	e.stream.Cancel()
	e.markCancelled()
	e.state = Cancelling
	e.queueEvent()
	e.flush()

	e.logger.Info("turn cancelled", "conversation", e.active.ID)
	return nil
}

func (e *Engine) markCancelled() {
	if msg := e.reply(); msg != nil && !msg.Status.Terminal() {
		msg.Status = conversation.StatusCancelled
		e.active.UpdatedAt = time.Now().UTC()
		e.touch()
	}
}

// settle moves a finished turn to Idle or Errored once its flush and its
// stream are both resolved.
func (e *Engine) settle() {
	flushed := e.flushErr == nil && e.saved >= e.dirty

	switch e.state {
	case Finalizing, Errored:
		if flushed {
			e.state = Idle
			e.turn = nil
		}
	case Cancelling:
		if e.stream != nil {
			return
		}
		switch {
		case flushed:
			e.state = Idle
			e.turn = nil
		case e.flushErr != nil:
			e.state = Errored
		}
	}
}

func (e *Engine) queueEvent() {
	msg := e.reply()
	if msg == nil {
		return
	}

	prompt := ""
	for _, m := range e.active.Messages {
		if m.ID == e.turn.userID {
			prompt = m.Content
			break
		}
	}

	completed := time.Now()
	e.pending = append(e.pending, pendingEvent{
		revision: e.dirty,
		event: &eventstream.TurnCompletedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeTurnCompleted,
			EventID:       ident.New(),
			Source: eventstream.EventSource{
				Backend: e.backend.Name(),
				Model:   e.turn.model,
			},
			Conversation: eventstream.ConversationMeta{
				ID:           e.active.ID,
				Title:        e.active.DisplayTitle(),
				MessageCount: len(e.active.Messages),
			},
			Turn: eventstream.TurnMeta{
				UserMessageID:      e.turn.userID,
				AssistantMessageID: msg.ID,
				Status:             msg.Status,
				Prompt:             prompt,
				Response:           msg.Content,
				Error:              msg.Error,
				StartedAt:          e.turn.startedAt.UTC(),
				CompletedAt:        completed.UTC(),
				DurationMs:         completed.Sub(e.turn.startedAt).Milliseconds(),
				Usage:              msg.Usage,
			},
		},
	})
}

// publishPending hands every turn event whose turn is stored to the
// publisher, oldest first. Publishing never blocks the loop and its
// failures are only logged.
func (e *Engine) publishPending() {
	n := 0
	for n < len(e.pending) && e.pending[n].revision <= e.saved {
		n++
	}
	if n == 0 {
		return
	}
	ready := make([]*eventstream.TurnCompletedEvent, n)
	for i := range ready {
		ready[i] = e.pending[i].event
	}
	e.pending = append(e.pending[:0], e.pending[n:]...)

	e.publishes.Add(1)
	go func() {
		defer e.publishes.Done()

		for _, event := range ready {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			event.EmittedAt = time.Now().UTC()
			if err := e.publisher.PublishTurn(ctx, event); err != nil {
				e.logger.Warn("publishing turn event", "event_id", event.EventID, "error", err)
			}
			cancel()
		}
	}()
}

func hasRole(c *conversation.Conversation, role string) bool {
	for _, m := range c.Messages {
		if m.Role == role {
			return true
		}
	}
	return false
}
