package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vincenthz/ThinkMate/pkg/llm"
	"github.com/vincenthz/ThinkMate/pkg/llm/backend"
)

// ScriptedBackend is a backend.Backend driven step by step from a test.
// Every BeginStream call produces a ScriptedTurn that the test obtains with
// NextTurn and then feeds deltas and a terminal outcome to.
type ScriptedBackend struct {
	turns chan *ScriptedTurn

	mu        sync.Mutex
	requests  []*llm.ChatRequest
	models    []llm.Model
	modelsErr error
}

// NewScriptedBackend creates a scripted backend advertising one model.
func NewScriptedBackend() *ScriptedBackend {
	return &ScriptedBackend{
		turns:  make(chan *ScriptedTurn, 16),
		models: []llm.Model{{Name: "test-model"}},
	}
}

func (b *ScriptedBackend) Name() string {
	return "scripted"
}

// BeginStream records req and hands a new turn to NextTurn.
func (b *ScriptedBackend) BeginStream(ctx context.Context, req *llm.ChatRequest) *backend.Stream {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	turn := &ScriptedTurn{
		Request: req,
		deltas:  make(chan string),
		end:     make(chan result, 1),
		done:    make(chan struct{}),
	}

	turn.Stream = backend.Start(ctx, turn.produce)
	b.turns <- turn
	return turn.Stream
}

// ListModels returns the configured models or error.
func (b *ScriptedBackend) ListModels(context.Context) ([]llm.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.models, b.modelsErr
}

// SetModels changes what ListModels reports.
func (b *ScriptedBackend) SetModels(models []llm.Model, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.models, b.modelsErr = models, err
}

// NextTurn waits for the next BeginStream call. It returns nil if none
// happens within timeout.
func (b *ScriptedBackend) NextTurn(timeout time.Duration) *ScriptedTurn {
	select {
	case t := <-b.turns:
		return t
	case <-time.After(timeout):
		return nil
	}
}

// Requests returns every request received, in order.
func (b *ScriptedBackend) Requests() []*llm.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*llm.ChatRequest(nil), b.requests...)
}

type result struct {
	completion *llm.Completion
	err        error
}

// ScriptedTurn is one stream opened against a ScriptedBackend.
type ScriptedTurn struct {
	Request *llm.ChatRequest
	Stream  *backend.Stream

	deltas chan string
	end    chan result
	done   chan struct{}
}

func (t *ScriptedTurn) produce(ctx context.Context, emit backend.Emit) (*llm.Completion, error) {
	defer close(t.done)

	for {
		select {
		case text := <-t.deltas:
			if !emit(text) {
				return nil, context.Canceled
			}
		case r := <-t.end:
			return r.completion, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Delta hands text to the stream. It returns false if the stream already
// ended, e.g. because it was cancelled.
func (t *ScriptedTurn) Delta(text string) bool {
	select {
	case t.deltas <- text:
		return true
	case <-t.done:
		return false
	}
}

// Finish ends the stream with Done.
func (t *ScriptedTurn) Finish(completion *llm.Completion) {
	t.end <- result{completion: completion}
}

// Fail ends the stream with err, classified as a backend failure.
func (t *ScriptedTurn) Fail(err error) {
	if err == nil {
		err = errors.New("scripted failure")
	}
	t.end <- result{err: err}
}

// Done is closed once the producer has returned.
func (t *ScriptedTurn) Done() <-chan struct{} {
	return t.done
}
