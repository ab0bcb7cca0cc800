package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vincenthz/ThinkMate/pkg/llm"
)

// EventType discriminates Event.
type EventType int

const (
	EventDelta EventType = iota + 1
	EventDone
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one element of a Stream. A stream delivers zero or more
// EventDelta followed by at most one of EventDone or EventFailed, then the
// channel is closed.
type Event struct {
	Type EventType

	// Text is the next contiguous fragment (EventDelta).
	Text string

	// Completion carries backend metadata (EventDone), possibly nil.
	Completion *llm.Completion

	// Failure explains the failure (EventFailed).
	Failure *Failure
}

// Emit hands one text fragment to the stream consumer. It blocks until the
// consumer receives the fragment and returns false once the stream has been
// cancelled, in which case the producer should stop.
type Emit func(text string) bool

// Producer performs the backend I/O for one stream. It returns the
// completion metadata on success, or the error that ended the stream.
type Producer func(ctx context.Context, emit Emit) (*llm.Completion, error)

// Stream is a handle on one in-flight completion.
type Stream struct {
	events chan Event
	stop   chan struct{}
	done   chan struct{}

	stopOnce sync.Once
	cancel   context.CancelFunc

	// mu serializes delivery against Cancel so that once Cancel returns no
	// further event can be handed to the consumer.
	mu        sync.Mutex
	cancelled atomic.Bool
}

// Start runs produce in its own goroutine and returns the handle for its
// events. Events are delivered unbuffered, in emission order.
func Start(parent context.Context, produce Producer) *Stream {
	ctx, cancel := context.WithCancel(parent)

	s := &Stream{
		events: make(chan Event),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go s.run(ctx, produce)

	return s
}

// Failed returns a stream that immediately reports f. Backends use it when a
// request cannot even be built.
func Failed(f *Failure) *Stream {
	return Start(context.Background(), func(context.Context, Emit) (*llm.Completion, error) {
		return nil, f
	})
}

func (s *Stream) run(ctx context.Context, produce Producer) {
	defer close(s.done)
	defer close(s.events)
	defer s.cancel()

	completion, err := produce(ctx, func(text string) bool {
		return s.deliver(Event{Type: EventDelta, Text: text})
	})

	switch {
	case err == nil:
		s.deliver(Event{Type: EventDone, Completion: completion})
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Cancelled by Cancel or by the parent context; nothing to report.
	default:
		s.deliver(Event{Type: EventFailed, Failure: Classify(err)})
	}
}

func (s *Stream) deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled.Load() {
		return false
	}

	select {
	case s.events <- ev:
		return true
	case <-s.stop:
		return false
	}
}

// Events returns the channel of stream events. It is closed after the
// terminal event, or after cancellation once the producer has returned.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Done is closed once the producer has returned and the underlying
// connection has been released.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Cancel aborts the stream. It is idempotent and safe to call after the
// stream finished. Once Cancel returns no further event is delivered, even
// if the transport still has buffered data.
func (s *Stream) Cancel() {
	s.stopOnce.Do(func() {
		// Unblock a pending delivery before taking the lock.
		close(s.stop)
		s.cancel()
	})

	s.mu.Lock()
	s.cancelled.Store(true)
	s.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (s *Stream) Cancelled() bool {
	return s.cancelled.Load()
}
