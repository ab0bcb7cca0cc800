package engine

import (
	"slices"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/monitor"
	"github.com/vincenthz/ThinkMate/pkg/storage"
)

// Snapshot is a copy of the engine state taken on the owner loop. Consumers
// share snapshots and must treat them as read-only.
type Snapshot struct {
	// Seq increases with every published snapshot.
	Seq uint64

	State TurnState

	// Active is a copy of the active conversation, nil when there is none.
	Active *conversation.Conversation

	// Entries lists stored conversations, most recently updated first.
	Entries []storage.Entry

	// Skipped is the number of corrupt records the last listing skipped.
	Skipped int

	// Switching is the id SwitchActive is loading, if any.
	Switching string

	// PendingFlush is set while the last save of the active conversation
	// failed and has not been retried successfully.
	PendingFlush bool

	// Err is the last failure surfaced to the user. A new turn clears it.
	Err *Error

	// Banner is a persistent notice, set while storage reports a full disk.
	Banner string

	Backend monitor.State
}

func (e *Engine) snapshot() Snapshot {
	s := Snapshot{
		Seq:          e.seq,
		State:        e.state,
		Active:       e.active.Clone(),
		Entries:      e.registry.Entries(),
		Skipped:      e.registry.Skipped(),
		Switching:    e.switching,
		PendingFlush: e.flushErr != nil,
		Err:          e.lastErr,
		Banner:       e.banner,
		Backend:      e.backendState,
	}
	s.Backend.Models = slices.Clone(e.backendState.Models)
	return s
}

// broadcaster hands snapshots to subscribers with latest-value semantics:
// a slow subscriber only ever sees the newest snapshot. It is owned by the
// loop goroutine, the only sender.
type broadcaster struct {
	next uint64
	subs map[uint64]chan Snapshot
}

func (b *broadcaster) add(initial Snapshot) (uint64, <-chan Snapshot) {
	if b.subs == nil {
		b.subs = make(map[uint64]chan Snapshot)
	}
	b.next++
	ch := make(chan Snapshot, 1)
	ch <- initial
	b.subs[b.next] = ch
	return b.next, ch
}

func (b *broadcaster) remove(id uint64) {
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *broadcaster) publish(s Snapshot) {
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (b *broadcaster) closeAll() {
	for id := range b.subs {
		b.remove(id)
	}
}
