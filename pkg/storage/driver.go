// Package storage defines the contract every conversation store implements.
package storage

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
)

// Driver persists whole conversations keyed by identifier. Implementations
// are safe for concurrent use.
type Driver interface {
	// Save writes c, replacing any existing record with the same id. A
	// concurrent reader observes either the previous record or the new one,
	// never a partial write.
	Save(ctx context.Context, c *conversation.Conversation) error

	// Load returns the stored conversation. It returns NotFoundError when no
	// record exists and CorruptRecordError when the record cannot be decoded.
	Load(ctx context.Context, id string) (*conversation.Conversation, error)

	// List summarizes every readable record, most recently updated first.
	// Undecodable records are skipped and counted rather than failing the
	// listing.
	List(ctx context.Context) (*ListResult, error)

	// Delete removes the record. It returns NotFoundError when absent.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the driver.
	Close() error
}

// Watcher is implemented by drivers that can notice records changed by
// another process. Each receive on the returned channel means "list again";
// notifications are coalesced. The channel is closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Entry is the lightweight summary used to list conversations without
// carrying their messages around.
type Entry struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ListResult is the outcome of Driver.List.
type ListResult struct {
	Entries []Entry `json:"entries"`

	// Skipped counts records that were present but could not be decoded.
	Skipped int `json:"skipped"`
}

// EntryOf summarizes c.
func EntryOf(c *conversation.Conversation) Entry {
	return Entry{
		ID:           c.ID,
		Title:        c.DisplayTitle(),
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
	}
}

// SortEntries orders entries most recently updated first. Ties are broken
// by id, newest first, since ids are time ordered.
func SortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
