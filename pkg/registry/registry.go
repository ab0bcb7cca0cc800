// Package registry keeps the summaries of known conversations and decides
// which registry operations are allowed.
//
// A Registry is not safe for concurrent use; the engine owns one and only
// touches it from its owner loop.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/logger"
	"github.com/vincenthz/ThinkMate/pkg/storage"
)

// ErrTurnActive is returned when deleting the conversation whose turn is
// still running.
var ErrTurnActive = errors.New("conversation has an active turn")

// Registry holds the entry list as last reported by storage.Driver.List.
type Registry struct {
	driver storage.Driver
	logger *slog.Logger

	entries []storage.Entry
	skipped int
}

// New creates an empty registry over driver. Call Refresh to populate it.
func New(driver storage.Driver, log *slog.Logger) *Registry {
	return &Registry{
		driver: driver,
		logger: logger.OrNop(log).With("component", "registry"),
	}
}

// Refresh lists the store and replaces the entries.
func (r *Registry) Refresh(ctx context.Context) error {
	res, err := r.driver.List(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	r.Apply(res)
	return nil
}

// Apply replaces the entries with a listing obtained elsewhere, for callers
// that run List off their own goroutine.
func (r *Registry) Apply(res *storage.ListResult) {
	entries := slices.Clone(res.Entries)
	storage.SortEntries(entries)

	r.entries = entries
	r.skipped = res.Skipped

	if res.Skipped > 0 {
		r.logger.Warn("skipped corrupt conversation records", "skipped", res.Skipped)
	}
	r.logger.Debug("registry refreshed", "entries", len(entries), "skipped", res.Skipped)
}

// Entries returns a copy of the entries, most recently updated first.
func (r *Registry) Entries() []storage.Entry {
	return slices.Clone(r.entries)
}

// Skipped is the number of corrupt records seen by the last refresh.
func (r *Registry) Skipped() int {
	return r.skipped
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (storage.Entry, bool) {
	i := slices.IndexFunc(r.entries, func(e storage.Entry) bool { return e.ID == id })
	if i < 0 {
		return storage.Entry{}, false
	}
	return r.entries[i], true
}

// Upsert records c's summary ahead of the next refresh.
func (r *Registry) Upsert(c *conversation.Conversation) {
	entry := storage.EntryOf(c)
	if i := slices.IndexFunc(r.entries, func(e storage.Entry) bool { return e.ID == c.ID }); i >= 0 {
		r.entries[i] = entry
	} else {
		r.entries = append(r.entries, entry)
	}
	storage.SortEntries(r.entries)
}

// Remove drops id ahead of the next refresh.
func (r *Registry) Remove(id string) {
	r.entries = slices.DeleteFunc(r.entries, func(e storage.Entry) bool { return e.ID == id })
}

// CreateNew returns a fresh in-memory conversation. It is not listed or
// persisted until its first turn is flushed.
func (r *Registry) CreateNew(model string) *conversation.Conversation {
	c := conversation.New(model, time.Now())
	r.logger.Debug("created conversation", "id", c.ID, "model", model)
	return c
}

// Load reads a stored conversation.
func (r *Registry) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	return r.driver.Load(ctx, id)
}

// CheckDelete reports whether id may be deleted given the active
// conversation and whether the engine has left Idle for it.
func (r *Registry) CheckDelete(id, activeID string, busy bool) error {
	if id == "" {
		return errors.New("conversation id is required")
	}
	if id == activeID && busy {
		return fmt.Errorf("deleting %s: %w", id, ErrTurnActive)
	}
	return nil
}

// ErrAmbiguous is returned by Resolve when a prefix matches several entries.
var ErrAmbiguous = errors.New("ambiguous conversation reference")

// Resolve finds the entry ref refers to: a 1-based position in entries, a
// full id, or an id prefix matching exactly one entry.
func Resolve(entries []storage.Entry, ref string) (storage.Entry, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return storage.Entry{}, errors.New("conversation reference is required")
	}

	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(entries) {
		return entries[n-1], nil
	}

	var match []storage.Entry
	for _, e := range entries {
		if e.ID == ref {
			return e, nil
		}
		if strings.HasPrefix(e.ID, ref) {
			match = append(match, e)
		}
	}

	switch len(match) {
	case 0:
		return storage.Entry{}, storage.NotFoundError{ID: ref}
	case 1:
		return match[0], nil
	default:
		return storage.Entry{}, fmt.Errorf("%w: %q matches %d conversations", ErrAmbiguous, ref, len(match))
	}
}
