// Package inmemory provides a map-backed storage driver for tests and
// ephemeral sessions.
package inmemory

import (
	"context"
	"sync"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of records
	mu sync.RWMutex

	// records maps conversation ids to their encoded record
	records map[string][]byte
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[string][]byte),
	}
}

// Save stores c, replacing any previous record.
func (d *Driver) Save(_ context.Context, c *conversation.Conversation) error {
	data, err := conversation.Encode(c)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.records[c.ID] = data
	return nil
}

// Load decodes the record stored under id.
func (d *Driver) Load(_ context.Context, id string) (*conversation.Conversation, error) {
	d.mu.RLock()
	data, ok := d.records[id]
	d.mu.RUnlock()

	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	c, err := conversation.Decode(data)
	if err != nil {
		return nil, storage.CorruptRecordError{ID: id, Err: err}
	}
	return c, nil
}

// List summarizes every record.
func (d *Driver) List(_ context.Context) (*storage.ListResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := &storage.ListResult{Entries: make([]storage.Entry, 0, len(d.records))}
	for _, data := range d.records {
		c, err := conversation.Decode(data)
		if err != nil {
			result.Skipped++
			continue
		}
		result.Entries = append(result.Entries, storage.EntryOf(c))
	}

	storage.SortEntries(result.Entries)
	return result, nil
}

// Delete removes the record stored under id.
func (d *Driver) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.records[id]; !ok {
		return storage.NotFoundError{ID: id}
	}
	delete(d.records, id)
	return nil
}

// PutRaw stores data under id verbatim, bypassing validation. It exists so
// tests can seed corrupt records.
func (d *Driver) PutRaw(id string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.records[id] = data
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
