// Package file stores each conversation as a JSON record in a directory,
// one file per identifier.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/logger"
	"github.com/vincenthz/ThinkMate/pkg/storage"
	"github.com/vincenthz/ThinkMate/pkg/utils"
)

const (
	recordExt = ".json"

	dirPerm  = 0o700
	filePerm = 0o600
)

// Driver implements storage.Driver on a directory of record files. Writes go
// to a temporary file in the same directory and are renamed into place.
type Driver struct {
	dir    string
	logger *slog.Logger
}

// NewDriver creates the history directory if needed and returns a driver
// rooted at it.
func NewDriver(dir string, log *slog.Logger) (*Driver, error) {
	if dir == "" {
		return nil, errors.New("history directory is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	return &Driver{
		dir:    dir,
		logger: logger.OrNop(log).With("component", "storage", "driver", "file"),
	}, nil
}

// Dir returns the directory records are kept in.
func (d *Driver) Dir() string {
	return d.dir
}

// Save atomically replaces the record for c.
func (d *Driver) Save(_ context.Context, c *conversation.Conversation) error {
	path, err := d.path(c.ID)
	if err != nil {
		return err
	}

	data, err := conversation.Encode(c)
	if err != nil {
		return err
	}

	if err := utils.WriteFileAtomic(path, data, filePerm); err != nil {
		return fmt.Errorf("saving conversation %s: %w", c.ID, err)
	}

	d.logger.Debug("saved conversation",
		"id", c.ID,
		"messages", len(c.Messages),
		"bytes", len(data),
	)
	return nil
}

// Load reads and decodes the record for id.
func (d *Driver) Load(_ context.Context, id string) (*conversation.Conversation, error) {
	path, err := d.path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("reading conversation %s: %w", id, err)
	}

	return decode(id, data)
}

// List decodes every record in the directory. Temporary files left by an
// interrupted Save are ignored; undecodable records are counted as skipped.
func (d *Driver) List(ctx context.Context) (*storage.ListResult, error) {
	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("reading history directory: %w", err)
	}

	result := &storage.ListResult{Entries: make([]storage.Entry, 0, len(dirEntries))}
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, ok := recordID(de.Name())
		if !ok || de.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(d.dir, de.Name()))
		if err != nil {
			d.logger.Warn("skipping unreadable record", "id", id, "error", err)
			result.Skipped++
			continue
		}

		c, err := decode(id, data)
		if err != nil {
			d.logger.Warn("skipping corrupt record", "id", id, "error", err)
			result.Skipped++
			continue
		}

		result.Entries = append(result.Entries, storage.EntryOf(c))
	}

	storage.SortEntries(result.Entries)
	return result, nil
}

// Delete removes the record for id.
func (d *Driver) Delete(_ context.Context, id string) error {
	path, err := d.path(id)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return storage.NotFoundError{ID: id}
	}
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}

	d.logger.Debug("deleted conversation", "id", id)
	return nil
}

// Close is a no-op; files are not held open between calls.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) path(id string) (string, error) {
	if !validID(id) {
		return "", fmt.Errorf("invalid conversation id %q", id)
	}
	return filepath.Join(d.dir, id+recordExt), nil
}

func decode(id string, data []byte) (*conversation.Conversation, error) {
	c, err := conversation.Decode(data)
	if err != nil {
		return nil, storage.CorruptRecordError{ID: id, Err: err}
	}
	if c.ID != id {
		return nil, storage.CorruptRecordError{
			ID:  id,
			Err: fmt.Errorf("record holds conversation %s", c.ID),
		}
	}
	return c, nil
}

// recordID maps a directory entry name to a conversation id.
func recordID(name string) (string, bool) {
	id, ok := strings.CutSuffix(name, recordExt)
	if !ok || !validID(id) {
		return "", false
	}
	return id, true
}

func validID(id string) bool {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
