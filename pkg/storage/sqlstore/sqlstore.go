// Package sqlstore implements storage.Driver on database/sql. The SQLite and
// PostgreSQL drivers embed it and differ only in how they open the database
// and in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/logger"
	"github.com/vincenthz/ThinkMate/pkg/storage"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name string

	// Numbered reports whether placeholders are $1, $2, ... rather than ?.
	Numbered bool
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres", Numbered: true}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// The record column holds the full encoded conversation; the other columns
// duplicate what List needs so entries can be ordered by the database.
const schema = `CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	updated_at    BIGINT NOT NULL,
	message_count INTEGER NOT NULL,
	record        TEXT NOT NULL
)`

const (
	upsertQuery = `INSERT INTO conversations (id, title, updated_at, message_count, record)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	title = excluded.title,
	updated_at = excluded.updated_at,
	message_count = excluded.message_count,
	record = excluded.record`

	loadQuery   = `SELECT record FROM conversations WHERE id = ?`
	listQuery   = `SELECT id, record FROM conversations ORDER BY updated_at DESC, id DESC`
	deleteQuery = `DELETE FROM conversations WHERE id = ?`
)

// Store provides conversation persistence over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// New creates the schema if needed and returns a store over db. The store
// owns db and closes it on Close.
func New(ctx context.Context, db *sql.DB, dialect Dialect, log *slog.Logger) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger.OrNop(log).With("component", "storage", "driver", dialect.Name),
	}, nil
}

// DB exposes the underlying handle, mainly for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Save upserts the record for c in a single statement.
func (s *Store) Save(ctx context.Context, c *conversation.Conversation) error {
	data, err := conversation.Encode(c)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.dialect.rebind(upsertQuery),
		c.ID,
		c.DisplayTitle(),
		c.UpdatedAt.UnixNano(),
		len(c.Messages),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("saving conversation %s: %w", c.ID, err)
	}

	s.logger.Debug("saved conversation", "id", c.ID, "messages", len(c.Messages))
	return nil
}

// Load decodes the record stored under id.
func (s *Store) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	var record string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(loadQuery), id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}

	return decode(id, record)
}

// List summarizes every decodable record.
func (s *Store) List(ctx context.Context) (*storage.ListResult, error) {
	rows, err := s.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	result := &storage.ListResult{Entries: []storage.Entry{}}
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}

		c, err := decode(id, record)
		if err != nil {
			s.logger.Warn("skipping corrupt record", "id", id, "error", err)
			result.Skipped++
			continue
		}
		result.Entries = append(result.Entries, storage.EntryOf(c))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	storage.SortEntries(result.Entries)
	return result, nil
}

// Delete removes the record stored under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(deleteQuery), id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}

	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func decode(id, record string) (*conversation.Conversation, error) {
	c, err := conversation.Decode([]byte(record))
	if err != nil {
		return nil, storage.CorruptRecordError{ID: id, Err: err}
	}
	if c.ID != id {
		return nil, storage.CorruptRecordError{ID: id, Err: fmt.Errorf("record holds conversation %s", c.ID)}
	}
	return c, nil
}
