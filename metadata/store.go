// Package metadata is the relational index of committed blobs and their
// key/value attributes.
//
// Two tables live in dbooru.db: files holds one row per committed fid and
// attributes holds arbitrary (fid, key, val) triples. Deleting a files row
// cascades to its attributes.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/dendrascience/dbooru/internal/sqlitepool"
)

// ErrNoAttribute is returned when a fid has no attribute under the key.
var ErrNoAttribute = errors.New("no such attribute")

const schema = `
CREATE TABLE IF NOT EXISTS files (
	fid TEXT PRIMARY KEY NOT NULL
);
CREATE TABLE IF NOT EXISTS attributes (
	fid TEXT NOT NULL,
	key TEXT NOT NULL,
	val TEXT NOT NULL,
	PRIMARY KEY (fid, key) ON CONFLICT REPLACE,
	FOREIGN KEY (fid) REFERENCES files (fid) ON DELETE CASCADE
);
`

// Attribute is one key/value pair attached to a fid.
type Attribute struct {
	Key   string
	Value string
}

// Options configures Open.
type Options struct {
	PoolSize int
	Logger   *slog.Logger
}

// Store is safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: opts.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool, logger: logger}

	// Take one connection now so a broken database fails here and not on
	// the first kernel request.
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("metadata: %w", err)
	}
	pool.Put(conn)
	return s, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) exec(ctx context.Context, query string, opts *sqlitex.ExecOptions) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)
	if err := sqlitex.Execute(conn, query, opts); err != nil {
		return 0, err
	}
	return conn.Changes(), nil
}

// InsertFile records fid. Inserting a fid that already exists is a no-op.
func (s *Store) InsertFile(ctx context.Context, fid string) error {
	n, err := s.exec(ctx, `INSERT OR IGNORE INTO files (fid) VALUES (?)`,
		&sqlitex.ExecOptions{Args: []any{fid}})
	if err != nil {
		return fmt.Errorf("metadata: insert %s: %w", fid, err)
	}
	if n == 0 {
		s.logger.Debug("file already recorded", "fid", fid)
	}
	return nil
}

// DeleteFile removes fid and, by cascade, its attributes. It reports whether
// a row existed.
func (s *Store) DeleteFile(ctx context.Context, fid string) (bool, error) {
	n, err := s.exec(ctx, `DELETE FROM files WHERE fid = ?`,
		&sqlitex.ExecOptions{Args: []any{fid}})
	if err != nil {
		return false, fmt.Errorf("metadata: delete %s: %w", fid, err)
	}
	return n > 0, nil
}

// HasFile reports whether fid is recorded.
func (s *Store) HasFile(ctx context.Context, fid string) (bool, error) {
	var found bool
	_, err := s.exec(ctx, `SELECT 1 FROM files WHERE fid = ?`, &sqlitex.ExecOptions{
		Args: []any{fid},
		ResultFunc: func(*sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("metadata: lookup %s: %w", fid, err)
	}
	return found, nil
}

// ListFiles returns up to limit fids in insertion order, skipping the first
// offset. A short result means the end was reached.
func (s *Store) ListFiles(ctx context.Context, offset, limit int) ([]string, error) {
	fids := make([]string, 0, limit)
	_, err := s.exec(ctx, `SELECT fid FROM files ORDER BY rowid LIMIT ? OFFSET ?`, &sqlitex.ExecOptions{
		Args: []any{limit, offset},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			fids = append(fids, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("metadata: list files: %w", err)
	}
	return fids, nil
}

// Files iterates over every recorded fid, paging through the table.
// Iteration stops at the first error, which is yielded with an empty fid.
func (s *Store) Files(ctx context.Context, pageSize int) func(yield func(string, error) bool) {
	return func(yield func(string, error) bool) {
		for offset := 0; ; offset += pageSize {
			page, err := s.ListFiles(ctx, offset, pageSize)
			if err != nil {
				yield("", err)
				return
			}
			for _, fid := range page {
				if !yield(fid, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}

// CountFiles returns the number of recorded fids.
func (s *Store) CountFiles(ctx context.Context) (int64, error) {
	var n int64
	_, err := s.exec(ctx, `SELECT count(*) FROM files`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("metadata: count files: %w", err)
	}
	return n, nil
}

// GetAttribute returns the value stored under key, or ErrNoAttribute.
func (s *Store) GetAttribute(ctx context.Context, fid, key string) (string, error) {
	var (
		val   string
		found bool
	)
	_, err := s.exec(ctx, `SELECT val FROM attributes WHERE fid = ? AND key = ?`, &sqlitex.ExecOptions{
		Args: []any{fid, key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			val = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("metadata: get %s[%s]: %w", fid, key, err)
	}
	if !found {
		return "", fmt.Errorf("metadata: %s[%s]: %w", fid, key, ErrNoAttribute)
	}
	return val, nil
}

// SetAttribute stores val under key, replacing any previous value. The fid
// must already be recorded.
func (s *Store) SetAttribute(ctx context.Context, fid, key, val string) error {
	_, err := s.exec(ctx, `INSERT INTO attributes (fid, key, val) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{fid, key, val}})
	if err != nil {
		return fmt.Errorf("metadata: set %s[%s]: %w", fid, key, err)
	}
	return nil
}

// DeleteAttribute removes key from fid, or returns ErrNoAttribute.
func (s *Store) DeleteAttribute(ctx context.Context, fid, key string) error {
	n, err := s.exec(ctx, `DELETE FROM attributes WHERE fid = ? AND key = ?`,
		&sqlitex.ExecOptions{Args: []any{fid, key}})
	if err != nil {
		return fmt.Errorf("metadata: delete %s[%s]: %w", fid, key, err)
	}
	if n == 0 {
		return fmt.Errorf("metadata: %s[%s]: %w", fid, key, ErrNoAttribute)
	}
	return nil
}

// ListAttributes returns every attribute of fid ordered by key.
func (s *Store) ListAttributes(ctx context.Context, fid string) ([]Attribute, error) {
	var attrs []Attribute
	_, err := s.exec(ctx, `SELECT key, val FROM attributes WHERE fid = ? ORDER BY key`, &sqlitex.ExecOptions{
		Args: []any{fid},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			attrs = append(attrs, Attribute{Key: stmt.ColumnText(0), Value: stmt.ColumnText(1)})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("metadata: list %s: %w", fid, err)
	}
	return attrs, nil
}
