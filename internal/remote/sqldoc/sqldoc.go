// Package sqldoc implements remote.Store on top of a SQL database.
//
// Documents live in a single documents table keyed by (collection, id). Every
// write also appends a row to the changes table, and subscriptions poll that
// log for rows past the last sequence number they delivered. The same schema
// serves three backends:
//
//   - embedded SQLite through ncruces/go-sqlite3, in WAL mode so readers are
//     not blocked by the writer
//   - Turso/libSQL servers through go-libsql (cgo builds only)
//   - PostgreSQL through lib/pq
//
// Example:
//
//	st, err := sqldoc.Open(ctx, sqldoc.Config{
//	    Dialect: sqldoc.DialectSQLite,
//	    DSN:     sqldoc.SQLiteDSN(".tracka/tracka.db"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/types"
)

// DefaultPollInterval is how often subscriptions read the change log.
const DefaultPollInterval = 250 * time.Millisecond

// Config configures a Store.
type Config struct {
	Dialect Dialect

	// DSN is passed to sql.Open unchanged. See SQLiteDSN for local files.
	DSN string

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// Logger defaults to stderr with a "[sqldoc] " prefix.
	Logger *log.Logger
}

// Store is a SQL-backed remote.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	poll    time.Duration
	logger  *log.Logger
	now     func() time.Time

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

var _ remote.Store = (*Store)(nil)

// SQLiteDSN builds the connection string for an embedded database file. The
// pragmas apply to every pooled connection: WAL journaling, a 5 second busy
// timeout, and IMMEDIATE transactions so read-then-write transactions never
// fail on lock upgrade.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_txlock=immediate", path)
}

// Open connects to the database and creates the schema if needed.
//
// For DialectSQLite the parent directory of the database file is created
// when DSN was built with SQLiteDSN.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Dialect.valid(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sqldoc] ", log.LstdFlags)
	}

	if cfg.Dialect == DialectSQLite {
		if path := sqlitePath(cfg.DSN); path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open(cfg.Dialect.driverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		db:      conn,
		dialect: cfg.Dialect,
		poll:    cfg.PollInterval,
		logger:  cfg.Logger,
		now:     time.Now,
		subs:    make(map[*subscription]struct{}),
	}
	if err := s.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// sqlitePath extracts the file path from a "file:" DSN, or "" for anything
// else (including in-memory databases).
func sqlitePath(dsn string) string {
	const prefix = "file:"
	if len(dsn) <= len(prefix) || dsn[:len(prefix)] != prefix {
		return ""
	}
	path := dsn[len(prefix):]
	for i := 0; i < len(path); i++ {
		if path[i] == '?' {
			path = path[:i]
			break
		}
	}
	if path == ":memory:" {
		return ""
	}
	return path
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return remote.ErrClosed
	}
	return nil
}

// GetAll implements remote.Store. Documents are sorted by id.
func (s *Store) GetAll(ctx context.Context, collection types.Collection, ownerID string) ([]remote.Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT id, data FROM documents WHERE collection = ? AND owner_id = ? ORDER BY id`),
		string(collection), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]remote.Document, 0)
	for rows.Next() {
		var (
			id   string
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s document: %w", collection, err)
		}
		docs = append(docs, remote.Document{ID: id, Data: json.RawMessage(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}
	return docs, nil
}

// Upsert implements remote.Store. When the owner changes, subscribers of
// the previous owner see a removal.
func (s *Store) Upsert(ctx context.Context, collection types.Collection, id string, doc json.RawMessage) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !json.Valid(doc) {
		return fmt.Errorf("failed to upsert %s/%s: document is not valid JSON", collection, id)
	}
	owner := remote.OwnerOf(doc)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		prevOwner, existed, err := s.currentOwner(ctx, tx, collection, id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO documents (collection, id, owner_id, data, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET
				owner_id = excluded.owner_id,
				data = excluded.data,
				updated_at = excluded.updated_at`),
			string(collection), id, owner, string(doc), s.now().UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
		}

		op := remote.ChangeAdded
		if existed && prevOwner == owner {
			op = remote.ChangeModified
		}
		if existed && prevOwner != owner {
			if err := s.logChange(ctx, tx, collection, id, prevOwner, remote.ChangeRemoved, nil); err != nil {
				return err
			}
		}
		return s.logChange(ctx, tx, collection, id, owner, op, doc)
	})
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, collection types.Collection, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		owner, existed, err := s.currentOwner(ctx, tx, collection, id)
		if err != nil || !existed {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(
			`DELETE FROM documents WHERE collection = ? AND id = ?`),
			string(collection), id,
		); err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
		}
		return s.logChange(ctx, tx, collection, id, owner, remote.ChangeRemoved, nil)
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) currentOwner(ctx context.Context, tx *sql.Tx, collection types.Collection, id string) (string, bool, error) {
	var owner string
	err := tx.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT owner_id FROM documents WHERE collection = ? AND id = ?`),
		string(collection), id,
	).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}
	return owner, true, nil
}

func (s *Store) logChange(ctx context.Context, tx *sql.Tx, collection types.Collection, id, owner string, op remote.ChangeType, doc json.RawMessage) error {
	var data sql.NullString
	if doc != nil {
		data = sql.NullString{String: string(doc), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO changes (collection, doc_id, owner_id, op, data) VALUES (?, ?, ?, ?, ?)`),
		string(collection), id, owner, string(op), data,
	); err != nil {
		return fmt.Errorf("failed to record change for %s/%s: %w", collection, id, err)
	}
	return nil
}

// Close ends every subscription and closes the database. For SQLite the WAL
// is checkpointed first.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	s.wg.Wait()

	if s.dialect == DialectSQLite {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
		}
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
