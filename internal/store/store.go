// Package store provides the durable on-device record store for tasksync.
//
// Records live in an embedded SQLite database as JSON values under namespaced
// keys, one key per record set:
//
//	tasksync:tasks                    full task list
//	tasksync:pending_ops              pending-operation queue (enqueue order)
//	tasksync:sync_meta                last successful sync
//	tasksync:migration_complete       "true" once migration finished
//	tasksync:migration_completed_at   RFC3339 completion time
//	tasksync:session                  current remote session
//
// Every call is synchronous and local; no call touches the network. Writes that
// would push the total stored size past the configured quota fail with a
// QUOTA_EXCEEDED error and leave the stored value unchanged.
//
// Several processes may open the same file (the daemon and CLI commands).
// Every read-modify-write runs inside one immediate transaction, so writers
// in different processes serialize on the database lock instead of
// overwriting each other.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
)

// Key namespace and record keys.
const (
	Namespace = "tasksync:"

	KeyTasks                = Namespace + "tasks"
	KeyPendingOps           = Namespace + "pending_ops"
	KeySyncMeta             = Namespace + "sync_meta"
	KeyMigrationComplete    = Namespace + "migration_complete"
	KeyMigrationCompletedAt = Namespace + "migration_completed_at"
	KeySession              = Namespace + "session"
)

// DefaultMaxBytes is the default storage quota.
const DefaultMaxBytes int64 = 5 * 1024 * 1024

// Options configures a Store.
type Options struct {
	// MaxBytes caps the total size of stored values (0 = DefaultMaxBytes).
	MaxBytes int64
}

// Store wraps the SQLite connection holding the key/value records.
type Store struct {
	conn     *sql.DB
	path     string
	maxBytes int64

	mu sync.Mutex
}

// Open opens (creating if needed) the record store at path with default options.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(".tasksync/tasks.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens the record store with custom options.
func OpenWithOptions(path string, opts Options) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	// Immediate transactions take the write lock at BEGIN; busy_timeout makes
	// a second process wait for it.
	dsn := "file:" + path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	// One connection per process; the mutex serializes callers within it.
	conn.SetMaxOpenConns(1)

	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	s := &Store{
		conn:     conn,
		path:     path,
		maxBytes: opts.MaxBytes,
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// Size returns the total number of bytes held in stored values.
func (s *Store) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sizeExcluding(s.conn, "")
}

// ClearAll removes every record: tasks, queue, sync metadata, migration flag
// and session. This is the explicit data reset.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec("DELETE FROM kv WHERE key LIKE ?", Namespace+"%"); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// update runs fn inside one immediate transaction. Callers hold s.mu.
func (s *Store) update(fn func(q querier) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// readJSON loads key into dst. Returns false when the key is absent.
func readJSON(q querier, key string, dst any) (bool, error) {
	var raw string
	err := q.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// writeJSON stores v under key, enforcing the quota. The size check and the
// write see the same snapshot when q is a transaction.
func (s *Store) writeJSON(q querier, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	others, err := sizeExcluding(q, key)
	if err != nil {
		return err
	}
	if others+int64(len(data)) > s.maxBytes {
		return apperrors.New(apperrors.ErrQuotaExceeded,
			fmt.Sprintf("writing %s needs %d bytes, quota is %d (in use %d)", key, len(data), s.maxBytes, others))
	}

	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := q.Exec(query, key, string(data), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func deleteKey(q querier, key string) error {
	if _, err := q.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func sizeExcluding(q querier, key string) (int64, error) {
	var size int64
	err := q.QueryRow("SELECT COALESCE(SUM(LENGTH(CAST(value AS BLOB))), 0) FROM kv WHERE key != ?", key).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to compute store size: %w", err)
	}
	return size, nil
}
