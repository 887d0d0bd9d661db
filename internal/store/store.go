// Package store is the durable local persistence layer (C1): every domain
// entity and every sync-shadow table (outbox, tombstones, checkpoint,
// conflicts, conflict events) lives here behind ACID transactions.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const dbFileName = "tdsync.db"

// Store wraps the local SQLite connection used by the Mutation API, the
// Sync Engine and the Conflict Store. All writes funnel through Mutate,
// which holds the cross-process write lock described in lock.go.
type Store struct {
	conn    *sql.DB
	baseDir string
}

// openConn opens a SQLite connection pinned to a single connection, with
// WAL mode enabled for concurrent reads while writes are serialized.
func openConn(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one writer; pinning to a single connection
	// keeps the pool from spawning extras that could race on the WAL.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	return conn, nil
}

// Open opens an existing store at baseDir, running any pending migrations.
func Open(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, IO("store not found, run init first", err)
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, IO("open store", err)
	}

	s := &Store{conn: conn, baseDir: baseDir}
	if _, err := s.runMigrations(); err != nil {
		conn.Close()
		return nil, IO("run migrations", err)
	}
	return s, nil
}

// Initialize creates a fresh store at baseDir (creating the directory if
// needed), lays down the schema and runs any pending migrations.
func Initialize(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFileName)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, IO("create store dir", err)
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, IO("open store", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, IO("create schema", err)
	}

	s := &Store{conn: conn, baseDir: baseDir}
	if _, err := s.runMigrations(); err != nil {
		conn.Close()
		return nil, IO("run migrations", err)
	}
	return s, nil
}

// Close flushes the WAL back into the main database file and closes the
// connection. Best-effort: ignore checkpoint errors, the connection close
// is what matters for correctness.
func (s *Store) Close() error {
	s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.conn.Close()
}

// BaseDir returns the directory the store lives in.
func (s *Store) BaseDir() string { return s.baseDir }

// Conn exposes the raw connection for collaborators that need direct query
// access (the fake server harness in test/fakeserver, for instance).
func (s *Store) Conn() *sql.DB { return s.conn }

// Mutate runs fn while holding the cross-process write lock and inside a
// single SQL transaction, satisfying the "exactly one writer at a time"
// rule: the domain write, its tombstone and its outbox row all commit or
// roll back together.
func (s *Store) Mutate(fn func(tx *sql.Tx) error) error {
	return s.withWriteLock(func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return IO("begin transaction", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return Serialization("commit transaction", err)
		}
		return nil
	})
}

// withWriteLock executes fn while holding the exclusive cross-process
// write lock, preventing concurrent writers from another process.
func (s *Store) withWriteLock(fn func() error) error {
	locker := newWriteLocker(s.baseDir)
	if err := locker.acquire(defaultTimeout); err != nil {
		return IO("acquire write lock", err)
	}
	defer locker.release()
	return fn()
}
