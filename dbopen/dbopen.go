// Package dbopen opens the SQLite files behind the sqlite dedupe backend
// and the sqlite outcome sink. Every handle gets WAL journaling and a
// 10s busy timeout; callers pick the synchronous level and the schema.
//
//	db, err := dbopen.Open("data/replied.db", dbopen.WithMkdirAll(), dbopen.WithSynchronous("FULL"))
//
// Tests use dbopen.OpenMemory(t).
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const busyTimeoutMs = 10_000

type options struct {
	synchronous string
	mkdirAll    bool
	schema      []string
}

// Option customises Open.
type Option func(*options)

// WithSynchronous sets PRAGMA synchronous. Default: NORMAL. The dedupe
// backend uses FULL so a committed id survives power loss.
func WithSynchronous(mode string) Option { return func(o *options) { o.synchronous = mode } }

// WithMkdirAll creates the parent directory of path.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithSchema runs stmt after the pragmas. Statements must be idempotent.
func WithSchema(stmt string) Option { return func(o *options) { o.schema = append(o.schema, stmt) } }

// Open opens the SQLite database at path and verifies it answers.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := options{synchronous: "NORMAL"}
	for _, fn := range opts {
		fn(&o)
	}

	if o.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}

	stmts := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs),
		"PRAGMA synchronous = " + o.synchronous,
	}
	stmts = append(stmts, o.schema...)
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: %s: %w", firstLine(s), err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens a private in-memory database closed by t.Cleanup. A
// single connection keeps every query on the same database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
