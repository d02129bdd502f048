package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/replyd/dbopen"
)

const schema = `
CREATE TABLE IF NOT EXISTS replied_ids (
    post_id    TEXT PRIMARY KEY,
    replied_at INTEGER NOT NULL
);`

// SQLiteStore keeps identifiers in an SQLite table. Record buffers new
// identifiers and Persist commits them in one transaction with
// synchronous=FULL, so a returned Persist survives power loss.
type SQLiteStore struct {
	db      *sql.DB
	set     set
	pending []string
	now     func() time.Time
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithSynchronous("FULL"),
		dbopen.WithSchema(schema),
	)
	if err != nil {
		return nil, fmt.Errorf("dedupe: %w", err)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an already opened database and applies the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("dedupe: apply schema: %w", err)
	}
	return &SQLiteStore{db: db, set: newSet(), now: time.Now}, nil
}

func (s *SQLiteStore) Contains(id string) bool { return s.set.contains(id) }

func (s *SQLiteStore) Record(id string) {
	if s.set.add(id) {
		s.pending = append(s.pending, id)
	}
}

func (s *SQLiteStore) Len() int      { return len(s.set.order) }
func (s *SQLiteStore) IDs() []string { return s.set.snapshot() }
func (s *SQLiteStore) Close() error  { return s.db.Close() }

// Load merges every stored identifier, oldest first.
func (s *SQLiteStore) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT post_id FROM replied_ids ORDER BY replied_at, rowid`)
	if err != nil {
		return fmt.Errorf("%w: query: %v", ErrCorrupt, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("%w: scan: %v", ErrCorrupt, err)
		}
		s.set.add(id)
	}
	return rows.Err()
}

// Persist commits pending identifiers. On failure they stay pending and the
// next Persist retries them.
func (s *SQLiteStore) Persist(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	ts := s.now().UnixMilli()
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO replied_ids (post_id, replied_at) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range s.pending {
			if _, err := stmt.ExecContext(ctx, id, ts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("dedupe: persist: %w", err)
	}
	s.pending = s.pending[:0]
	return nil
}
