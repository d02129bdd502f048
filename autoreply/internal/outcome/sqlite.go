package outcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/replyd/dbopen"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS decisions (
	id         TEXT PRIMARY KEY,
	post_id    TEXT NOT NULL,
	author     TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	cycle_id   TEXT NOT NULL DEFAULT '',
	at         INTEGER NOT NULL,
	durations  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_decisions_post ON decisions(post_id);
CREATE INDEX IF NOT EXISTS idx_decisions_kind ON decisions(kind, at);

CREATE TABLE IF NOT EXISTS cycles (
	cycle_id    TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	found       INTEGER NOT NULL,
	processed   INTEGER NOT NULL,
	replied     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	refreshed   INTEGER NOT NULL,
	stopped     TEXT NOT NULL DEFAULT ''
);
`

// SQLite stores records in the decisions and cycles tables.
type SQLite struct {
	db    *sql.DB
	owned bool
}

// OpenSQLite opens (creating if needed) the outcome database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(sqliteSchema))
	if err != nil {
		return nil, fmt.Errorf("outcome: open sqlite: %w", err)
	}
	return &SQLite{db: db, owned: true}, nil
}

// NewSQLite wraps an open database, applying the schema. Close does not
// close db.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("outcome: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Decision(ctx context.Context, d Decision) error {
	durations, err := json.Marshal(d.Durations)
	if err != nil {
		return fmt.Errorf("outcome: marshal durations: %w", err)
	}
	_, err = dbopen.Exec(ctx, s.db,
		`INSERT OR IGNORE INTO decisions (id, post_id, author, kind, reason, cycle_id, at, durations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.PostID, d.Author, string(d.Kind), d.Reason, d.CycleID, d.At.UnixMilli(), string(durations))
	if err != nil {
		return fmt.Errorf("outcome: insert decision: %w", err)
	}
	return nil
}

func (s *SQLite) Cycle(ctx context.Context, c CycleSummary) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT OR REPLACE INTO cycles (cycle_id, started_at, found, processed, replied, duration_ms, refreshed, stopped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CycleID, c.StartedAt.UnixMilli(), c.Found, c.Processed, c.Replied, c.DurationMs, c.Refreshed, c.Stopped)
	if err != nil {
		return fmt.Errorf("outcome: insert cycle: %w", err)
	}
	return nil
}

// CountByKind returns the number of stored decisions per kind.
func (s *SQLite) CountByKind(ctx context.Context) (map[Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM decisions GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("outcome: count: %w", err)
	}
	defer rows.Close()

	out := make(map[Kind]int)
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[Kind(k)] = n
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
