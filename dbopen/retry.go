package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// busyRetry retries SQLITE_BUSY twice more, 100ms then 200ms apart.
var busyRetry = retrypolicy.NewBuilder[sql.Result]().
	HandleIf(func(_ sql.Result, err error) bool { return IsBusy(err) }).
	WithMaxRetries(2).
	WithBackoff(100*time.Millisecond, 200*time.Millisecond).
	ReturnLastFailure().
	Build()

// IsBusy reports whether err is an SQLite BUSY or locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx runs fn in a transaction, committing when it returns nil. The whole
// transaction is retried when SQLite reports BUSY.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	_, err := failsafe.With[sql.Result](busyRetry).WithContext(ctx).Get(func() (sql.Result, error) {
		return nil, runOnce(ctx, db, fn)
	})
	return err
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// Exec runs a single statement under the same BUSY retry as RunTx.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return failsafe.With[sql.Result](busyRetry).WithContext(ctx).Get(func() (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}
