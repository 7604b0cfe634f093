// Package journal keeps the append-only action log in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"library-circulation/library"
)

// Entry is one stored journal row.
type Entry struct {
	ID            int64
	OccurredAt    time.Time
	Actor         string
	Action        string
	UserID        string
	BookID        string
	CopyID        string
	LoanID        string
	ReservationID string
	Details       string
}

// String renders the entry as "time | actor | action | target | details".
func (e Entry) String() string {
	target := e.LoanID
	for _, id := range []string{e.ReservationID, e.CopyID, e.BookID, e.UserID} {
		if target == "" {
			target = id
		}
	}
	if target == "" {
		target = "-"
	}
	return fmt.Sprintf("%s | %s | %s | %s | %s",
		e.OccurredAt.Local().Format("2006-01-02 15:04:05"), e.Actor, e.Action, target, e.Details)
}

// Journal is a SQLite-backed library.Journal.
type Journal struct {
	db *sql.DB

	appendStmt *sql.Stmt
}

// Open opens (or creates) the journal database at path, applies schema
// migrations and prepares the insert statement.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{db: db}
	if j.appendStmt, err = db.Prepare(`INSERT INTO journal(occurred_at,actor,action,user_id,book_id,copy_id,loan_id,reservation_id,details)
        VALUES(?,?,?,?,?,?,?,?,?)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare append: %w", err)
	}
	return j, nil
}

// Close releases the prepared statement and closes the DB.
func (j *Journal) Close() error {
	if j.appendStmt != nil {
		j.appendStmt.Close()
	}
	return j.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS journal (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at DATETIME NOT NULL,
            actor TEXT NOT NULL,
            action TEXT NOT NULL,
            user_id TEXT NOT NULL DEFAULT '',
            book_id TEXT NOT NULL DEFAULT '',
            copy_id TEXT NOT NULL DEFAULT '',
            loan_id TEXT NOT NULL DEFAULT '',
            reservation_id TEXT NOT NULL DEFAULT '',
            details TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE INDEX IF NOT EXISTS idx_journal_user ON journal(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_book ON journal(book_id);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Append stores the events of one committed operation in a single transaction.
func (j *Journal) Append(ctx context.Context, events ...library.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, j.appendStmt)
	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.OccurredAt.UTC(), e.Actor, e.Kind,
			e.UserID, e.BookID, e.CopyID, e.LoanID, e.ReservationID, e.Details); err != nil {
			return fmt.Errorf("append %s: %w", e.Kind, err)
		}
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

const selectColumns = `SELECT id,occurred_at,actor,action,user_id,book_id,copy_id,loan_id,reservation_id,details FROM journal`

// Recent returns the last limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx, selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
}

// ForUser returns every entry about a member in the order they were written.
func (j *Journal) ForUser(ctx context.Context, userID string) ([]Entry, error) {
	return j.query(ctx, selectColumns+` WHERE user_id=? ORDER BY id`, userID)
}

// ForBook returns every entry about a book in the order they were written.
func (j *Journal) ForBook(ctx context.Context, bookID string) ([]Entry, error) {
	return j.query(ctx, selectColumns+` WHERE book_id=? ORDER BY id`, bookID)
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.Actor, &e.Action, &e.UserID, &e.BookID,
			&e.CopyID, &e.LoanID, &e.ReservationID, &e.Details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
