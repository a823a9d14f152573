// Package audit keeps a durable log of command executions in SQLite.
// Session state in Redis is ephemeral by design; the audit log is what
// survives for after-the-fact review.
package audit

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded command execution.
type Entry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Command    string    `json:"command"`
	ExitCode   int       `json:"exit_code"`
	DurationMS int64     `json:"duration_ms"`
	TimedOut   bool      `json:"timed_out"`
	CreatedAt  time.Time `json:"created_at"`
}

type Log struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS executions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	command     TEXT NOT NULL,
	exit_code   INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	timed_out   INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_session_id ON executions(session_id);
CREATE INDEX IF NOT EXISTS idx_executions_created_at ON executions(created_at);
`

// DefaultMaxOpenConns is the default connection pool size for concurrent reads.
// WAL mode allows multiple readers + 1 writer; more conns improve read throughput.
const DefaultMaxOpenConns = 4

// DefaultHistoryLimit caps history queries that do not name a limit.
const DefaultHistoryLimit = 50

// dsnWithPragmas returns a connection string with WAL, busy_timeout, and perf
// pragmas applied to every new connection. PRAGMAs in the DSN are applied
// per-connection by the driver, which matters when API writes and reaper
// pruning overlap.
func dsnWithPragmas(dbPath string) string {
	// busy_timeout: 15s wait on lock
	// journal_mode=WAL: concurrent reads during writes
	// synchronous=NORMAL: safe in WAL, ~50x faster writes than FULL
	// cache_size=-64000: 64MB page cache
	// temp_store=MEMORY: temp tables in RAM
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=cache_size(-64000)" +
		"&_pragma=temp_store(MEMORY)"
}

// New opens the audit log. maxOpenConns controls the connection pool size
// (0 = default 4).
func New(dbPath string, maxOpenConns int) (*Log, error) {
	dsn := dsnWithPragmas(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = DefaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

// Record appends one execution. A zero CreatedAt is filled with now.
func (l *Log) Record(e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := retryOnBusy(func() error {
		_, err := l.db.Exec(
			`INSERT INTO executions (session_id, user_id, command, exit_code, duration_ms, timed_out, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.SessionID, e.UserID, e.Command, e.ExitCode, e.DurationMS, e.TimedOut, e.CreatedAt.UTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// BySession returns the most recent executions of a session, newest first.
// Entries are scoped to the user who issued them.
func (l *Log) BySession(sessionID, userID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := l.db.Query(
		`SELECT id, session_id, user_id, command, exit_code, duration_ms, timed_out, created_at
		 FROM executions WHERE session_id = ? AND user_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Prune deletes entries older than the retention period and reports how many
// went away.
func (l *Log) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = l.db.Exec(`DELETE FROM executions WHERE created_at <= ?`, cutoff)
		return e
	})
	if err != nil {
		return 0, fmt.Errorf("pruning executions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*Entry, error) {
	var e Entry
	if err := row.Scan(
		&e.ID, &e.SessionID, &e.UserID, &e.Command, &e.ExitCode, &e.DurationMS, &e.TimedOut, &e.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning execution: %w", err)
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	entries := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return entries, nil
}

// isBusyLock reports whether err indicates SQLite database lock (SQLITE_BUSY).
// Handles wrapped errors from database/sql.
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with exponential backoff.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}
