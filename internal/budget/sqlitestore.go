package budget

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createLedgerTables = `
CREATE TABLE IF NOT EXISTS ledger (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	used INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS usage_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at DATETIME NOT NULL,
	tokens INTEGER NOT NULL,
	label TEXT NOT NULL
);
`

// SQLiteStore persists ledger state in a SQLite database.
//
// Serialization contract: Update runs the whole read-modify-write cycle in
// one transaction on a single-connection pool, so concurrent callers (from
// any number of processes) are serialized by the database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the ledger database at dbPath
// and runs auto-migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createLedgerTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO ledger (id, used) VALUES (1, 0)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed ledger row: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the persisted state. Unreadable rows read as the zero state.
func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	var st State
	err := s.db.QueryRowContext(ctx, `SELECT used FROM ledger WHERE id = 1`).Scan(&st.Used)
	if err != nil {
		return State{}, nil
	}
	if st.Used < 0 {
		st.Used = 0
	}
	st.History, _ = s.loadHistory(ctx, s.db.QueryContext)
	return st, nil
}

type queryFunc func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func (s *SQLiteStore) loadHistory(ctx context.Context, query queryFunc) ([]UsageRecord, error) {
	rows, err := query(ctx,
		`SELECT recorded_at, tokens, label FROM usage_history ORDER BY id DESC LIMIT ?`, HistoryLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		if err := rows.Scan(&rec.Timestamp, &rec.Tokens, &rec.Label); err != nil {
			return nil, err
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

// Update applies fn inside a transaction and persists the result.
func (s *SQLiteStore) Update(ctx context.Context, fn func(*State)) (State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return State{}, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback()

	var st State
	if err := tx.QueryRowContext(ctx, `SELECT used FROM ledger WHERE id = 1`).Scan(&st.Used); err != nil {
		return State{}, fmt.Errorf("read ledger row: %w", err)
	}
	if st.History, err = s.loadHistory(ctx, tx.QueryContext); err != nil {
		return State{}, fmt.Errorf("read ledger history: %w", err)
	}

	fn(&st)
	if len(st.History) > HistoryLimit {
		st.History = st.History[:HistoryLimit]
	}

	if _, err := tx.ExecContext(ctx, `UPDATE ledger SET used = ? WHERE id = 1`, st.Used); err != nil {
		return State{}, fmt.Errorf("write ledger row: %w", err)
	}
	// History is small (at most HistoryLimit rows); rewrite it wholesale so
	// the table always mirrors the in-memory ordering.
	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_history`); err != nil {
		return State{}, fmt.Errorf("clear ledger history: %w", err)
	}
	for i := len(st.History) - 1; i >= 0; i-- {
		rec := st.History[i]
		ts := rec.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usage_history (recorded_at, tokens, label) VALUES (?, ?, ?)`,
			ts, rec.Tokens, rec.Label); err != nil {
			return State{}, fmt.Errorf("write ledger history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return State{}, fmt.Errorf("commit ledger tx: %w", err)
	}
	return st, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
