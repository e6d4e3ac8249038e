// Package store keeps a searchable history of downloaded QR codes in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Entry is one downloaded QR code.
type Entry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Filename  string `json:"filename"`
	Size      int    `json:"size"`
	CreatedAt int64  `json:"created_at"`
}

// HistoryStore manages SQLite storage for render history.
type HistoryStore struct {
	db *sql.DB
}

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS history (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    filename TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
`

const createFTSTable = `
CREATE VIRTUAL TABLE IF NOT EXISTS history_fts USING fts5(
    text,
    filename,
    content='history',
    content_rowid='rowid'
);
`

const createFTSTrigger = `
CREATE TRIGGER IF NOT EXISTS history_ai AFTER INSERT ON history BEGIN
    INSERT INTO history_fts(rowid, text, filename)
    VALUES (new.rowid, new.text, new.filename);
END;
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at);
`

// NewHistoryStore opens (or creates) the SQLite database at dbPath and
// initialises the schema. Use ":memory:" in tests.
func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// An in-memory database lives only as long as its one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, stmt := range []string{
		createHistoryTable,
		createFTSTable,
		createFTSTrigger,
		createIndexes,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec schema statement: %w", err)
		}
	}

	return &HistoryStore{db: db}, nil
}

// Save records e. A missing ID or timestamp is filled in. Saving an ID that
// already exists is a no-op.
func (s *HistoryStore) Save(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}

	const query = `
		INSERT OR IGNORE INTO history (id, text, filename, size, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, e.ID, e.Text, e.Filename, e.Size, e.CreatedAt); err != nil {
		return fmt.Errorf("save history entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	const query = `
		SELECT id, text, filename, size, created_at
		FROM history
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Search runs a full-text match over text and filename, best match first.
func (s *HistoryStore) Search(ctx context.Context, q string, limit int) ([]Entry, error) {
	// Quote the whole query so FTS5 operators in user input are literal.
	ftsQuery := `"` + strings.ReplaceAll(q, `"`, `""`) + `"`

	const query = `
		SELECT h.id, h.text, h.filename, h.size, h.created_at
		FROM history h
		JOIN history_fts fts ON h.rowid = fts.rowid
		WHERE history_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Close closes the underlying database connection.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Text, &e.Filename, &e.Size, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}
