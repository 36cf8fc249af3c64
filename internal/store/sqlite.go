package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_state (
	chat_id    INTEGER PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore persists opaque chat state snapshots keyed by chat id.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the state database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create state schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save upserts the snapshot of one chat.
func (s *SQLiteStore) Save(ctx context.Context, chatID int64, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_state (chat_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		chatID, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save state of chat %d: %w", chatID, err)
	}
	return nil
}

// LoadAll returns every stored snapshot keyed by chat id.
func (s *SQLiteStore) LoadAll(ctx context.Context) (map[int64][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, data FROM chat_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat state: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]byte)
	for rows.Next() {
		var (
			chatID int64
			data   []byte
		)
		if err := rows.Scan(&chatID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan chat state: %w", err)
		}
		out[chatID] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat state: %w", err)
	}
	return out, nil
}

// Delete removes the snapshot of one chat.
func (s *SQLiteStore) Delete(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_state WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("failed to delete state of chat %d: %w", chatID, err)
	}
	return nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
