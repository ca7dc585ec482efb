package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Database wraps the SQL handle for easier swapping/testing.
type Database struct {
	DB *sql.DB
}

// New opens (and creates if needed) the SQLite database at path.
// ":memory:" opens a private in-memory database.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.
	// An in-memory database lives and dies with its only connection.
	if path == ":memory:" {
		db.SetConnMaxLifetime(0)
	} else {
		db.SetConnMaxLifetime(time.Hour)
	}

	return &Database{DB: db}, nil
}

// Open is New followed by ApplyMigrations.
func Open(path string) (*Database, error) {
	d, err := New(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(d); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Cache returns the TTL cache queries.
func (d *Database) Cache() *CacheQueries {
	return &CacheQueries{db: d.DB, now: time.Now}
}

// Chat returns the chat session queries.
func (d *Database) Chat() *ChatQueries {
	return &ChatQueries{db: d.DB, now: time.Now}
}

// Settings returns a key-value store scoped to one client.
func (d *Database) Settings(clientID string) *SettingsStore {
	return &SettingsStore{db: d.DB, clientID: clientID}
}

// Close releases the underlying DB handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// TableCounts reports row counts of the tables ClearAll empties.
type TableCounts struct {
	ChatMessages   int64 `json:"chat_messages"`
	ChatSessions   int64 `json:"chat_sessions"`
	StockCache     int64 `json:"stock_cache"`
	SentimentCache int64 `json:"sentiment_cache"`
}

// ClearAll empties the chat and cache tables and returns the counts they had.
// Client settings are kept.
func (d *Database) ClearAll(ctx context.Context) (TableCounts, error) {
	var before TableCounts
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return before, err
	}
	defer tx.Rollback()

	tables := []struct {
		name  string
		count *int64
	}{
		{"chat_messages", &before.ChatMessages},
		{"chat_sessions", &before.ChatSessions},
		{"stock_data_cache", &before.StockCache},
		{"sentiment_cache", &before.SentimentCache},
	}
	for _, t := range tables {
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.name).Scan(t.count); err != nil {
			return before, fmt.Errorf("count %s: %w", t.name, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.name); err != nil {
			return before, fmt.Errorf("clear %s: %w", t.name, err)
		}
	}
	return before, tx.Commit()
}
