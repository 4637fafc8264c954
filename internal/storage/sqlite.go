package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"NYCU-SDC/workflow-editor-backend/internal"

	_ "modernc.org/sqlite"
)

const createSQLiteSlots = `
CREATE TABLE IF NOT EXISTS workflow_slots (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at INTEGER NOT NULL
)`

// SQLite stores slots in a single-file database
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens path (":memory:" works for tests) and creates the slot table
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, createSQLiteSlots)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create workflow_slots table: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM workflow_slots WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO workflow_slots (key, value, updated_at) VALUES (?, ?, strftime('%s','now'))`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set slot %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workflow_slots WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete slot %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return internal.ErrSlotNotFound
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
