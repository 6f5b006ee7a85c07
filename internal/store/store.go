// Package store persists a history of completed analyses in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one completed analysis.
type Record struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	Filename  string    `json:"filename,omitempty"`
	Class     int       `json:"class"`
	Label     string    `json:"label"`
	Score     float64   `json:"score"`
	Risk      string    `json:"risk"`
	Layer     string    `json:"layer,omitempty"`
	Duration  float64   `json:"duration_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the history database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	query := `
    CREATE TABLE IF NOT EXISTS analyses (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id VARCHAR(64),
        filename TEXT,
        class INTEGER,
        label TEXT,
        score REAL,
        risk TEXT,
        layer TEXT,
        duration_ms REAL,
        created_at DATETIME
    );
    CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
    `
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert records a completed analysis.
func (s *Store) Insert(ctx context.Context, r *Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (request_id, filename, class, label, score, risk, layer, duration_ms, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.Filename, r.Class, r.Label, r.Score, r.Risk, r.Layer, r.Duration, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns the latest analyses, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, filename, class, label, score, risk, layer, duration_ms, created_at
         FROM analyses ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Filename, &r.Class, &r.Label,
			&r.Score, &r.Risk, &r.Layer, &r.Duration, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
