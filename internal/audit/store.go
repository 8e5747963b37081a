// Package audit keeps a local SQLite ledger of every ingestion attempt and
// its acknowledgment, independent of the remote record store.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one ingestion attempt.
type Entry struct {
	ID        int64
	Source    string
	Sender    string
	Text      string
	Category  string
	Priority  string
	Team      string
	Fallback  bool
	Status    string
	RecordID  string
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// Summary counts entries by acknowledgment status.
type Summary struct {
	Total   int
	Success int
	Error   int
}

type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestions
		 (source, sender, text, category, priority, team, fallback, status, record_id, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Source, e.Sender, e.Text, e.Category, e.Priority, e.Team, e.Fallback,
		e.Status, e.RecordID, e.Error, e.Duration.Milliseconds(), e.CreatedAt.UTC(),
	)
	return err
}

// Recent returns up to limit entries, newest first. status filters when non-empty.
func (s *SQLiteStore) Recent(ctx context.Context, limit int, status string) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, source, COALESCE(sender,''), COALESCE(text,''), COALESCE(category,''),
		COALESCE(priority,''), COALESCE(team,''), fallback, status, COALESCE(record_id,''),
		COALESCE(error,''), duration_ms, created_at
		FROM ingestions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Source, &e.Sender, &e.Text, &e.Category, &e.Priority,
			&e.Team, &e.Fallback, &e.Status, &e.RecordID, &e.Error, &ms, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summarize counts entries created at or after since.
func (s *SQLiteStore) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0)
		 FROM ingestions WHERE created_at >= ?`, since.UTC(),
	).Scan(&sum.Total, &sum.Success, &sum.Error)
	return sum, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
