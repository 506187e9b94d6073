// Package history records terminal conversion results in SQLite so that
// repeated batch runs can skip inputs that already converted successfully.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"hevcbatch/internal/jobs"
)

// Store persists conversion outcomes
type Store struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS conversions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		input_path TEXT NOT NULL,
		output_path TEXT,
		status TEXT NOT NULL,
		input_size INTEGER NOT NULL DEFAULT 0,
		output_size INTEGER NOT NULL DEFAULT 0,
		space_saved INTEGER NOT NULL DEFAULT 0,
		elapsed_secs REAL NOT NULL DEFAULT 0,
		error TEXT,
		completed_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversions_input ON conversions(input_path, status)`,
}

// Open opens or creates the history database at path
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history db: %w", err)
	}

	// SQLite does not support concurrent writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one terminal result
func (s *Store) Record(res jobs.Result) error {
	_, err := s.db.Exec(`
		INSERT INTO conversions
			(task_id, input_path, output_path, status, input_size, output_size,
			 space_saved, elapsed_secs, error, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.TaskID, res.InputPath, res.OutputPath, string(res.Status),
		res.InputSize, res.OutputSize, res.SpaceSaved,
		res.Elapsed.Seconds(), res.Error, res.CompletedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// WasConverted reports whether the input path has a successful conversion
// on record
func (s *Store) WasConverted(inputPath string) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM conversions
		WHERE input_path = ? AND status = ?`,
		inputPath, string(jobs.StatusSucceeded),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query history: %w", err)
	}
	return n > 0, nil
}

// Totals summarizes lifetime history
type Totals struct {
	Succeeded       int
	Failed          int
	Cancelled       int
	TotalSpaceSaved int64
}

// Totals returns lifetime counts and space saved
func (s *Store) Totals() (Totals, error) {
	var t Totals
	rows, err := s.db.Query(`
		SELECT status, COUNT(*), COALESCE(SUM(space_saved), 0)
		FROM conversions GROUP BY status`)
	if err != nil {
		return t, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		var saved int64
		if err := rows.Scan(&status, &count, &saved); err != nil {
			return t, err
		}
		switch jobs.Status(status) {
		case jobs.StatusSucceeded:
			t.Succeeded = count
			t.TotalSpaceSaved += saved
		case jobs.StatusFailed:
			t.Failed = count
		case jobs.StatusCancelled:
			t.Cancelled = count
		}
	}
	return t, rows.Err()
}
