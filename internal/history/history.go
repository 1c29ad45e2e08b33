// Package history records repair runs in SQLite so operators can answer
// "when was this file last patched, and what happened" without grepping
// shell history. Recording is opt-in; the repair path never depends on it.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"blockmend/internal/logging"
)

// Store persists repair runs and their per-file results.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Run is one recorded invocation.
type Run struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	Targets       []string  `json:"targets"`
	FilesScanned  int       `json:"files_scanned"`
	FilesChanged  int       `json:"files_changed"`
	FilesFailed   int       `json:"files_failed"`
	BlocksFixed   int       `json:"blocks_fixed"`
	BlocksSkipped int       `json:"blocks_skipped"`
	DryRun        bool      `json:"dry_run"`
}

// FileResult is the outcome of one file inside a run.
type FileResult struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	Path          string    `json:"path"`
	BlocksFixed   int       `json:"blocks_fixed"`
	BlocksSkipped int       `json:"blocks_skipped"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
}

// Open initializes the history database at the given path, creating the
// schema on first use.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		targets TEXT NOT NULL,
		files_scanned INTEGER NOT NULL,
		files_changed INTEGER NOT NULL,
		files_failed INTEGER NOT NULL,
		blocks_fixed INTEGER NOT NULL,
		blocks_skipped INTEGER NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS file_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		path TEXT NOT NULL,
		blocks_fixed INTEGER NOT NULL,
		blocks_skipped INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_file_results_path ON file_results(path);
	CREATE INDEX IF NOT EXISTS idx_file_results_run ON file_results(run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize history schema: %w", err)
	}
	return nil
}

// Record stores one run and its file results in a single transaction.
func (s *Store) Record(run Run, results []FileResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, started_at, targets, files_scanned, files_changed,
		 files_failed, blocks_fixed, blocks_skipped, dry_run)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), strings.Join(run.Targets, " "),
		run.FilesScanned, run.FilesChanged, run.FilesFailed,
		run.BlocksFixed, run.BlocksSkipped, boolToInt(run.DryRun),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	for _, fr := range results {
		_, err = tx.Exec(
			`INSERT INTO file_results (run_id, path, blocks_fixed, blocks_skipped, status, error)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, fr.Path, fr.BlocksFixed, fr.BlocksSkipped, fr.Status, fr.Error,
		)
		if err != nil {
			return fmt.Errorf("record file result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.History("recorded run %s: %d file(s), %d block(s) fixed",
		run.ID, run.FilesScanned, run.BlocksFixed)
	return nil
}

// RecentRuns returns the newest n runs, newest first.
func (s *Store) RecentRuns(n int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, targets, files_scanned, files_changed,
		 files_failed, blocks_fixed, blocks_skipped, dry_run
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var targets string
		var dryRun int
		if err := rows.Scan(&r.ID, &r.StartedAt, &targets, &r.FilesScanned,
			&r.FilesChanged, &r.FilesFailed, &r.BlocksFixed, &r.BlocksSkipped, &dryRun); err != nil {
			return nil, err
		}
		if targets != "" {
			r.Targets = strings.Split(targets, " ")
		}
		r.DryRun = dryRun != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FileHistory returns the newest n results for one path, newest first.
func (s *Store) FileHistory(path string, n int) ([]FileResult, error) {
	rows, err := s.db.Query(
		`SELECT fr.run_id, r.started_at, fr.path, fr.blocks_fixed,
		 fr.blocks_skipped, fr.status, COALESCE(fr.error, '')
		 FROM file_results fr JOIN runs r ON r.id = fr.run_id
		 WHERE fr.path = ? ORDER BY r.started_at DESC, fr.id DESC LIMIT ?`, path, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FileResult
	for rows.Next() {
		var fr FileResult
		if err := rows.Scan(&fr.RunID, &fr.StartedAt, &fr.Path, &fr.BlocksFixed,
			&fr.BlocksSkipped, &fr.Status, &fr.Error); err != nil {
			return nil, err
		}
		results = append(results, fr)
	}
	return results, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
