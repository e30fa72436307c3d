// history.go keeps an optional SQLite ledger of task outcomes across runs.

package backup

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const historySchema = `
	CREATE TABLE IF NOT EXISTS task_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task TEXT NOT NULL,
		mode TEXT NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		patch_bytes INTEGER NOT NULL DEFAULT 0,
		create_seconds REAL NOT NULL DEFAULT 0,
		apply_seconds REAL NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	)
`

// History records task outcomes in a SQLite database.
type History struct {
	db *sql.DB
}

// OpenHistory opens the history database at path, creating the file and the
// schema on first use.
func OpenHistory(ctx context.Context, path string) (*History, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &History{db: db}, nil
}

// Record inserts one task outcome.
func (h *History) Record(ctx context.Context, o *TaskOutcome) error {
	query := `
		INSERT INTO task_runs (run_id, task, mode, source, target, status, error,
			patch_bytes, create_seconds, apply_seconds, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var patchBytes int64
	var createSeconds, applySeconds float64
	if o.Result != nil {
		patchBytes = o.Result.PatchBytes
		createSeconds = o.Result.CreateTime.Seconds()
		applySeconds = o.Result.ApplyTime.Seconds()
	}
	_, err := h.db.ExecContext(ctx, query,
		o.RunID, o.Task, o.Mode, o.Source, o.Target, o.Status, o.Error,
		patchBytes, createSeconds, applySeconds,
		o.StartedAt.Unix(), o.FinishedAt.Unix())
	return err
}

// Close releases the database handle. A nil history is safe to close.
func (h *History) Close() error {
	if h == nil {
		return nil
	}
	return h.db.Close()
}
