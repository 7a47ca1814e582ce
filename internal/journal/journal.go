// Package journal records job outcomes in a per-process SQLite database.
// Like the filesystem counters it is purely diagnostic: the pipeline's
// correctness never depends on it, and a journal failure only costs a row.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aristath/relaxpool/internal/events"
)

// Record is one journaled job outcome.
type Record struct {
	TaskID    string
	Stage     string // "screen" or "refine"
	Status    string // "inserted", "dropped", "claimed", "refined", "failed"
	Energy    float64
	Worker    string
	Detail    string // Evicted member, error message, or empty
	Timestamp time.Time
}

// Journal is a SQLite-backed job log.
type Journal struct {
	db *sql.DB
}

// Open creates a journal at dbPath, creating parent directories and the
// schema as needed. WAL mode keeps writers from blocking the poolmon reader.
func Open(ctx context.Context, dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return j, nil
}

// OpenMemory creates an in-memory journal for tests.
func OpenMemory(ctx context.Context) (*Journal, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("opening memory journal: %w", err)
	}
	// A single connection keeps the shared-cache in-memory DB alive.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		energy REAL,
		worker TEXT,
		detail TEXT,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_task_id ON jobs(task_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_recorded_at ON jobs(recorded_at);
	`
	_, err := j.db.ExecContext(ctx, schema)
	return err
}

// Add appends one record.
func (j *Journal) Add(ctx context.Context, r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO jobs (task_id, stage, status, energy, worker, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.TaskID, r.Stage, r.Status, r.Energy, r.Worker, r.Detail, r.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("inserting journal record: %w", err)
	}
	return nil
}

// Recent returns the newest n records, most recent first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT task_id, stage, status, energy, worker, detail, recorded_at
		FROM jobs
		ORDER BY id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.TaskID, &r.Stage, &r.Status, &r.Energy, &r.Worker, &r.Detail, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning journal record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Follow consumes bus events and journals them until the channel closes or
// ctx is cancelled. Run it in its own goroutine; record failures are dropped
// silently, per the diagnostic-only contract.
func (j *Journal) Follow(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if r, ok := recordFor(ev); ok {
				_ = j.Add(ctx, r)
			}
		}
	}
}

// recordFor maps a bus event onto a journal record.
func recordFor(ev events.Event) (Record, bool) {
	switch e := ev.(type) {
	case events.TaskScreenedEvent:
		return Record{TaskID: e.ID, Stage: "screen", Status: "screened", Energy: e.Energy, Timestamp: e.Timestamp}, true
	case events.TaskInsertedEvent:
		return Record{TaskID: e.ID, Stage: "screen", Status: "inserted", Energy: e.Energy, Detail: e.Evicted, Timestamp: e.Timestamp}, true
	case events.TaskDroppedEvent:
		return Record{TaskID: e.ID, Stage: "screen", Status: "dropped", Energy: e.Energy, Timestamp: e.Timestamp}, true
	case events.TaskClaimedEvent:
		return Record{TaskID: e.ID, Stage: "refine", Status: "claimed", Energy: e.Energy, Worker: e.WorkerID, Timestamp: e.Timestamp}, true
	case events.TaskRefinedEvent:
		return Record{TaskID: e.ID, Stage: "refine", Status: "refined", Energy: e.Energy, Worker: e.WorkerID, Timestamp: e.Timestamp}, true
	case events.TaskFailedEvent:
		detail := ""
		if e.Err != nil {
			detail = e.Err.Error()
		}
		return Record{TaskID: e.ID, Stage: e.Stage, Status: "failed", Worker: e.WorkerID, Detail: detail, Timestamp: e.Timestamp}, true
	}
	return Record{}, false
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
