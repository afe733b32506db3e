// Package ledger provides the SQLite-backed job history.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// registers the "sqlite3" driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	handle       TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	location     TEXT NOT NULL,
	scene_index  INTEGER NOT NULL,
	band_group   TEXT NOT NULL,
	name         TEXT NOT NULL,
	folder       TEXT NOT NULL,
	state        TEXT NOT NULL,
	submitted_at INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_location ON jobs (location, submitted_at);
`

// SQLiteLedger implements the JobLedger port on a SQLite database file.
type SQLiteLedger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the ledger at path. ":memory:" keeps it in memory.
func Open(ctx context.Context, path string) (*SQLiteLedger, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	// single writer; an in-memory database only lives on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	return &SQLiteLedger{db: db, now: time.Now}, nil
}

// RecordSubmission implements JobLedger.
func (l *SQLiteLedger) RecordSubmission(ctx context.Context, rec output.JobRecord) error {
	if rec.Handle == "" {
		return fmt.Errorf("ledger record without handle: %w", domain.ErrInvalidInput)
	}

	submitted := rec.SubmittedAt
	if submitted.IsZero() {
		submitted = l.now()
	}
	state := rec.State
	if state == "" {
		state = domain.JobStateReady
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO jobs (handle, run_id, location, scene_index, band_group, name, folder, state, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		string(rec.Handle), rec.RunID, rec.Key.Location, rec.Key.SceneIndex, string(rec.Key.BandGroup),
		rec.Name, rec.Folder, string(state), submitted.UnixMilli(), submitted.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording submission of %s: %w", rec.Name, err)
	}
	return nil
}

// RecordState implements JobLedger.
func (l *SQLiteLedger) RecordState(ctx context.Context, handle domain.JobHandle, state domain.JobState) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, updated_at = ? WHERE handle = ?`,
		string(state), l.now().UnixMilli(), string(handle),
	)
	if err != nil {
		return fmt.Errorf("recording state of %s: %w", handle, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording state of %s: %w", handle, err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", handle, domain.ErrNotFound)
	}
	return nil
}

// Jobs implements JobLedger.
func (l *SQLiteLedger) Jobs(ctx context.Context, location string) ([]output.JobRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT handle, run_id, location, scene_index, band_group, name, folder, state, submitted_at, updated_at
		FROM jobs WHERE location = ? ORDER BY submitted_at, rowid`, location)
	if err != nil {
		return nil, fmt.Errorf("querying jobs of %s: %w", location, err)
	}
	defer func() { _ = rows.Close() }()

	var records []output.JobRecord
	for rows.Next() {
		var (
			rec                  output.JobRecord
			handle, group, state string
			submitted, updated   int64
		)
		if err := rows.Scan(&handle, &rec.RunID, &rec.Key.Location, &rec.Key.SceneIndex, &group,
			&rec.Name, &rec.Folder, &state, &submitted, &updated); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		rec.Handle = domain.JobHandle(handle)
		rec.Key.RunID = rec.RunID
		rec.Key.BandGroup = domain.BandGroup(group)
		rec.State = domain.JobState(state)
		rec.SubmittedAt = time.UnixMilli(submitted)
		rec.UpdatedAt = time.UnixMilli(updated)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job rows: %w", err)
	}
	return records, nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
