// Package store persists extraction jobs and their results in
// SQLite. Jobs move uploaded -> processing -> completed or failed;
// workers claim the oldest uploaded job atomically.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Job statuses.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var ErrNotFound = errors.New("not found")

type Job struct {
	ID        string
	FileName  string
	FilePath  string
	Bank      string
	Password  string
	Status    string
	ErrorCode string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id         TEXT PRIMARY KEY,
		file_name  TEXT NOT NULL,
		file_path  TEXT NOT NULL,
		bank       TEXT NOT NULL DEFAULT '',
		password   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		error_code TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at)`,
	`CREATE TABLE IF NOT EXISTS results (
		job_id     TEXT PRIMARY KEY REFERENCES jobs(id),
		response   BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

// Open opens (creating if needed) the SQLite database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids lock
	// contention between the API and the workers.
	db.SetMaxOpenConns(1)

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateJob(ctx context.Context, j Job) error {
	if j.Status == "" {
		j.Status = StatusUploaded
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, file_name, file_path, bank, password, status, error_code, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.FileName, j.FilePath, j.Bank, j.Password, j.Status,
		j.ErrorCode, j.Error, stamp(j.CreatedAt), stamp(j.UpdatedAt))
	return err
}

func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, file_path, bank, password, status, error_code, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ClaimNextUploaded atomically moves the oldest uploaded job to
// processing and returns it. ok is false when the queue is empty.
func (s *Store) ClaimNextUploaded(ctx context.Context) (Job, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, file_name, file_path, bank, password, status, error_code, error, created_at, updated_at
		 FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1`, StatusUploaded)
	j, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}

	j.Status = StatusProcessing
	j.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		j.Status, stamp(j.UpdatedAt), j.ID); err != nil {
		return Job{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Job{}, false, err
	}
	return j, true, nil
}

// MarkCompleted stores the response JSON and flips the job to
// completed in one transaction.
func (s *Store) MarkCompleted(ctx context.Context, id string, response []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := stamp(time.Now().UTC())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO results (job_id, response, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET response = excluded.response, created_at = excluded.created_at`,
		id, response, now); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_code = '', error = '', updated_at = ? WHERE id = ?`,
		StatusCompleted, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) MarkFailed(ctx context.Context, id, code, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_code = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, code, message, stamp(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetResult returns the stored response JSON for a completed job.
func (s *Store) GetResult(ctx context.Context, id string) ([]byte, error) {
	var response []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT response FROM results WHERE job_id = ?`, id).Scan(&response)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return response, nil
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, file_path, bank, password, status, error_code, error, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// RequeueStale returns jobs stuck in processing to the queue. Called
// at startup so work interrupted by a crash runs again.
func (s *Store) RequeueStale(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
		StatusUploaded, stamp(time.Now().UTC()), StatusProcessing)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountByStatus returns job counts keyed by status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var j Job
	var created, updated string
	err := row.Scan(&j.ID, &j.FileName, &j.FilePath, &j.Bank, &j.Password,
		&j.Status, &j.ErrorCode, &j.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return j, nil
}

// stampLayout keeps every fractional digit so stored timestamps sort
// lexicographically in ORDER BY.
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func stamp(t time.Time) string { return t.Format(stampLayout) }
