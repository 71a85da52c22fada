package joblog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const schema = `
CREATE TABLE IF NOT EXISTS job_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	content_type TEXT NOT NULL,
	content_key TEXT NOT NULL,
	index_id TEXT NOT NULL,
	requester TEXT NOT NULL,
	priority TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error_code TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	created INTEGER NOT NULL,
	finished INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_records_index ON job_records(index_id, outcome);
CREATE INDEX IF NOT EXISTS idx_job_records_requester ON job_records(requester, outcome);
`

// SQLiteStore keeps records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the job log at path. An empty path gives an
// in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open job log: %w", err)
	}
	// Single connection: an in-memory database is per connection, and
	// one writer avoids lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create job log schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_records (job_id, content_type, content_key, index_id, requester,
			priority, outcome, error_code, message, created, finished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.JobID, r.ContentType, r.ContentKey, r.IndexID, r.Requester,
		r.Priority, string(r.Outcome), r.ErrorCode, r.Message,
		r.Created.UnixNano(), r.Finished.UnixNano())
	if err != nil {
		return fmt.Errorf("insert job record: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.IndexID != "" {
		where = append(where, "index_id = ?")
		args = append(args, f.IndexID)
	}
	if f.Requester != "" {
		where = append(where, "requester = ?")
		args = append(args, f.Requester)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(f.Outcome))
	}

	q := `SELECT job_id, content_type, content_key, index_id, requester, priority,
		outcome, error_code, message, created, finished FROM job_records`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query job records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                 Record
			outcome           string
			created, finished int64
		)
		if err := rows.Scan(&r.JobID, &r.ContentType, &r.ContentKey, &r.IndexID, &r.Requester,
			&r.Priority, &outcome, &r.ErrorCode, &r.Message, &created, &finished); err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		r.Outcome = Outcome(outcome)
		r.Created = time.Unix(0, created)
		r.Finished = time.Unix(0, finished)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// newest first from the query; callers get oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
