package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"autoblogger/internal/domain"
	"autoblogger/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	source     TEXT NOT NULL,
	stages     TEXT NOT NULL,
	artifacts  TEXT NOT NULL,
	errors     TEXT NOT NULL,
	receipt    TEXT,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs (state);
`

// ErrNotFound is returned when no job exists for an identifier.
var ErrNotFound = errors.New("job not found")

// SQLiteStore persists ArticleJobs losslessly so a restart resumes
// each job from its last completed stage.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.JobStore = (*SQLiteStore)(nil)

// Open opens (or creates) the database file and applies the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the full job snapshot.
func (s *SQLiteStore) Save(ctx context.Context, job *domain.ArticleJob) error {
	source, err := json.Marshal(job.Source)
	if err != nil {
		return fmt.Errorf("marshal source: %w", err)
	}
	stages, err := json.Marshal(job.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	artifacts, err := json.Marshal(job.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}
	failures, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	var receipt any
	if job.Receipt != nil {
		raw, err := json.Marshal(job.Receipt)
		if err != nil {
			return fmt.Errorf("marshal receipt: %w", err)
		}
		receipt = string(raw)
	}

	query, args, err := sq.Insert("jobs").
		Columns("id", "state", "source", "stages", "artifacts", "errors", "receipt", "cancel_requested", "created_at", "updated_at").
		Values(job.ID, string(job.State), string(source), string(stages), string(artifacts), string(failures), receipt, job.CancelRequested, job.CreatedAt, job.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			stages = excluded.stages,
			artifacts = excluded.artifacts,
			errors = excluded.errors,
			receipt = excluded.receipt,
			cancel_requested = excluded.cancel_requested,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads one job by identifier.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.ArticleJob, error) {
	query, args, err := sq.Select("id", "state", "source", "stages", "artifacts", "errors", "receipt", "cancel_requested", "created_at", "updated_at").
		From("jobs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job, err
}

// ListResumable returns every job whose state is not terminal, in
// creation order.
func (s *SQLiteStore) ListResumable(ctx context.Context) ([]*domain.ArticleJob, error) {
	query, args, err := sq.Select("id", "state", "source", "stages", "artifacts", "errors", "receipt", "cancel_requested", "created_at", "updated_at").
		From("jobs").
		Where(sq.NotEq{"state": []string{
			string(domain.StateSucceeded),
			string(domain.StateFailed),
			string(domain.StateAbandoned),
		}}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resumable: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.ArticleJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return jobs, nil
}

// ReceiptFor returns the persisted receipt, or nil when the job has
// not reached terminal success.
func (s *SQLiteStore) ReceiptFor(ctx context.Context, jobID string) (*domain.PublishReceipt, error) {
	query, args, err := sq.Select("receipt").From("jobs").Where(sq.Eq{"id": jobID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var raw sql.NullString
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query receipt for %s: %w", jobID, err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var receipt domain.PublishReceipt
	if err := json.Unmarshal([]byte(raw.String), &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt for %s: %w", jobID, err)
	}
	return &receipt, nil
}

// SaveReceipt attaches a receipt to an existing job row.
func (s *SQLiteStore) SaveReceipt(ctx context.Context, jobID string, receipt domain.PublishReceipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	query, args, err := sq.Update("jobs").
		Set("receipt", string(raw)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": jobID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save receipt for %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save receipt for %s: %w", jobID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.ArticleJob, error) {
	var (
		job      domain.ArticleJob
		state    string
		source   string
		stages   string
		artifact string
		failures string
		receipt  sql.NullString
	)

	err := row.Scan(&job.ID, &state, &source, &stages, &artifact, &failures, &receipt, &job.CancelRequested, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.State = domain.JobState(state)
	if err := json.Unmarshal([]byte(source), &job.Source); err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}
	if err := json.Unmarshal([]byte(stages), &job.Stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	if err := json.Unmarshal([]byte(artifact), &job.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	if err := json.Unmarshal([]byte(failures), &job.Errors); err != nil {
		return nil, fmt.Errorf("decode errors: %w", err)
	}
	if receipt.Valid && receipt.String != "" {
		job.Receipt = &domain.PublishReceipt{}
		if err := json.Unmarshal([]byte(receipt.String), job.Receipt); err != nil {
			return nil, fmt.Errorf("decode receipt: %w", err)
		}
	}
	return &job, nil
}
