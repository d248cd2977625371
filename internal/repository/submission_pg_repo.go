package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"astapp/internal/model"
)

const createSubmissionsTable = `
CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY,
	app_id       TEXT NOT NULL,
	applicant_id BIGINT NOT NULL,
	total_score  DOUBLE PRECISION NOT NULL,
	max_score    DOUBLE PRECISION NOT NULL,
	passed       BOOLEAN NOT NULL,
	breakdown    JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS submissions_app_created_idx ON submissions (app_id, created_at DESC);`

// OpenPostgres connects and pings the database
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}
	return db, nil
}

type pgSubmissionRepository struct {
	db *sql.DB
}

// NewPgSubmissionRepository creates the Postgres submission store and
// ensures its table exists
func NewPgSubmissionRepository(ctx context.Context, db *sql.DB) (SubmissionRepository, error) {
	if _, err := db.ExecContext(ctx, createSubmissionsTable); err != nil {
		return nil, fmt.Errorf("create submissions table: %w", err)
	}
	return &pgSubmissionRepository{db: db}, nil
}

func (r *pgSubmissionRepository) Create(ctx context.Context, rec *model.SubmissionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	breakdown, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO submissions (id, app_id, applicant_id, total_score, max_score, passed, breakdown, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.AppID, rec.ApplicantID, rec.TotalScore, rec.MaxScore, rec.Passed, breakdown, rec.CreatedAt,
	)
	return err
}

func (r *pgSubmissionRepository) GetByID(ctx context.Context, id string) (*model.SubmissionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, app_id, applicant_id, total_score, max_score, passed, breakdown, created_at
		FROM submissions WHERE id = $1`, id)
	rec, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *pgSubmissionRepository) ListByApp(ctx context.Context, appID string, limit int) ([]*model.SubmissionRecord, error) {
	query := `
		SELECT id, app_id, applicant_id, total_score, max_score, passed, breakdown, created_at
		FROM submissions WHERE app_id = $1 ORDER BY created_at DESC`
	args := []any{appID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*model.SubmissionRecord
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(s rowScanner) (*model.SubmissionRecord, error) {
	var rec model.SubmissionRecord
	var breakdown []byte
	if err := s.Scan(&rec.ID, &rec.AppID, &rec.ApplicantID, &rec.TotalScore, &rec.MaxScore, &rec.Passed, &breakdown, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &rec.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown: %w", err)
		}
	}
	return &rec, nil
}
