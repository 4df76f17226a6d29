package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ahmethakanbesel/stocksent/internal/apperror"
	domain "github.com/ahmethakanbesel/stocksent/internal/job"
)

const (
	dateFormat = "2006-01-02"
	listLimit  = 100

	selectColumns = `SELECT id, kind, symbol, start_date, end_date,
		status, error, records_count, created_at, updated_at
		FROM jobs`
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, j *domain.Job) error {
	const query = `INSERT INTO jobs (kind, symbol, start_date, end_date, status)
		VALUES (?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		string(j.Kind), j.Symbol,
		j.StartDate.Format(dateFormat), j.EndDate.Format(dateFormat),
		string(j.Status),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	j.ID, _ = res.LastInsertId()
	j.CreatedAt = time.Now().UTC()
	j.UpdatedAt = j.CreatedAt
	return nil
}

func (r *Repository) Update(ctx context.Context, j *domain.Job) error {
	const query = `UPDATE jobs SET status = ?, error = ?, records_count = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	var errText sql.NullString
	if j.Error != "" {
		errText = sql.NullString{String: j.Error, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, string(j.Status), errText, j.RecordsCount, j.ID); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// List returns the most recent runs, newest first, optionally filtered by
// kind and symbol.
func (r *Repository) List(ctx context.Context, kind domain.Kind, symbol string) ([]domain.Job, error) {
	query := selectColumns + " WHERE 1=1"
	var args []any
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", listLimit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := []domain.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (domain.Job, error) {
	var (
		j                      domain.Job
		kind, status           string
		startStr, endStr       string
		createdStr, updatedStr string
		errText                sql.NullString
	)
	if err := row.Scan(
		&j.ID, &kind, &j.Symbol,
		&startStr, &endStr, &status, &errText,
		&j.RecordsCount, &createdStr, &updatedStr,
	); err != nil {
		return domain.Job{}, err
	}

	j.Kind = domain.Kind(kind)
	j.Status = domain.Status(status)
	j.Error = errText.String
	j.StartDate, _ = time.Parse(dateFormat, startStr)
	j.EndDate, _ = time.Parse(dateFormat, endStr)
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return j, nil
}
