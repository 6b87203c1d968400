package postgresql

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"narration-service/internal/entity"
	"narration-service/internal/repository"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, name, status, total_items, completed_items, failed_items, config,
error_message, created_at, updated_at, started_at, completed_at`

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`

	var (
		job        entity.Job
		statusText string
		cfgBytes   []byte
	)
	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.ID,
		&job.Name,
		&statusText,
		&job.TotalItems,
		&job.CompletedItems,
		&job.FailedItems,
		&cfgBytes,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,   // NULL => nil
		&job.CompletedAt, // NULL => nil
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	job.Status = entity.JobStatus(statusText)
	if len(cfgBytes) > 0 {
		if err := json.Unmarshal(cfgBytes, &job.Config); err != nil {
			return nil, err
		}
	}
	return &job, nil
}

// Save upserts the whole row, so a terminal status and its final counters
// land in the same write.
func (r *JobRepository) Save(ctx context.Context, j *entity.Job) error {
	cfg, err := json.Marshal(j.Config)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO jobs (id, name, status, total_items, completed_items, failed_items, config,
                  error_message, created_at, updated_at, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    status = EXCLUDED.status,
    total_items = EXCLUDED.total_items,
    completed_items = EXCLUDED.completed_items,
    failed_items = EXCLUDED.failed_items,
    config = EXCLUDED.config,
    error_message = EXCLUDED.error_message,
    updated_at = EXCLUDED.updated_at,
    started_at = EXCLUDED.started_at,
    completed_at = EXCLUDED.completed_at;
`
	_, err = r.pool.Exec(ctx, q,
		j.ID, j.Name, string(j.Status), j.TotalItems, j.CompletedItems, j.FailedItems, cfg,
		j.ErrorMessage, j.CreatedAt, j.UpdatedAt, j.StartedAt, j.CompletedAt,
	)
	return err
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *JobRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id=$1);`, id).Scan(&ok)
	return ok, err
}

func (r *JobRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs;`).Scan(&n)
	return n, err
}
