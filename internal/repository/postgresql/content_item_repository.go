package postgresql

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"narration-service/internal/entity"
	"narration-service/internal/repository"
)

type ContentItemRepository struct {
	pool *pgxpool.Pool
}

func NewContentItemRepository(pool *pgxpool.Pool) *ContentItemRepository {
	return &ContentItemRepository{pool: pool}
}

const itemColumns = `id, job_id, row_index, status, current_step, title, details, category, reference,
generated_text, final_audio_path, retry_count, max_retries, error_message,
created_at, updated_at, started_at, finalized_at`

func scanItem(row pgx.Row) (*entity.ContentItem, error) {
	var (
		it         entity.ContentItem
		statusText string
	)
	if err := row.Scan(
		&it.ID, &it.JobID, &it.RowIndex, &statusText, &it.CurrentStep,
		&it.Title, &it.Details, &it.Category, &it.Reference,
		&it.GeneratedText, &it.FinalAudioPath, &it.RetryCount, &it.MaxRetries, &it.ErrorMessage,
		&it.CreatedAt, &it.UpdatedAt, &it.StartedAt, &it.FinalizedAt,
	); err != nil {
		return nil, err
	}
	it.Status = entity.ItemStatus(statusText)
	return &it, nil
}

func (r *ContentItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ContentItem, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id=$1;`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return it, nil
}

func (r *ContentItemRepository) FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*entity.ContentItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM content_items WHERE job_id=$1 ORDER BY row_index;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*entity.ContentItem, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *ContentItemRepository) Save(ctx context.Context, it *entity.ContentItem) error {
	const q = `
INSERT INTO content_items (id, job_id, row_index, status, current_step, title, details, category, reference,
                           generated_text, final_audio_path, retry_count, max_retries, error_message,
                           created_at, updated_at, started_at, finalized_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    current_step = EXCLUDED.current_step,
    generated_text = EXCLUDED.generated_text,
    final_audio_path = EXCLUDED.final_audio_path,
    retry_count = EXCLUDED.retry_count,
    max_retries = EXCLUDED.max_retries,
    error_message = EXCLUDED.error_message,
    updated_at = EXCLUDED.updated_at,
    started_at = EXCLUDED.started_at,
    finalized_at = EXCLUDED.finalized_at;
`
	_, err := r.pool.Exec(ctx, q,
		it.ID, it.JobID, it.RowIndex, string(it.Status), it.CurrentStep, it.Title, it.Details, it.Category, it.Reference,
		it.GeneratedText, it.FinalAudioPath, it.RetryCount, it.MaxRetries, it.ErrorMessage,
		it.CreatedAt, it.UpdatedAt, it.StartedAt, it.FinalizedAt,
	)
	return err
}

func (r *ContentItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM content_items WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ContentItemRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM content_items WHERE id=$1);`, id).Scan(&ok)
	return ok, err
}

func (r *ContentItemRepository) CountByJobID(ctx context.Context, jobID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM content_items WHERE job_id=$1;`, jobID).Scan(&n)
	return n, err
}
