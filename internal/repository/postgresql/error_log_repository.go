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

type ErrorLogRepository struct {
	pool *pgxpool.Pool
}

func NewErrorLogRepository(pool *pgxpool.Pool) *ErrorLogRepository {
	return &ErrorLogRepository{pool: pool}
}

const errorLogColumns = `id, job_id, item_id, chunk_id, step, code, message, retryable, retried_at, metadata, created_at`

func scanErrorLog(row pgx.Row) (*entity.ErrorLog, error) {
	var (
		l        entity.ErrorLog
		codeText string
		mdBytes  []byte
	)
	if err := row.Scan(
		&l.ID, &l.JobID, &l.ItemID, &l.ChunkID, &l.Step, &codeText, &l.Message,
		&l.Retryable, &l.RetriedAt, &mdBytes, &l.CreatedAt,
	); err != nil {
		return nil, err
	}
	l.Code = entity.ErrorCode(codeText)
	if len(mdBytes) > 0 {
		if err := json.Unmarshal(mdBytes, &l.Metadata); err != nil {
			return nil, err
		}
	}
	return &l, nil
}

func (r *ErrorLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ErrorLog, error) {
	l, err := scanErrorLog(r.pool.QueryRow(ctx, `SELECT `+errorLogColumns+` FROM error_logs WHERE id=$1;`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (r *ErrorLogRepository) FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*entity.ErrorLog, error) {
	return r.list(ctx, `SELECT `+errorLogColumns+` FROM error_logs WHERE job_id=$1 ORDER BY created_at;`, jobID)
}

func (r *ErrorLogRepository) FindByItemID(ctx context.Context, itemID uuid.UUID) ([]*entity.ErrorLog, error) {
	return r.list(ctx, `SELECT `+errorLogColumns+` FROM error_logs WHERE item_id=$1 ORDER BY created_at;`, itemID)
}

func (r *ErrorLogRepository) list(ctx context.Context, q string, id uuid.UUID) ([]*entity.ErrorLog, error) {
	rows, err := r.pool.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*entity.ErrorLog, 0)
	for rows.Next() {
		l, err := scanErrorLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Save inserts the log; on conflict only retried_at may change.
func (r *ErrorLogRepository) Save(ctx context.Context, l *entity.ErrorLog) error {
	md := l.Metadata
	if md == nil {
		md = map[string]any{}
	}
	mdBytes, err := json.Marshal(md)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO error_logs (id, job_id, item_id, chunk_id, step, code, message, retryable, retried_at, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET retried_at = COALESCE(error_logs.retried_at, EXCLUDED.retried_at);
`
	_, err = r.pool.Exec(ctx, q,
		l.ID, l.JobID, l.ItemID, l.ChunkID, l.Step, string(l.Code), l.Message, l.Retryable, l.RetriedAt, mdBytes, l.CreatedAt,
	)
	return err
}

func (r *ErrorLogRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM error_logs;`).Scan(&n)
	return n, err
}
