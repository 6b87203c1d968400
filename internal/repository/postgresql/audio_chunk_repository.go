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

type AudioChunkRepository struct {
	pool *pgxpool.Pool
}

func NewAudioChunkRepository(pool *pgxpool.Pool) *AudioChunkRepository {
	return &AudioChunkRepository{pool: pool}
}

const chunkColumns = `id, item_id, text_chunk_id, chunk_index, text, status, audio_path, duration, file_size,
voice_id, retry_count, last_error, created_at, updated_at, completed_at`

func scanChunk(row pgx.Row) (*entity.AudioChunk, error) {
	var (
		c          entity.AudioChunk
		statusText string
	)
	if err := row.Scan(
		&c.ID, &c.ItemID, &c.TextChunkID, &c.Index, &c.Text, &statusText, &c.AudioPath, &c.Duration, &c.FileSize,
		&c.VoiceID, &c.RetryCount, &c.LastError, &c.CreatedAt, &c.UpdatedAt, &c.CompletedAt,
	); err != nil {
		return nil, err
	}
	c.Status = entity.ChunkStatus(statusText)
	return &c, nil
}

func (r *AudioChunkRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.AudioChunk, error) {
	c, err := scanChunk(r.pool.QueryRow(ctx, `SELECT `+chunkColumns+` FROM audio_chunks WHERE id=$1;`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *AudioChunkRepository) FindByItemID(ctx context.Context, itemID uuid.UUID) ([]*entity.AudioChunk, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+chunkColumns+` FROM audio_chunks WHERE item_id=$1 ORDER BY chunk_index;`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*entity.AudioChunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *AudioChunkRepository) Save(ctx context.Context, c *entity.AudioChunk) error {
	const q = `
INSERT INTO audio_chunks (id, item_id, text_chunk_id, chunk_index, text, status, audio_path, duration, file_size,
                          voice_id, retry_count, last_error, created_at, updated_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    audio_path = EXCLUDED.audio_path,
    duration = EXCLUDED.duration,
    file_size = EXCLUDED.file_size,
    retry_count = EXCLUDED.retry_count,
    last_error = EXCLUDED.last_error,
    updated_at = EXCLUDED.updated_at,
    completed_at = EXCLUDED.completed_at;
`
	_, err := r.pool.Exec(ctx, q,
		c.ID, c.ItemID, c.TextChunkID, c.Index, c.Text, string(c.Status), c.AudioPath, c.Duration, c.FileSize,
		c.VoiceID, c.RetryCount, c.LastError, c.CreatedAt, c.UpdatedAt, c.CompletedAt,
	)
	return err
}

func (r *AudioChunkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audio_chunks WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AudioChunkRepository) DeleteByItemID(ctx context.Context, itemID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audio_chunks WHERE item_id=$1;`, itemID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
