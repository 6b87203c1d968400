package service

import (
	"context"

	"github.com/google/uuid"

	"narration-service/internal/entity"
)

// Порты репозиториев (реализации: postgresql.*, memory.*)

type JobRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Save(ctx context.Context, j *entity.Job) error
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Count(ctx context.Context) (int, error)
}

type ContentItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ContentItem, error)
	FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*entity.ContentItem, error)
	Save(ctx context.Context, it *entity.ContentItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	CountByJobID(ctx context.Context, jobID uuid.UUID) (int, error)
}

type AudioChunkRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.AudioChunk, error)
	FindByItemID(ctx context.Context, itemID uuid.UUID) ([]*entity.AudioChunk, error)
	Save(ctx context.Context, c *entity.AudioChunk) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByItemID(ctx context.Context, itemID uuid.UUID) (int, error)
}

type ErrorLogRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ErrorLog, error)
	FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*entity.ErrorLog, error)
	FindByItemID(ctx context.Context, itemID uuid.UUID) ([]*entity.ErrorLog, error)
	Save(ctx context.Context, l *entity.ErrorLog) error
	Count(ctx context.Context) (int, error)
}

// ItemQueue is the small port for handing items to workers.
// (Не называем Queue, чтобы не конфликтовать с queue_service.go)
type ItemQueue interface {
	Enqueue(ctx context.Context, itemID string, priority int) error
}
