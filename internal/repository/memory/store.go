// Package memory keeps entities in process memory. It backs tests and
// single-node runs without Postgres; every read and write copies the
// entity so callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/repository"
)

type JobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]entity.Job
}

func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: map[uuid.UUID]entity.Job{}}
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &j, nil
}

func (r *JobRepository) Save(ctx context.Context, j *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = *j
	return nil
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *JobRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[id]
	return ok, nil
}

func (r *JobRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs), nil
}

type ContentItemRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]entity.ContentItem
}

func NewContentItemRepository() *ContentItemRepository {
	return &ContentItemRepository{items: map[uuid.UUID]entity.ContentItem{}}
}

func (r *ContentItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &it, nil
}

// FindByJobID returns items ordered by row index.
func (r *ContentItemRepository) FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*entity.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.ContentItem, 0)
	for _, it := range r.items {
		if it.JobID == jobID {
			out = append(out, &it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out, nil
}

func (r *ContentItemRepository) Save(ctx context.Context, it *entity.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[it.ID] = *it
	return nil
}

func (r *ContentItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *ContentItemRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[id]
	return ok, nil
}

func (r *ContentItemRepository) CountByJobID(ctx context.Context, jobID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, it := range r.items {
		if it.JobID == jobID {
			n++
		}
	}
	return n, nil
}

type AudioChunkRepository struct {
	mu     sync.RWMutex
	chunks map[uuid.UUID]entity.AudioChunk
}

func NewAudioChunkRepository() *AudioChunkRepository {
	return &AudioChunkRepository{chunks: map[uuid.UUID]entity.AudioChunk{}}
}

func (r *AudioChunkRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.AudioChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chunks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

// FindByItemID returns chunks ordered by index.
func (r *AudioChunkRepository) FindByItemID(ctx context.Context, itemID uuid.UUID) ([]*entity.AudioChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.AudioChunk, 0)
	for _, c := range r.chunks {
		if c.ItemID == itemID {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *AudioChunkRepository) Save(ctx context.Context, c *entity.AudioChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[c.ID] = *c
	return nil
}

func (r *AudioChunkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chunks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.chunks, id)
	return nil
}

func (r *AudioChunkRepository) DeleteByItemID(ctx context.Context, itemID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, c := range r.chunks {
		if c.ItemID == itemID {
			delete(r.chunks, id)
			n++
		}
	}
	return n, nil
}

type ErrorLogRepository struct {
	mu   sync.RWMutex
	logs map[uuid.UUID]entity.ErrorLog
}

func NewErrorLogRepository() *ErrorLogRepository {
	return &ErrorLogRepository{logs: map[uuid.UUID]entity.ErrorLog{}}
}

func (r *ErrorLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ErrorLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyLog(l), nil
}

func (r *ErrorLogRepository) FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*entity.ErrorLog, error) {
	return r.filter(func(l entity.ErrorLog) bool { return l.JobID != nil && *l.JobID == jobID }), nil
}

func (r *ErrorLogRepository) FindByItemID(ctx context.Context, itemID uuid.UUID) ([]*entity.ErrorLog, error) {
	return r.filter(func(l entity.ErrorLog) bool { return l.ItemID != nil && *l.ItemID == itemID }), nil
}

func (r *ErrorLogRepository) Save(ctx context.Context, l *entity.ErrorLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[l.ID] = *copyLog(*l)
	return nil
}

func (r *ErrorLogRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logs), nil
}

func (r *ErrorLogRepository) filter(keep func(entity.ErrorLog) bool) []*entity.ErrorLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.ErrorLog, 0)
	for _, l := range r.logs {
		if keep(l) {
			out = append(out, copyLog(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func copyLog(l entity.ErrorLog) *entity.ErrorLog {
	if l.Metadata != nil {
		md := make(map[string]any, len(l.Metadata))
		for k, v := range l.Metadata {
			md[k] = v
		}
		l.Metadata = md
	}
	return &l
}
