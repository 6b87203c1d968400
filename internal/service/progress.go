package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/event"
	"narration-service/internal/logger"
)

// DefaultProgressMaxAge bounds how long an idle tracking entry survives.
const DefaultProgressMaxAge = 30 * time.Minute

type ProgressSource string

const (
	SourceCache      ProgressSource = "cache"
	SourceRepository ProgressSource = "repository"
)

type JobProgress struct {
	JobID      uuid.UUID      `json:"job_id"`
	Completed  int            `json:"completed_items"`
	Failed     int            `json:"failed_items"`
	Total      int            `json:"total_items"`
	Percent    float64        `json:"percent"`
	ETASeconds *float64       `json:"eta_seconds,omitempty"`
	Source     ProgressSource `json:"source"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type ItemProgress struct {
	ItemID    uuid.UUID      `json:"item_id"`
	Step      string         `json:"step"`
	Percent   float64        `json:"percent"`
	Source    ProgressSource `json:"source"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type ChunkProgress struct {
	ChunkID   uuid.UUID      `json:"chunk_id"`
	Status    string         `json:"status"`
	Percent   float64        `json:"percent"`
	Source    ProgressSource `json:"source"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EstimateETA extrapolates linearly: total = elapsed / progress, and the
// remainder is what is left of it. ok is false when there is nothing to
// extrapolate from or nothing left.
func EstimateETA(elapsed time.Duration, progress float64) (time.Duration, bool) {
	if progress <= 0 || progress >= 1 || elapsed <= 0 {
		return 0, false
	}
	total := time.Duration(float64(elapsed) / progress)
	return total - elapsed, true
}

// ProgressTracker caches progress from events and falls back to the
// repositories for anything it has not seen.
type ProgressTracker struct {
	jobsRepo   JobRepository
	itemsRepo  ContentItemRepository
	chunksRepo AudioChunkRepository
	log        *logger.Logger
	now        func() time.Time

	mu     sync.RWMutex
	jobs   map[uuid.UUID]JobProgress
	items  map[uuid.UUID]ItemProgress
	chunks map[uuid.UUID]ChunkProgress
}

func NewProgressTracker(jobs JobRepository, items ContentItemRepository, chunks AudioChunkRepository, log *logger.Logger) *ProgressTracker {
	return &ProgressTracker{
		jobsRepo:   jobs,
		itemsRepo:  items,
		chunksRepo: chunks,
		log:        log.With("component", "progress"),
		now:        func() time.Time { return time.Now().UTC() },
		jobs:       map[uuid.UUID]JobProgress{},
		items:      map[uuid.UUID]ItemProgress{},
		chunks:     map[uuid.UUID]ChunkProgress{},
	}
}

// Attach subscribes the tracker to progress-bearing events and returns an
// unsubscribe func for all of them.
func (t *ProgressTracker) Attach(b *event.Bus) func() {
	offs := []func(){
		b.Subscribe(event.KindJobProgressUpdated, "progress", t.onEvent),
		b.Subscribe(event.KindItemProgressUpdated, "progress", t.onEvent),
		b.SubscribeGroup(event.GroupChunk, "progress", t.onEvent),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (t *ProgressTracker) onEvent(_ context.Context, e event.Event) error {
	at := e.OccurredAt
	t.mu.Lock()
	defer t.mu.Unlock()

	switch p := e.Payload.(type) {
	case event.JobProgressUpdated:
		t.jobs[p.JobID] = JobProgress{
			JobID:      p.JobID,
			Completed:  p.Completed,
			Failed:     p.Failed,
			Total:      p.Total,
			Percent:    p.Percent,
			ETASeconds: p.ETASeconds,
			Source:     SourceCache,
			UpdatedAt:  at,
		}
	case event.ItemProgressUpdated:
		t.items[p.ItemID] = ItemProgress{ItemID: p.ItemID, Step: p.Step, Percent: p.Percent, Source: SourceCache, UpdatedAt: at}
	case event.ChunkCreated:
		t.chunks[p.ChunkID] = ChunkProgress{ChunkID: p.ChunkID, Status: string(entity.ChunkPending), Source: SourceCache, UpdatedAt: at}
	case event.ChunkProcessingStarted:
		t.chunks[p.ChunkID] = ChunkProgress{ChunkID: p.ChunkID, Status: string(entity.ChunkProcessing), Percent: 50, Source: SourceCache, UpdatedAt: at}
	case event.ChunkProcessingCompleted:
		st := entity.ChunkCompleted
		if !p.Success {
			st = entity.ChunkFailed
		}
		t.chunks[p.ChunkID] = ChunkProgress{ChunkID: p.ChunkID, Status: string(st), Percent: 100, Source: SourceCache, UpdatedAt: at}
	}
	return nil
}

func (t *ProgressTracker) GetJobProgress(ctx context.Context, jobID uuid.UUID) (JobProgress, error) {
	t.mu.RLock()
	p, ok := t.jobs[jobID]
	t.mu.RUnlock()
	if ok {
		return p, nil
	}

	job, err := t.jobsRepo.FindByID(ctx, jobID)
	if err != nil {
		return JobProgress{}, err
	}
	now := t.now()
	p = JobProgress{
		JobID:     job.ID,
		Completed: job.CompletedItems,
		Failed:    job.FailedItems,
		Total:     job.TotalItems,
		Percent:   job.Progress() * 100,
		Source:    SourceRepository,
		UpdatedAt: now,
	}
	if job.StartedAt != nil && !job.Status.IsTerminal() {
		if eta, ok := EstimateETA(now.Sub(*job.StartedAt), job.Progress()); ok {
			s := eta.Seconds()
			p.ETASeconds = &s
		}
	}
	return p, nil
}

func (t *ProgressTracker) GetItemProgress(ctx context.Context, itemID uuid.UUID) (ItemProgress, error) {
	t.mu.RLock()
	p, ok := t.items[itemID]
	t.mu.RUnlock()
	if ok {
		return p, nil
	}

	it, err := t.itemsRepo.FindByID(ctx, itemID)
	if err != nil {
		return ItemProgress{}, err
	}
	return ItemProgress{
		ItemID:    it.ID,
		Step:      string(it.Status),
		Percent:   it.Progress() * 100,
		Source:    SourceRepository,
		UpdatedAt: t.now(),
	}, nil
}

func (t *ProgressTracker) GetChunkProgress(ctx context.Context, chunkID uuid.UUID) (ChunkProgress, error) {
	t.mu.RLock()
	p, ok := t.chunks[chunkID]
	t.mu.RUnlock()
	if ok {
		return p, nil
	}

	c, err := t.chunksRepo.FindByID(ctx, chunkID)
	if err != nil {
		return ChunkProgress{}, err
	}
	return ChunkProgress{
		ChunkID:   c.ID,
		Status:    string(c.Status),
		Percent:   c.Progress() * 100,
		Source:    SourceRepository,
		UpdatedAt: t.now(),
	}, nil
}

// CleanupOldTracking drops entries not updated within maxAge and returns
// how many were removed.
func (t *ProgressTracker) CleanupOldTracking(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultProgressMaxAge
	}
	cutoff := t.now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, p := range t.jobs {
		if p.UpdatedAt.Before(cutoff) {
			delete(t.jobs, id)
			n++
		}
	}
	for id, p := range t.items {
		if p.UpdatedAt.Before(cutoff) {
			delete(t.items, id)
			n++
		}
	}
	for id, p := range t.chunks {
		if p.UpdatedAt.Before(cutoff) {
			delete(t.chunks, id)
			n++
		}
	}
	if n > 0 {
		t.log.Debug("progress tracking cleaned", "removed", n, "max_age", maxAge.String())
	}
	return n
}

// RunCleanup calls CleanupOldTracking every interval until ctx is done.
func (t *ProgressTracker) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CleanupOldTracking(maxAge)
		}
	}
}
