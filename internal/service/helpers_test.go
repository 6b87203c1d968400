package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/event"
	"narration-service/internal/logger"
	"narration-service/internal/repository/memory"
	"narration-service/internal/service"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ---- fakes ----

type queueStub struct {
	mu         sync.Mutex
	ids        []string
	priorities []int
}

func (q *queueStub) Enqueue(ctx context.Context, itemID string, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, itemID)
	q.priorities = append(q.priorities, priority)
	return nil
}

func (q *queueStub) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

type retryStub struct {
	mu        sync.Mutex
	scheduled []service.RetryDescriptor
}

func (r *retryStub) Schedule(ctx context.Context, d service.RetryDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, d)
	return nil
}

func (r *retryStub) Due(ctx context.Context, now time.Time, limit int64) ([]service.RetryDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due, rest []service.RetryDescriptor
	for _, d := range r.scheduled {
		if !d.ScheduledFor.After(now) && int64(len(due)) < limit {
			due = append(due, d)
			continue
		}
		rest = append(rest, d)
	}
	r.scheduled = rest
	return due, nil
}

// recorder keeps every event published on the bus.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func record(b *event.Bus) *recorder {
	r := &recorder{}
	b.SubscribeAll("recorder", func(ctx context.Context, e event.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
		return nil
	})
	return r
}

func (r *recorder) count(k event.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind() == k {
			n++
		}
	}
	return n
}

// ---- fixture ----

type fixture struct {
	jobs    *memory.JobRepository
	items   *memory.ContentItemRepository
	chunks  *memory.AudioChunkRepository
	errLogs *memory.ErrorLogRepository

	bus      *event.Bus
	events   *recorder
	queue    *queueStub
	retries  *retryStub
	orch     *service.Orchestrator
	errs     *service.ErrorCoordinator
	coord    *service.ChunkCoordinator
	progress *service.ProgressTracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()
	f := &fixture{
		jobs:    memory.NewJobRepository(),
		items:   memory.NewContentItemRepository(),
		chunks:  memory.NewAudioChunkRepository(),
		errLogs: memory.NewErrorLogRepository(),
		bus:     event.NewBus(log),
		queue:   &queueStub{},
		retries: &retryStub{},
	}
	f.events = record(f.bus)
	f.orch = service.NewOrchestrator(service.OrchestratorDeps{
		Jobs: f.jobs, Items: f.items, Chunks: f.chunks, ErrorLogs: f.errLogs,
		Queue: f.queue, Events: f.bus, Log: log,
	})
	f.errs = service.NewErrorCoordinator(service.ErrorCoordinatorDeps{
		ErrorLogs: f.errLogs, Retries: f.retries, Events: f.bus,
		ItemFail: f.orch, JobRec: f.orch, Log: log,
		Now: func() time.Time { return fixedNow },
	})
	f.coord = service.NewChunkCoordinator(f.items, f.errs, log)
	f.coord.Attach(f.bus)
	f.progress = service.NewProgressTracker(f.jobs, f.items, f.chunks, log)
	f.progress.Attach(f.bus)
	return f
}

// startedJob creates a job with n items and starts it.
func (f *fixture) startedJob(t *testing.T, n int) (*entity.Job, []*entity.ContentItem) {
	t.Helper()
	ctx := context.Background()
	rows := make([]entity.ItemSource, n)
	for i := range rows {
		rows[i] = entity.ItemSource{Title: "Title", Details: "Details"}
	}
	job, err := f.orch.CreateJob(ctx, "batch", entity.JobConfig{MaxRetries: 2}, rows)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := f.orch.StartJobProcessing(ctx, job.ID); err != nil {
		t.Fatalf("start job: %v", err)
	}
	items, err := f.orch.ListItems(ctx, job.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	return job, items
}

func (f *fixture) job(t *testing.T, id uuid.UUID) *entity.Job {
	t.Helper()
	j, err := f.jobs.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	return j
}

func (f *fixture) item(t *testing.T, id uuid.UUID) *entity.ContentItem {
	t.Helper()
	it, err := f.items.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load item: %v", err)
	}
	return it
}

// advance walks an item from pending to generating_audio the way the
// worker does.
func (f *fixture) advance(t *testing.T, itemID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := f.orch.ProcessItem(ctx, itemID); err != nil {
		t.Fatalf("process item: %v", err)
	}
	steps := []func(*entity.ContentItem) error{
		func(it *entity.ContentItem) error { return it.Validate() },
		func(it *entity.ContentItem) error { return it.StartTextGeneration(fixedNow) },
		func(it *entity.ContentItem) error { return it.SetGeneratedText("Narration text.", fixedNow) },
		func(it *entity.ContentItem) error { return it.StartChunking(fixedNow) },
		func(it *entity.ContentItem) error { return it.StartAudioGeneration(fixedNow) },
	}
	for i, step := range steps {
		if _, err := f.orch.AdvanceItem(ctx, itemID, step); err != nil {
			t.Fatalf("advance step %d: %v", i, err)
		}
	}
}
