package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/event"
	"narration-service/internal/logger"
)

var (
	// ErrJobNotActive: the owning job no longer accepts results (cancelled,
	// failed or completed), or the item was finalized meanwhile. Callers drop
	// whatever they were about to commit.
	ErrJobNotActive = errors.New("job is not active")
	// ErrItemNotRunnable is returned by ProcessItem for duplicate deliveries.
	ErrItemNotRunnable = errors.New("item is not runnable")
	// ErrJobPaused: new items are not started while the job is paused.
	ErrJobPaused = errors.New("job is paused")
)

type OrchestratorDeps struct {
	Jobs      JobRepository
	Items     ContentItemRepository
	Chunks    AudioChunkRepository
	ErrorLogs ErrorLogRepository
	Queue     ItemQueue
	Events    event.Publisher
	Log       *logger.Logger
	Now       func() time.Time
}

// Orchestrator drives the job lifecycle and is the only writer of job
// counters. Every job mutation, and every item mutation that can race with
// one, runs under the per-job lock.
type Orchestrator struct {
	jobs      JobRepository
	items     ContentItemRepository
	chunks    AudioChunkRepository
	errorLogs ErrorLogRepository
	queue     ItemQueue
	events    event.Publisher
	log       *logger.Logger
	now       func() time.Time

	jobLocks *keyedMutex
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		jobs:      d.Jobs,
		items:     d.Items,
		chunks:    d.Chunks,
		errorLogs: d.ErrorLogs,
		queue:     d.Queue,
		events:    d.Events,
		log:       d.Log.With("component", "orchestrator"),
		now:       d.Now,
		jobLocks:  newKeyedMutex(),
	}
}

func (o *Orchestrator) emit(ctx context.Context, ps ...event.Payload) {
	for _, p := range ps {
		o.events.Publish(ctx, p)
	}
}

// locked runs fn under the job lock and publishes what it returns once the
// lock is released, so handlers may call back into the orchestrator.
func (o *Orchestrator) locked(ctx context.Context, jobID uuid.UUID, fn func() ([]event.Payload, error)) error {
	unlock := o.jobLocks.Lock(jobID)
	out, err := fn()
	unlock()
	o.emit(ctx, out...)
	return err
}

func (o *Orchestrator) CreateJob(ctx context.Context, name string, cfg entity.JobConfig, rows []entity.ItemSource) (*entity.Job, error) {
	now := o.now()
	job, err := entity.NewJob(name, cfg, now)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &entity.ValidationError{Field: "rows", Reason: "at least one row is required"}
	}
	if err := job.StartValidation(now); err != nil {
		return nil, err
	}
	if err := job.SetTotalItems(len(rows), now); err != nil {
		return nil, err
	}
	if err := o.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	created := make([]event.Payload, 0, len(rows))
	for i, src := range rows {
		it := entity.NewContentItem(job.ID, i, src, job.Config.MaxRetries, now)
		if err := o.items.Save(ctx, it); err != nil {
			if fErr := job.Fail("item persistence failed", o.now()); fErr == nil {
				_ = o.jobs.Save(ctx, job)
			}
			return nil, fmt.Errorf("save item row=%d: %w", i, err)
		}
		created = append(created, event.ItemCreated{JobID: job.ID, ItemID: it.ID, RowIndex: i})
	}

	if err := job.MarkReady(o.now()); err != nil {
		return nil, err
	}
	if err := o.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	o.emit(ctx, created...)

	o.log.Info("job created", "job_id", job.ID.String(), "name", job.Name, "items", job.TotalItems, "priority", job.Config.Priority)
	return job, nil
}

// StartJobProcessing moves the job to processing and hands every pending
// item to the queue.
func (o *Orchestrator) StartJobProcessing(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	var job *entity.Job
	err := o.locked(ctx, jobID, func() ([]event.Payload, error) {
		j, err := o.jobs.FindByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if err := j.Start(o.now()); err != nil {
			return nil, err
		}
		if err := o.jobs.Save(ctx, j); err != nil {
			return nil, fmt.Errorf("save job: %w", err)
		}
		job = j
		return []event.Payload{event.JobStarted{JobID: j.ID, TotalItems: j.TotalItems}, o.jobProgress(j)}, nil
	})
	if err != nil {
		return nil, err
	}

	n, err := o.enqueuePending(ctx, job)
	if err != nil {
		return job, err
	}
	o.log.Info("job started", "job_id", jobID.String(), "enqueued", n, "total", job.TotalItems)
	return job, nil
}

// enqueuePending hands the queue every item that a worker can claim:
// pending items and failed attempts with retry budget left.
func (o *Orchestrator) enqueuePending(ctx context.Context, job *entity.Job) (int, error) {
	items, err := o.items.FindByJobID(ctx, job.ID)
	if err != nil {
		return 0, fmt.Errorf("load items: %w", err)
	}
	n := 0
	for _, it := range items {
		if it.Status != entity.ItemPending && !it.CanRetry() {
			continue
		}
		if err := o.queue.Enqueue(ctx, it.ID.String(), job.Config.Priority); err != nil {
			return n, fmt.Errorf("enqueue item %s: %w", it.ID, err)
		}
		n++
	}
	return n, nil
}

// RequeuePending re-enqueues pending items of an active job. It backs
// job-scope retries.
func (o *Orchestrator) RequeuePending(ctx context.Context, jobID uuid.UUID) (int, error) {
	job, err := o.jobs.FindByID(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job.Status != entity.JobProcessing {
		return 0, ErrJobNotActive
	}
	return o.enqueuePending(ctx, job)
}

// mutateJob loads the job under its lock, applies fn and saves it.
func (o *Orchestrator) mutateJob(ctx context.Context, jobID uuid.UUID, fn func(*entity.Job) ([]event.Payload, error)) (*entity.Job, error) {
	var job *entity.Job
	err := o.locked(ctx, jobID, func() ([]event.Payload, error) {
		j, err := o.jobs.FindByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		out, err := fn(j)
		if err != nil {
			return nil, err
		}
		if err := o.jobs.Save(ctx, j); err != nil {
			return nil, fmt.Errorf("save job: %w", err)
		}
		job = j
		return out, nil
	})
	return job, err
}

func (o *Orchestrator) PauseJob(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	job, err := o.mutateJob(ctx, jobID, func(j *entity.Job) ([]event.Payload, error) {
		if err := j.Pause(o.now()); err != nil {
			return nil, err
		}
		return []event.Payload{event.JobPaused{JobID: jobID}, o.jobProgress(j)}, nil
	})
	if err != nil {
		return nil, err
	}
	o.log.Info("job paused", "job_id", jobID.String())
	return job, nil
}

// ResumeJob continues a paused job. Items that were not started during
// the pause, and retries that came due meanwhile, are enqueued again;
// duplicates are dropped by ProcessItem.
func (o *Orchestrator) ResumeJob(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	job, err := o.mutateJob(ctx, jobID, func(j *entity.Job) ([]event.Payload, error) {
		if err := j.Resume(o.now()); err != nil {
			return nil, err
		}
		return []event.Payload{o.jobProgress(j)}, nil
	})
	if err != nil {
		return nil, err
	}

	n, err := o.enqueuePending(ctx, job)
	if err != nil {
		return job, err
	}
	o.log.Info("job resumed", "job_id", jobID.String(), "enqueued", n)
	return job, nil
}

// CancelJobProcessing cancels the job and finalizes every item that has
// not reached a terminal status. In-flight work is not interrupted; its
// results are refused by AdvanceItem and CompleteItem.
func (o *Orchestrator) CancelJobProcessing(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	cancelled := 0
	job, err := o.mutateJob(ctx, jobID, func(j *entity.Job) ([]event.Payload, error) {
		now := o.now()
		if err := j.Cancel(now); err != nil {
			return nil, err
		}
		n, err := o.finalizeOpenItems(ctx, jobID, string(entity.CodeCancelled), now)
		if err != nil {
			return nil, err
		}
		cancelled = n
		return []event.Payload{event.JobCancelled{JobID: jobID, CancelledItems: n}, o.jobProgress(j)}, nil
	})
	if err != nil {
		return nil, err
	}
	o.log.Info("job cancelled", "job_id", jobID.String(), "cancelled_items", cancelled)
	return job, nil
}

// FailJob marks the job failed and finalizes its open items.
func (o *Orchestrator) FailJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	_, err := o.mutateJob(ctx, jobID, func(j *entity.Job) ([]event.Payload, error) {
		now := o.now()
		if err := j.Fail(reason, now); err != nil {
			return nil, err
		}
		if _, err := o.finalizeOpenItems(ctx, jobID, "job failed: "+reason, now); err != nil {
			return nil, err
		}
		return []event.Payload{event.JobFailed{
			JobID:     jobID,
			Completed: j.CompletedItems,
			Failed:    j.FailedItems,
			Error:     reason,
		}}, nil
	})
	if err != nil {
		return err
	}
	o.log.Warn("job failed", "job_id", jobID.String(), "error", reason)
	return nil
}

// finalizeOpenItems fails every item of the job that is not finalized yet.
// Must be called with the job lock held.
func (o *Orchestrator) finalizeOpenItems(ctx context.Context, jobID uuid.UUID, reason string, now time.Time) (int, error) {
	items, err := o.items.FindByJobID(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("load items: %w", err)
	}
	n := 0
	for _, it := range items {
		if it.IsFinalized() {
			continue
		}
		first, err := it.FailPermanently(reason, now)
		if err != nil {
			return n, fmt.Errorf("finalize item %s: %w", it.ID, err)
		}
		if !first {
			continue
		}
		if err := o.items.Save(ctx, it); err != nil {
			return n, fmt.Errorf("save item %s: %w", it.ID, err)
		}
		n++
	}
	return n, nil
}

// jobItem resolves the job of an item, takes its lock and hands fn the
// job plus the item reloaded under the lock.
func (o *Orchestrator) jobItem(ctx context.Context, itemID uuid.UUID, fn func(*entity.Job, *entity.ContentItem) ([]event.Payload, error)) error {
	it, err := o.items.FindByID(ctx, itemID)
	if err != nil {
		return err
	}
	return o.locked(ctx, it.JobID, func() ([]event.Payload, error) {
		job, err := o.jobs.FindByID(ctx, it.JobID)
		if err != nil {
			return nil, err
		}
		cur, err := o.items.FindByID(ctx, itemID)
		if err != nil {
			return nil, err
		}
		return fn(job, cur)
	})
}

// ProcessItem claims an item for a worker: pending items enter validation,
// failed items with budget left take the retry path.
func (o *Orchestrator) ProcessItem(ctx context.Context, itemID uuid.UUID) (*entity.ContentItem, *entity.Job, error) {
	var item *entity.ContentItem
	var owner *entity.Job
	err := o.jobItem(ctx, itemID, func(job *entity.Job, it *entity.ContentItem) ([]event.Payload, error) {
		switch job.Status {
		case entity.JobProcessing:
		case entity.JobPaused:
			return nil, ErrJobPaused
		default:
			return nil, ErrJobNotActive
		}

		now := o.now()
		var err error
		switch {
		case it.Status == entity.ItemPending:
			err = it.StartValidation(now)
		case it.CanRetry():
			err = it.Retry(now)
		default:
			return nil, ErrItemNotRunnable
		}
		if err != nil {
			return nil, err
		}
		if err := o.items.Save(ctx, it); err != nil {
			return nil, fmt.Errorf("save item: %w", err)
		}
		item, owner = it, job
		return []event.Payload{
			event.ItemValidationStarted{JobID: it.JobID, ItemID: it.ID, Retry: it.RetryCount},
			itemProgress(it),
		}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return item, owner, nil
}

// AdvanceItem applies one pipeline step to the latest persisted item.
// fn must only mutate the item; it runs under the job lock.
func (o *Orchestrator) AdvanceItem(ctx context.Context, itemID uuid.UUID, fn func(*entity.ContentItem) error) (*entity.ContentItem, error) {
	var item *entity.ContentItem
	err := o.jobItem(ctx, itemID, func(job *entity.Job, it *entity.ContentItem) ([]event.Payload, error) {
		if !job.AcceptsResults() || it.IsFinalized() {
			return nil, ErrJobNotActive
		}
		prev := it.Status
		if err := fn(it); err != nil {
			return nil, err
		}
		if err := o.items.Save(ctx, it); err != nil {
			return nil, fmt.Errorf("save item: %w", err)
		}
		item = it
		if it.Status == prev {
			return nil, nil
		}
		return []event.Payload{itemProgress(it)}, nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// EnsureItemStatus reports ErrJobNotActive unless the job still accepts
// results and the item is in want. Nothing is written.
func (o *Orchestrator) EnsureItemStatus(ctx context.Context, itemID uuid.UUID, want entity.ItemStatus) error {
	return o.jobItem(ctx, itemID, func(job *entity.Job, it *entity.ContentItem) ([]event.Payload, error) {
		if !job.AcceptsResults() || it.IsFinalized() || it.Status != want {
			return nil, ErrJobNotActive
		}
		return nil, nil
	})
}

// FailAttempt records a failed attempt without finalizing the item; the
// error coordinator decides what happens next.
func (o *Orchestrator) FailAttempt(ctx context.Context, itemID uuid.UUID, reason string) (*entity.ContentItem, error) {
	return o.AdvanceItem(ctx, itemID, func(it *entity.ContentItem) error {
		if it.Status == entity.ItemFailed {
			it.ErrorMessage = reason
			return nil
		}
		return it.Fail(reason, o.now())
	})
}

// CompleteItem finalizes a successful item and counts it.
func (o *Orchestrator) CompleteItem(ctx context.Context, itemID uuid.UUID, audioPath string) error {
	var took int64
	var jobID uuid.UUID
	err := o.jobItem(ctx, itemID, func(job *entity.Job, it *entity.ContentItem) ([]event.Payload, error) {
		if !job.AcceptsResults() || it.IsFinalized() {
			return nil, ErrJobNotActive
		}
		now := o.now()
		if err := it.Complete(audioPath, now); err != nil {
			return nil, err
		}
		settled, err := job.IncrementCompleted(now)
		if err != nil {
			return nil, fmt.Errorf("count completed item: %w", err)
		}
		if err := o.items.Save(ctx, it); err != nil {
			return nil, fmt.Errorf("save item: %w", err)
		}

		if it.StartedAt != nil {
			took = now.Sub(*it.StartedAt).Milliseconds()
		}
		jobID = job.ID
		out := []event.Payload{
			itemProgress(it),
			event.ItemCompleted{JobID: it.JobID, ItemID: it.ID, AudioPath: audioPath, DurationMs: took},
		}
		return o.saveCounted(ctx, job, settled, out)
	})
	if err != nil {
		return err
	}
	o.log.Info("item completed", "job_id", jobID.String(), "item_id", itemID.String(), "duration_ms", took)
	return nil
}

// FailItem finalizes an item as permanently failed and counts it once.
// Items of a job that stopped accepting results are finalized without
// touching the counters.
func (o *Orchestrator) FailItem(ctx context.Context, itemID uuid.UUID, step, reason string) error {
	counted := false
	err := o.jobItem(ctx, itemID, func(job *entity.Job, it *entity.ContentItem) ([]event.Payload, error) {
		now := o.now()
		first, err := it.FailPermanently(reason, now)
		if err != nil || !first {
			return nil, err
		}
		if err := o.items.Save(ctx, it); err != nil {
			return nil, fmt.Errorf("save item: %w", err)
		}

		out := []event.Payload{
			itemProgress(it),
			event.ItemFailed{JobID: it.JobID, ItemID: it.ID, Step: step, Error: reason, Permanent: true},
		}
		if !job.AcceptsResults() {
			return out, nil
		}
		settled, err := job.IncrementFailed(now)
		if err != nil {
			return out, fmt.Errorf("count failed item: %w", err)
		}
		counted = true
		return o.saveCounted(ctx, job, settled, out)
	})
	if err != nil {
		return err
	}
	if counted {
		o.log.Warn("item failed", "item_id", itemID.String(), "step", step, "error", reason)
	}
	return nil
}

// saveCounted persists counters and, if the job settled, its terminal
// status in the same write.
func (o *Orchestrator) saveCounted(ctx context.Context, job *entity.Job, settled bool, out []event.Payload) ([]event.Payload, error) {
	if err := o.jobs.Save(ctx, job); err != nil {
		return out, fmt.Errorf("save job: %w", err)
	}
	out = append(out, o.jobProgress(job))
	if !settled {
		return out, nil
	}

	switch job.Status {
	case entity.JobCompleted:
		var took int64
		if job.StartedAt != nil && job.CompletedAt != nil {
			took = job.CompletedAt.Sub(*job.StartedAt).Milliseconds()
		}
		out = append(out, event.JobCompleted{
			JobID:      job.ID,
			Completed:  job.CompletedItems,
			Failed:     job.FailedItems,
			DurationMs: took,
		})
		o.log.Info("job completed", "job_id", job.ID.String(), "completed", job.CompletedItems, "failed", job.FailedItems, "duration_ms", took)
	case entity.JobFailed:
		out = append(out, event.JobFailed{
			JobID:     job.ID,
			Completed: job.CompletedItems,
			Failed:    job.FailedItems,
			Error:     job.ErrorMessage,
		})
		o.log.Warn("job failed", "job_id", job.ID.String(), "failed", job.FailedItems, "error", job.ErrorMessage)
	}
	return out, nil
}

func (o *Orchestrator) jobProgress(job *entity.Job) event.JobProgressUpdated {
	p := event.JobProgressUpdated{
		JobID:     job.ID,
		Completed: job.CompletedItems,
		Failed:    job.FailedItems,
		Total:     job.TotalItems,
		Percent:   job.Progress() * 100,
	}
	if job.StartedAt != nil && !job.Status.IsTerminal() {
		if eta, ok := EstimateETA(o.now().Sub(*job.StartedAt), job.Progress()); ok {
			s := eta.Seconds()
			p.ETASeconds = &s
		}
	}
	return p
}

func itemProgress(it *entity.ContentItem) event.ItemProgressUpdated {
	return event.ItemProgressUpdated{
		JobID:   it.JobID,
		ItemID:  it.ID,
		Step:    string(it.Status),
		Percent: it.Progress() * 100,
	}
}

// RetryItem prepares a failed item for another attempt: stale chunks are
// dropped and the item goes back on the queue. The worker performs the
// failed -> validating transition when it claims the item.
//
// While the job is paused nothing is enqueued: ResumeJob picks the item up.
func (o *Orchestrator) RetryItem(ctx context.Context, itemID uuid.UUID) error {
	var priority, retries, dropped int
	var jobID uuid.UUID
	paused := false
	err := o.jobItem(ctx, itemID, func(job *entity.Job, it *entity.ContentItem) ([]event.Payload, error) {
		if !job.AcceptsResults() {
			return nil, ErrJobNotActive
		}
		if !it.CanRetry() {
			return nil, &entity.TransitionError{Entity: "content_item", From: string(it.Status), To: string(entity.ItemValidating)}
		}
		n, err := o.chunks.DeleteByItemID(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("delete chunks: %w", err)
		}
		priority, retries, dropped, jobID = job.Config.Priority, it.RetryCount, n, job.ID
		paused = job.Status == entity.JobPaused
		return nil, nil
	})
	if err != nil {
		return err
	}
	if paused {
		o.log.Info("item retry deferred, job paused", "job_id", jobID.String(), "item_id", itemID.String(), "retry_count", retries)
		return nil
	}

	if err := o.queue.Enqueue(ctx, itemID.String(), priority); err != nil {
		return fmt.Errorf("enqueue item: %w", err)
	}
	o.log.Info("item retry enqueued", "job_id", jobID.String(), "item_id", itemID.String(), "retry_count", retries, "chunks_dropped", dropped)
	return nil
}

// ResetJob moves a failed job back to paused and recounts its items from
// their persisted status.
func (o *Orchestrator) ResetJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.mutateJob(ctx, jobID, func(j *entity.Job) ([]event.Payload, error) {
		now := o.now()
		if err := j.ResetToPaused(now); err != nil {
			return nil, err
		}
		items, err := o.items.FindByJobID(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("load items: %w", err)
		}
		completed, failed := 0, 0
		for _, it := range items {
			switch {
			case it.Status == entity.ItemCompleted:
				completed++
			case it.IsFinalized():
				failed++
			}
		}
		if err := j.RecountItems(completed, failed, now); err != nil {
			return nil, err
		}
		return []event.Payload{o.jobProgress(j)}, nil
	})
	if err != nil {
		return err
	}
	o.log.Info("job reset", "job_id", jobID.String(), "completed", job.CompletedItems, "failed", job.FailedItems)
	return nil
}

// ResetItem moves a failed item back to pending with its retry budget
// restored. A counted failure is uncounted while the job can still be
// modified; a failed job keeps its counters until ResetJob recounts them.
// Completed and cancelled jobs never run items again and reject the reset.
// Items of a processing job are enqueued again.
func (o *Orchestrator) ResetItem(ctx context.Context, itemID uuid.UUID) error {
	enqueue := false
	priority := entity.PriorityNormal
	err := o.jobItem(ctx, itemID, func(job *entity.Job, it *entity.ContentItem) ([]event.Payload, error) {
		if !job.CanModify() && job.Status != entity.JobFailed {
			return nil, entity.ErrJobNotModifiable
		}
		counted := it.IsFinalized()
		now := o.now()
		if err := it.Reset(now); err != nil {
			return nil, err
		}
		if _, err := o.chunks.DeleteByItemID(ctx, itemID); err != nil {
			return nil, fmt.Errorf("delete chunks: %w", err)
		}
		if err := o.items.Save(ctx, it); err != nil {
			return nil, fmt.Errorf("save item: %w", err)
		}
		out := []event.Payload{itemProgress(it)}
		if counted && job.CanModify() {
			if err := job.RevertFailed(now); err != nil {
				return nil, err
			}
			if err := o.jobs.Save(ctx, job); err != nil {
				return nil, fmt.Errorf("save job: %w", err)
			}
			out = append(out, o.jobProgress(job))
		}
		enqueue = job.Status == entity.JobProcessing
		priority = job.Config.Priority
		return out, nil
	})
	if err != nil {
		return err
	}
	if enqueue {
		if err := o.queue.Enqueue(ctx, itemID.String(), priority); err != nil {
			return fmt.Errorf("enqueue item: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return o.jobs.FindByID(ctx, id)
}

func (o *Orchestrator) ListItems(ctx context.Context, jobID uuid.UUID) ([]*entity.ContentItem, error) {
	if _, err := o.jobs.FindByID(ctx, jobID); err != nil {
		return nil, err
	}
	return o.items.FindByJobID(ctx, jobID)
}

func (o *Orchestrator) GetItem(ctx context.Context, id uuid.UUID) (*entity.ContentItem, error) {
	return o.items.FindByID(ctx, id)
}

func (o *Orchestrator) ListChunks(ctx context.Context, itemID uuid.UUID) ([]*entity.AudioChunk, error) {
	if _, err := o.items.FindByID(ctx, itemID); err != nil {
		return nil, err
	}
	return o.chunks.FindByItemID(ctx, itemID)
}

func (o *Orchestrator) ListErrors(ctx context.Context, jobID uuid.UUID) ([]*entity.ErrorLog, error) {
	if _, err := o.jobs.FindByID(ctx, jobID); err != nil {
		return nil, err
	}
	return o.errorLogs.FindByJobID(ctx, jobID)
}
