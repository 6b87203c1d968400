package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/event"
	"narration-service/internal/service"
)

// finishingMerger plays the worker's merge and upload steps.
func finishingMerger(f *fixture) *mergerStub {
	return &mergerStub{fn: func(ctx context.Context, itemID uuid.UUID) error {
		steps := []func(*entity.ContentItem) error{
			func(it *entity.ContentItem) error { return it.StartMerging(fixedNow) },
			func(it *entity.ContentItem) error { return it.StartUploading(fixedNow) },
		}
		for _, step := range steps {
			if _, err := f.orch.AdvanceItem(ctx, itemID, step); err != nil {
				return err
			}
		}
		return f.orch.CompleteItem(ctx, itemID, "out/"+itemID.String()+".mp3")
	}}
}

func TestCreateJob_ReadyWithPendingItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.orch.CreateJob(ctx, "batch", entity.JobConfig{Priority: 7}, []entity.ItemSource{
		{Title: "A", Details: "a"},
		{Title: "B", Details: "b"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Status != entity.JobReady || job.TotalItems != 2 {
		t.Fatalf("expected ready job with 2 items, got %s/%d", job.Status, job.TotalItems)
	}
	if job.Config.Priority != entity.PriorityNormal {
		t.Fatalf("expected out-of-range priority normalized, got %d", job.Config.Priority)
	}
	items, _ := f.orch.ListItems(ctx, job.ID)
	for i, it := range items {
		if it.Status != entity.ItemPending || it.RowIndex != i {
			t.Fatalf("unexpected item %d: %s row=%d", i, it.Status, it.RowIndex)
		}
	}
	if f.events.count(event.KindItemCreated) != 2 {
		t.Fatalf("expected 2 item.created events")
	}
	if f.queue.count() != 0 {
		t.Fatalf("expected nothing enqueued before start")
	}
}

func TestCreateJob_EmptyRows(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.CreateJob(context.Background(), "batch", entity.JobConfig{}, nil)
	if !errors.Is(err, entity.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStartJobProcessing_EnqueuesAtJobPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.orch.CreateJob(ctx, "batch", entity.JobConfig{Priority: entity.PriorityHigh}, []entity.ItemSource{
		{Title: "A", Details: "a"}, {Title: "B", Details: "b"}, {Title: "C", Details: "c"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.orch.StartJobProcessing(ctx, job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if f.queue.count() != 3 {
		t.Fatalf("expected 3 enqueued, got %d", f.queue.count())
	}
	for _, p := range f.queue.priorities {
		if p != entity.PriorityHigh {
			t.Fatalf("expected priority 2, got %d", p)
		}
	}
	if f.events.count(event.KindJobStarted) != 1 {
		t.Fatalf("expected job.started")
	}
	if _, err := f.orch.StartJobProcessing(ctx, job.ID); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on second start, got %v", err)
	}
}

func TestProcessItem_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	_, items := f.startedJob(t, 1)
	ctx := context.Background()

	it, _, err := f.orch.ProcessItem(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if it.Status != entity.ItemValidating || it.StartedAt == nil {
		t.Fatalf("expected validating with start time, got %s", it.Status)
	}
	if _, _, err := f.orch.ProcessItem(ctx, items[0].ID); !errors.Is(err, service.ErrItemNotRunnable) {
		t.Fatalf("expected ErrItemNotRunnable, got %v", err)
	}
}

func TestEndToEnd_TwoItemsTwoChunks(t *testing.T) {
	f := newFixture(t)
	f.coord.SetMerger(finishingMerger(f))
	job, items := f.startedJob(t, 2)

	for _, it := range items {
		f.advance(t, it.ID)
		chunks := ids(2)
		f.coord.RegisterItemChunks(job.ID, it.ID, chunks)
		for _, c := range chunks {
			chunkDone(f, job.ID, it.ID, c, true)
		}
	}

	j := f.job(t, job.ID)
	if j.Status != entity.JobCompleted || j.CompletedItems != 2 || j.FailedItems != 0 {
		t.Fatalf("expected completed 2/0, got %s %d/%d", j.Status, j.CompletedItems, j.FailedItems)
	}
	for _, it := range items {
		got := f.item(t, it.ID)
		if got.Status != entity.ItemCompleted || got.FinalAudioPath == "" {
			t.Fatalf("expected completed item with audio, got %s %q", got.Status, got.FinalAudioPath)
		}
	}
	if f.events.count(event.KindJobCompleted) != 1 {
		t.Fatalf("expected exactly 1 job.completed, got %d", f.events.count(event.KindJobCompleted))
	}
	if f.events.count(event.KindItemCompleted) != 2 {
		t.Fatalf("expected 2 item.completed")
	}
}

func TestEndToEnd_OneChunkOfTwoFails(t *testing.T) {
	f := newFixture(t)
	f.coord.SetMerger(finishingMerger(f))
	job, items := f.startedJob(t, 2)

	for i, it := range items {
		f.advance(t, it.ID)
		chunks := ids(2)
		f.coord.RegisterItemChunks(job.ID, it.ID, chunks)
		chunkDone(f, job.ID, it.ID, chunks[0], true)
		chunkDone(f, job.ID, it.ID, chunks[1], i == 0)
	}

	if got := f.item(t, items[0].ID); got.Status != entity.ItemCompleted {
		t.Fatalf("expected first item completed, got %s", got.Status)
	}
	if got := f.item(t, items[1].ID); got.Status != entity.ItemFailed || !got.IsFinalized() {
		t.Fatalf("expected second item failed, got %s", got.Status)
	}
	j := f.job(t, job.ID)
	if j.Status != entity.JobCompleted || j.CompletedItems != 1 || j.FailedItems != 1 {
		t.Fatalf("expected completed 1/1, got %s %d/%d", j.Status, j.CompletedItems, j.FailedItems)
	}
}

func TestAllItemsFailed_JobFails(t *testing.T) {
	f := newFixture(t)
	job, items := f.startedJob(t, 2)
	ctx := context.Background()

	for _, it := range items {
		if err := f.orch.FailItem(ctx, it.ID, "validating", "bad row"); err != nil {
			t.Fatalf("fail item: %v", err)
		}
	}
	j := f.job(t, job.ID)
	if j.Status != entity.JobFailed || j.FailedItems != 2 {
		t.Fatalf("expected failed 0/2, got %s %d/%d", j.Status, j.CompletedItems, j.FailedItems)
	}
	if f.events.count(event.KindJobFailed) != 1 {
		t.Fatalf("expected 1 job.failed event")
	}
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	job, items := f.startedJob(t, 2)
	ctx := context.Background()

	// item 0 is in flight when the job is paused
	if _, _, err := f.orch.ProcessItem(ctx, items[0].ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := f.orch.PauseJob(ctx, job.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, _, err := f.orch.ProcessItem(ctx, items[1].ID); !errors.Is(err, service.ErrJobPaused) {
		t.Fatalf("expected ErrJobPaused for a new item, got %v", err)
	}
	if _, err := f.orch.AdvanceItem(ctx, items[0].ID, func(it *entity.ContentItem) error {
		return it.StartTextGeneration(fixedNow)
	}); err != nil {
		t.Fatalf("expected in-flight item to keep going, got %v", err)
	}

	before := f.queue.count()
	if _, err := f.orch.ResumeJob(ctx, job.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := f.queue.count() - before; got != 1 {
		t.Fatalf("expected only the pending item re-enqueued, got %d", got)
	}
	if f.events.count(event.KindJobPaused) != 1 {
		t.Fatalf("expected job.paused")
	}
}

func TestCancel_DiscardsLateResults(t *testing.T) {
	f := newFixture(t)
	job, items := f.startedJob(t, 2)
	ctx := context.Background()
	f.advance(t, items[0].ID)

	cancelled, err := f.orch.CancelJobProcessing(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != entity.JobCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	for _, it := range items {
		got := f.item(t, it.ID)
		if got.Status != entity.ItemFailed || got.ErrorMessage != string(entity.CodeCancelled) {
			t.Fatalf("expected item failed as cancelled, got %s %q", got.Status, got.ErrorMessage)
		}
	}

	if err := f.orch.CompleteItem(ctx, items[0].ID, "late.mp3"); !errors.Is(err, service.ErrJobNotActive) {
		t.Fatalf("expected late completion refused, got %v", err)
	}
	if err := f.orch.EnsureItemStatus(ctx, items[0].ID, entity.ItemGeneratingAudio); !errors.Is(err, service.ErrJobNotActive) {
		t.Fatalf("expected status check to fail, got %v", err)
	}
	if _, _, err := f.orch.ProcessItem(ctx, items[1].ID); !errors.Is(err, service.ErrJobNotActive) {
		t.Fatalf("expected ErrJobNotActive, got %v", err)
	}

	j := f.job(t, job.ID)
	if j.CompletedItems != 0 || j.FailedItems != 0 {
		t.Fatalf("expected counters untouched by cancel, got %d/%d", j.CompletedItems, j.FailedItems)
	}
	if f.events.count(event.KindJobCancelled) != 1 {
		t.Fatalf("expected job.cancelled")
	}
}

func TestRetryItem_ReenqueuesAndWorkerRetries(t *testing.T) {
	f := newFixture(t)
	_, items := f.startedJob(t, 1)
	ctx := context.Background()
	id := items[0].ID

	if _, _, err := f.orch.ProcessItem(ctx, id); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := f.orch.FailAttempt(ctx, id, "timeout"); err != nil {
		t.Fatalf("fail attempt: %v", err)
	}

	before := f.queue.count()
	if err := f.orch.RetryItem(ctx, id); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.queue.count() != before+1 {
		t.Fatalf("expected item re-enqueued")
	}
	if got := f.item(t, id); got.Status != entity.ItemFailed {
		t.Fatalf("expected item to stay failed until claimed, got %s", got.Status)
	}

	it, _, err := f.orch.ProcessItem(ctx, id)
	if err != nil {
		t.Fatalf("process retry: %v", err)
	}
	if it.Status != entity.ItemValidating || it.RetryCount != 1 {
		t.Fatalf("expected validating with retry 1, got %s/%d", it.Status, it.RetryCount)
	}
}

func TestRetryItem_BudgetExhausted(t *testing.T) {
	f := newFixture(t)
	_, items := f.startedJob(t, 1)
	ctx := context.Background()
	id := items[0].ID

	for i := 0; i < 3; i++ {
		if _, _, err := f.orch.ProcessItem(ctx, id); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if _, err := f.orch.FailAttempt(ctx, id, "timeout"); err != nil {
			t.Fatalf("fail attempt %d: %v", i, err)
		}
	}
	if err := f.orch.RetryItem(ctx, id); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition with budget spent, got %v", err)
	}
}

func TestResetItem_RevertsCountedFailure(t *testing.T) {
	f := newFixture(t)
	job, items := f.startedJob(t, 2)
	ctx := context.Background()

	if err := f.orch.FailItem(ctx, items[0].ID, "validating", "bad row"); err != nil {
		t.Fatalf("fail item: %v", err)
	}
	before := f.queue.count()
	if err := f.errs.ResetEntity(ctx, service.ScopeItem, items[0].ID); err != nil {
		t.Fatalf("reset: %v", err)
	}

	it := f.item(t, items[0].ID)
	if it.Status != entity.ItemPending || it.IsFinalized() || it.RetryCount != 0 {
		t.Fatalf("expected clean pending item, got %s finalized=%v", it.Status, it.IsFinalized())
	}
	if j := f.job(t, job.ID); j.FailedItems != 0 {
		t.Fatalf("expected failed counter reverted, got %d", j.FailedItems)
	}
	if f.queue.count() != before+1 {
		t.Fatalf("expected reset item re-enqueued")
	}
}

func TestResetJob_RecountsFromItems(t *testing.T) {
	f := newFixture(t)
	job, items := f.startedJob(t, 2)
	ctx := context.Background()

	for _, it := range items {
		if err := f.orch.FailItem(ctx, it.ID, "validating", "bad row"); err != nil {
			t.Fatalf("fail item: %v", err)
		}
	}
	if j := f.job(t, job.ID); j.Status != entity.JobFailed {
		t.Fatalf("expected failed job, got %s", j.Status)
	}

	// terminal job: counters stay until the job itself is reset
	if err := f.errs.ResetEntity(ctx, service.ScopeItem, items[0].ID); err != nil {
		t.Fatalf("reset item: %v", err)
	}
	if j := f.job(t, job.ID); j.FailedItems != 2 {
		t.Fatalf("expected counters kept on terminal job, got %d", j.FailedItems)
	}

	if err := f.errs.ResetEntity(ctx, service.ScopeJob, job.ID); err != nil {
		t.Fatalf("reset job: %v", err)
	}
	j := f.job(t, job.ID)
	if j.Status != entity.JobPaused || j.FailedItems != 1 || j.CompletedItems != 0 {
		t.Fatalf("expected paused 0/1 after recount, got %s %d/%d", j.Status, j.CompletedItems, j.FailedItems)
	}

	before := f.queue.count()
	if _, err := f.orch.ResumeJob(ctx, job.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if f.queue.count() != before+1 {
		t.Fatalf("expected the reset item enqueued on resume")
	}
}

func TestResetJob_RejectsNonFailedJob(t *testing.T) {
	f := newFixture(t)
	job, _ := f.startedJob(t, 1)
	if err := f.orch.ResetJob(context.Background(), job.ID); !errors.Is(err, entity.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestRequeuePending_RequiresProcessing(t *testing.T) {
	f := newFixture(t)
	job, _ := f.startedJob(t, 2)
	ctx := context.Background()

	n, err := f.orch.RequeuePending(ctx, job.ID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 requeued, got %d %v", n, err)
	}
	if _, err := f.orch.PauseJob(ctx, job.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.orch.RequeuePending(ctx, job.ID); !errors.Is(err, service.ErrJobNotActive) {
		t.Fatalf("expected ErrJobNotActive on paused job, got %v", err)
	}
}

func TestRetryDueWhilePaused_ClaimedAfterResume(t *testing.T) {
	f := newFixture(t)
	job, items := f.startedJob(t, 1)
	ctx := context.Background()
	id := items[0].ID

	if _, _, err := f.orch.ProcessItem(ctx, id); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := f.orch.FailAttempt(ctx, id, "timeout"); err != nil {
		t.Fatalf("fail attempt: %v", err)
	}
	if _, err := f.orch.PauseJob(ctx, job.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	before := f.queue.count()
	if err := f.orch.RetryItem(ctx, id); err != nil {
		t.Fatalf("expected retry accepted while paused, got %v", err)
	}
	if f.queue.count() != before {
		t.Fatalf("expected no delivery while paused")
	}

	if _, err := f.orch.ResumeJob(ctx, job.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if f.queue.count() != before+1 {
		t.Fatalf("expected the retryable item enqueued on resume")
	}
	it, _, err := f.orch.ProcessItem(ctx, id)
	if err != nil {
		t.Fatalf("expected item claimed after resume, got %v", err)
	}
	if it.Status != entity.ItemValidating || it.RetryCount != 1 {
		t.Fatalf("expected validating with retry 1, got %s/%d", it.Status, it.RetryCount)
	}
}

func TestResetItem_RejectsItemsOfFinishedJob(t *testing.T) {
	f := newFixture(t)
	job, items := f.startedJob(t, 2)
	ctx := context.Background()

	if _, err := f.orch.CancelJobProcessing(ctx, job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	before := f.queue.count()
	if err := f.errs.ResetEntity(ctx, service.ScopeItem, items[0].ID); !errors.Is(err, entity.ErrJobNotModifiable) {
		t.Fatalf("expected ErrJobNotModifiable, got %v", err)
	}
	if it := f.item(t, items[0].ID); it.Status != entity.ItemFailed || !it.IsFinalized() {
		t.Fatalf("expected item left failed, got %s", it.Status)
	}
	if f.queue.count() != before {
		t.Fatalf("expected nothing enqueued")
	}
}
