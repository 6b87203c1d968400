package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/event"
	"narration-service/internal/logger"
	"narration-service/internal/provider"
	"narration-service/internal/repository/memory"
	"narration-service/internal/service"
	"narration-service/internal/worker"
)

// ---- fakes ----

type queueStub struct {
	mu  sync.Mutex
	ids []string
}

func (q *queueStub) Enqueue(ctx context.Context, itemID string, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, itemID)
	return nil
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
		if !d.ScheduledFor.After(now) {
			due = append(due, d)
			continue
		}
		rest = append(rest, d)
	}
	r.scheduled = rest
	return due, nil
}

type textStub struct {
	mu    sync.Mutex
	calls int
	errs  []error // returned in order before succeeding
	text  string
}

func (g *textStub) GenerateText(ctx context.Context, req provider.TextRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return "", err
	}
	return g.text, nil
}

// speechStub fails chunks matched by reject permanently, and the first
// flaky attempts of every chunk with a retryable error.
type speechStub struct {
	mu     sync.Mutex
	reject func(text string) bool
	flaky  int
	seen   map[string]int
}

func (s *speechStub) Synthesize(ctx context.Context, req provider.SpeechRequest) (provider.Speech, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[string]int{}
	}
	s.seen[req.Text]++
	if s.reject != nil && s.reject(req.Text) {
		return provider.Speech{}, &provider.Error{Code: entity.CodeValidation, Op: "speech", StatusCode: 400, Err: errors.New("bad input")}
	}
	if s.seen[req.Text] <= s.flaky {
		return provider.Speech{}, &provider.Error{Code: entity.CodeServiceUnavailable, Op: "speech", StatusCode: 503, Err: errors.New("overloaded")}
	}
	return provider.Speech{Audio: []byte("[" + req.Text + "]"), Format: "mp3", Duration: 1.5}, nil
}

// chunkStore fails saves matched by reject.
type chunkStore struct {
	*memory.AudioChunkRepository
	reject func(c *entity.AudioChunk) bool
}

func (s *chunkStore) Save(ctx context.Context, c *entity.AudioChunk) error {
	if s.reject != nil && s.reject(c) {
		return errors.New("disk full")
	}
	return s.AudioChunkRepository.Save(ctx, c)
}

// ---- fixture ----

type env struct {
	jobs    *memory.JobRepository
	items   *memory.ContentItemRepository
	chunks  *memory.AudioChunkRepository
	store   *chunkStore
	errLogs *memory.ErrorLogRepository
	queue   *queueStub
	retries *retryStub
	orch    *service.Orchestrator
	errs    *service.ErrorCoordinator
	coord   *service.ChunkCoordinator
	text    *textStub
	speech  *speechStub
	proc    *worker.Processor
	outDir  string
}

const narration = "First sentence here. Second sentence follows. Third one ends it."

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithUploads(t, t.TempDir())
}

func newEnvWithUploads(t *testing.T, uploadDir string) *env {
	t.Helper()
	log := logger.NewNop()
	e := &env{
		jobs:    memory.NewJobRepository(),
		items:   memory.NewContentItemRepository(),
		chunks:  memory.NewAudioChunkRepository(),
		errLogs: memory.NewErrorLogRepository(),
		queue:   &queueStub{},
		retries: &retryStub{},
		text:    &textStub{text: narration},
		speech:  &speechStub{},
		outDir:  uploadDir,
	}
	e.store = &chunkStore{AudioChunkRepository: e.chunks}
	bus := event.NewBus(log)
	e.orch = service.NewOrchestrator(service.OrchestratorDeps{
		Jobs: e.jobs, Items: e.items, Chunks: e.chunks, ErrorLogs: e.errLogs,
		Queue: e.queue, Events: bus, Log: log,
	})
	e.errs = service.NewErrorCoordinator(service.ErrorCoordinatorDeps{
		ErrorLogs: e.errLogs, Retries: e.retries, Events: bus,
		ItemFail: e.orch, JobRec: e.orch, Log: log,
		BaseDelay: time.Nanosecond,
	})
	e.coord = service.NewChunkCoordinator(e.items, e.errs, log)
	e.coord.Attach(bus)

	e.proc = worker.NewProcessor(worker.ProcessorDeps{
		Pipeline:        e.orch,
		Errors:          e.errs,
		Tracker:         e.coord,
		Chunks:          e.store,
		Events:          bus,
		Text:            e.text,
		Chunker:         provider.SentenceChunker{},
		Speech:          e.speech,
		Store:           provider.LocalAudioStore{Dir: t.TempDir()},
		Uploader:        provider.FileUploader{Dir: e.outDir},
		Log:             log,
		Concurrency:     2,
		ChunkAttempts:   3,
		ChunkRetryDelay: time.Millisecond,
	})
	e.coord.SetMerger(e.proc)
	return e
}

// startJob creates a job whose chunks hold one sentence each.
func (e *env) startJob(t *testing.T, n int) (*entity.Job, []*entity.ContentItem) {
	t.Helper()
	ctx := context.Background()
	rows := make([]entity.ItemSource, n)
	for i := range rows {
		rows[i] = entity.ItemSource{Title: "Title", Details: "Details"}
	}
	job, err := e.orch.CreateJob(ctx, "batch", entity.JobConfig{ChunkSize: 30, MaxRetries: 2, VoiceID: "nova"}, rows)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := e.orch.StartJobProcessing(ctx, job.ID); err != nil {
		t.Fatalf("start job: %v", err)
	}
	items, _ := e.orch.ListItems(ctx, job.ID)
	return job, items
}

func (e *env) job(t *testing.T, id uuid.UUID) *entity.Job {
	t.Helper()
	j, err := e.jobs.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	return j
}

func (e *env) item(t *testing.T, id uuid.UUID) *entity.ContentItem {
	t.Helper()
	it, err := e.items.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load item: %v", err)
	}
	return it
}

// ---- tests ----

func TestProcess_HappyPath(t *testing.T) {
	e := newEnv(t)
	job, items := e.startJob(t, 2)
	ctx := context.Background()

	for _, it := range items {
		if err := e.proc.Process(ctx, it.ID.String()); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	j := e.job(t, job.ID)
	if j.Status != entity.JobCompleted || j.CompletedItems != 2 {
		t.Fatalf("expected completed 2/0, got %s %d/%d", j.Status, j.CompletedItems, j.FailedItems)
	}

	it := e.item(t, items[0].ID)
	if it.Status != entity.ItemCompleted || it.GeneratedText != narration {
		t.Fatalf("unexpected item: %s %q", it.Status, it.GeneratedText)
	}
	want := filepath.Join(e.outDir, job.ID.String(), it.ID.String()+".mp3")
	if it.FinalAudioPath != want {
		t.Fatalf("expected audio at %s, got %s", want, it.FinalAudioPath)
	}
	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "[First sentence here.][Second sentence follows.][Third one ends it.]" {
		t.Fatalf("expected chunks merged in order, got %q", got)
	}

	chunks, _ := e.chunks.FindByItemID(ctx, it.ID)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Status != entity.ChunkCompleted || c.VoiceID != "nova" {
			t.Fatalf("unexpected chunk: %s voice=%s", c.Status, c.VoiceID)
		}
	}
	if e.coord.TrackedItems() != 0 {
		t.Fatalf("expected no tracking left")
	}
}

func TestProcess_InlineChunkRetry(t *testing.T) {
	e := newEnv(t)
	e.speech.flaky = 1
	job, items := e.startJob(t, 1)

	if err := e.proc.Process(context.Background(), items[0].ID.String()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if j := e.job(t, job.ID); j.Status != entity.JobCompleted {
		t.Fatalf("expected job completed after inline retries, got %s", j.Status)
	}
	for text, n := range e.speech.seen {
		if n != 2 {
			t.Fatalf("expected 2 attempts for %q, got %d", text, n)
		}
	}
}

func TestProcess_MajorityChunkFailure(t *testing.T) {
	e := newEnv(t)
	// "First sentence here." and "Third one ends it." are rejected
	e.speech.reject = func(text string) bool { return strings.Contains(text, "ir") }
	job, items := e.startJob(t, 1)

	if err := e.proc.Process(context.Background(), items[0].ID.String()); err != nil {
		t.Fatalf("process: %v", err)
	}

	it := e.item(t, items[0].ID)
	if it.Status != entity.ItemFailed || !it.IsFinalized() {
		t.Fatalf("expected item failed permanently, got %s", it.Status)
	}
	if j := e.job(t, job.ID); j.Status != entity.JobFailed || j.FailedItems != 1 {
		t.Fatalf("expected job failed 0/1, got %s %d/%d", j.Status, j.CompletedItems, j.FailedItems)
	}
	if _, err := os.Stat(filepath.Join(e.outDir, job.ID.String())); !os.IsNotExist(err) {
		t.Fatalf("expected nothing uploaded, stat err=%v", err)
	}

	logs, _ := e.errLogs.FindByItemID(context.Background(), it.ID)
	var majority bool
	for _, l := range logs {
		if l.Code == entity.CodeChunkMajorityFailed {
			majority = true
		}
	}
	if !majority {
		t.Fatalf("expected a chunk_majority_failed error log, got %d logs", len(logs))
	}
}

func TestProcess_MinorityChunkFailureStillMerges(t *testing.T) {
	e := newEnv(t)
	e.speech.reject = func(text string) bool { return strings.HasPrefix(text, "Second") }
	job, items := e.startJob(t, 1)

	if err := e.proc.Process(context.Background(), items[0].ID.String()); err != nil {
		t.Fatalf("process: %v", err)
	}
	it := e.item(t, items[0].ID)
	if it.Status != entity.ItemCompleted {
		t.Fatalf("expected item completed, got %s", it.Status)
	}
	got, err := os.ReadFile(it.FinalAudioPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "[First sentence here.][Third one ends it.]" {
		t.Fatalf("expected the failed chunk left out, got %q", got)
	}
	if j := e.job(t, job.ID); j.Status != entity.JobCompleted {
		t.Fatalf("expected job completed, got %s", j.Status)
	}
}

func TestProcess_RetryableTextFailureGoesThroughRetryQueue(t *testing.T) {
	e := newEnv(t)
	e.text.errs = []error{&provider.Error{Code: entity.CodeServiceUnavailable, Op: "chat", StatusCode: 503, Err: errors.New("overloaded")}}
	job, items := e.startJob(t, 1)
	ctx := context.Background()
	id := items[0].ID

	if err := e.proc.Process(ctx, id.String()); err != nil {
		t.Fatalf("expected nil once a retry is scheduled, got %v", err)
	}
	it := e.item(t, id)
	if it.Status != entity.ItemFailed || it.IsFinalized() {
		t.Fatalf("expected failed attempt awaiting retry, got %s finalized=%v", it.Status, it.IsFinalized())
	}
	if len(e.retries.scheduled) != 1 {
		t.Fatalf("expected 1 retry scheduled, got %d", len(e.retries.scheduled))
	}

	poller := worker.NewRetryPoller(e.retries, e.orch, e.errs, time.Second, logger.NewNop())
	time.Sleep(time.Millisecond)
	n, err := poller.PollOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 retry dispatched, got %d %v", n, err)
	}
	if last := e.queue.ids[len(e.queue.ids)-1]; last != id.String() {
		t.Fatalf("expected item re-enqueued, got %s", last)
	}

	if err := e.proc.Process(ctx, id.String()); err != nil {
		t.Fatalf("process retry: %v", err)
	}
	it = e.item(t, id)
	if it.Status != entity.ItemCompleted || it.RetryCount != 1 {
		t.Fatalf("expected completed on retry 1, got %s/%d", it.Status, it.RetryCount)
	}
	if j := e.job(t, job.ID); j.Status != entity.JobCompleted {
		t.Fatalf("expected job completed, got %s", j.Status)
	}

	logs, _ := e.errLogs.FindByItemID(ctx, id)
	if len(logs) != 1 || logs[0].RetriedAt == nil {
		t.Fatalf("expected the error log marked retried, got %+v", logs)
	}
}

func TestProcess_CriticalErrorIsPermanent(t *testing.T) {
	e := newEnv(t)
	e.text.errs = []error{&provider.Error{Code: entity.CodeAuth, Op: "chat", StatusCode: 401, Err: errors.New("bad key")}}
	job, items := e.startJob(t, 1)

	err := e.proc.Process(context.Background(), items[0].ID.String())
	if err == nil {
		t.Fatalf("expected the cause returned for a permanent failure")
	}
	if len(e.retries.scheduled) != 0 {
		t.Fatalf("expected no retry for auth errors")
	}
	if j := e.job(t, job.ID); j.Status != entity.JobFailed {
		t.Fatalf("expected job failed, got %s", j.Status)
	}
}

func TestProcess_ValidationFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.CreateJob(ctx, "batch", entity.JobConfig{}, []entity.ItemSource{{Title: "only title"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.orch.StartJobProcessing(ctx, job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	items, _ := e.orch.ListItems(ctx, job.ID)

	if err := e.proc.Process(ctx, items[0].ID.String()); !errors.Is(err, entity.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if e.text.calls != 0 {
		t.Fatalf("expected no text generation for an invalid row")
	}
	if it := e.item(t, items[0].ID); !it.IsFinalized() {
		t.Fatalf("expected invalid item finalized")
	}
}

func TestProcess_SkipsDeliveriesWithNothingToDo(t *testing.T) {
	e := newEnv(t)
	job, items := e.startJob(t, 2)
	ctx := context.Background()

	if err := e.proc.Process(ctx, "not-a-uuid"); err == nil {
		t.Fatalf("expected error for a malformed id")
	}
	if err := e.proc.Process(ctx, uuid.NewString()); err != nil {
		t.Fatalf("expected unknown item skipped, got %v", err)
	}

	if err := e.proc.Process(ctx, items[0].ID.String()); err != nil {
		t.Fatalf("process: %v", err)
	}
	calls := e.text.calls
	if err := e.proc.Process(ctx, items[0].ID.String()); err != nil {
		t.Fatalf("expected duplicate delivery skipped, got %v", err)
	}
	if e.text.calls != calls {
		t.Fatalf("expected duplicate delivery to do no work")
	}

	if _, err := e.orch.PauseJob(ctx, job.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := e.proc.Process(ctx, items[1].ID.String()); err != nil {
		t.Fatalf("expected paused delivery skipped, got %v", err)
	}
	if it := e.item(t, items[1].ID); it.Status != entity.ItemPending {
		t.Fatalf("expected item left pending while paused, got %s", it.Status)
	}
}

func TestMergeItem_UploadFailureFailsItem(t *testing.T) {
	// uploads land under a regular file, so every upload fails
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	e := newEnvWithUploads(t, blocker)
	job, items := e.startJob(t, 1)

	if err := e.proc.Process(context.Background(), items[0].ID.String()); err != nil {
		t.Fatalf("process: %v", err)
	}

	it := e.item(t, items[0].ID)
	if it.Status != entity.ItemFailed || !it.IsFinalized() {
		t.Fatalf("expected item failed permanently, got %s", it.Status)
	}
	if len(e.retries.scheduled) != 0 {
		t.Fatalf("expected upload failures not retried")
	}
	logs, _ := e.errLogs.FindByItemID(context.Background(), it.ID)
	if len(logs) != 1 || logs[0].Code != entity.CodeUploadFailed || logs[0].Severity() != entity.SeverityHigh {
		t.Fatalf("expected one high severity upload_failed log, got %+v", logs)
	}
	if j := e.job(t, job.ID); j.Status != entity.JobFailed {
		t.Fatalf("expected job failed, got %s", j.Status)
	}
}

func TestProcess_UnsavedChunkCountsAsFailed(t *testing.T) {
	e := newEnv(t)
	e.store.reject = func(c *entity.AudioChunk) bool { return c.Status == entity.ChunkCompleted }
	job, items := e.startJob(t, 1)
	ctx := context.Background()

	if err := e.proc.Process(ctx, items[0].ID.String()); err != nil {
		t.Fatalf("process: %v", err)
	}

	it := e.item(t, items[0].ID)
	if it.Status != entity.ItemFailed || !it.IsFinalized() {
		t.Fatalf("expected item failed, got %s", it.Status)
	}
	logs, _ := e.errLogs.FindByItemID(ctx, it.ID)
	var majority, merge bool
	for _, l := range logs {
		switch l.Code {
		case entity.CodeChunkMajorityFailed:
			majority = true
		case entity.CodeMergeFailed:
			merge = true
		}
	}
	if !majority || merge {
		t.Fatalf("expected chunk majority failure and no merge attempt, got majority=%v merge=%v", majority, merge)
	}
	if j := e.job(t, job.ID); j.Status != entity.JobFailed {
		t.Fatalf("expected job failed, got %s", j.Status)
	}
}
