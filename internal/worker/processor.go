package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"narration-service/internal/entity"
	"narration-service/internal/event"
	"narration-service/internal/logger"
	"narration-service/internal/provider"
	"narration-service/internal/repository"
	"narration-service/internal/service"
)

type TextGenerator interface {
	GenerateText(ctx context.Context, req provider.TextRequest) (string, error)
}

type Chunker interface {
	Split(prefix, text string, maxChars int) []provider.TextChunk
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req provider.SpeechRequest) (provider.Speech, error)
}

type AudioStore interface {
	WriteChunk(ctx context.Context, itemID uuid.UUID, index int, audio []byte) (string, int64, error)
	Merge(ctx context.Context, itemID uuid.UUID, parts []string) (string, error)
	Cleanup(itemID uuid.UUID) error
}

type Uploader interface {
	Upload(ctx context.Context, localPath, name string) (string, error)
}

// Pipeline is the orchestrator surface the worker drives.
type Pipeline interface {
	ProcessItem(ctx context.Context, itemID uuid.UUID) (*entity.ContentItem, *entity.Job, error)
	AdvanceItem(ctx context.Context, itemID uuid.UUID, fn func(*entity.ContentItem) error) (*entity.ContentItem, error)
	EnsureItemStatus(ctx context.Context, itemID uuid.UUID, want entity.ItemStatus) error
	FailAttempt(ctx context.Context, itemID uuid.UUID, reason string) (*entity.ContentItem, error)
	CompleteItem(ctx context.Context, itemID uuid.UUID, audioPath string) error
}

type ChunkTracker interface {
	RegisterItemChunks(jobID, itemID uuid.UUID, chunkIDs []uuid.UUID)
	ResetItemTracking(itemID uuid.UUID)
}

type ProcessorDeps struct {
	Pipeline    Pipeline
	Errors      service.ErrorHandler
	Tracker     ChunkTracker
	Chunks      service.AudioChunkRepository
	Events      event.Publisher
	Text        TextGenerator
	Chunker     Chunker
	Speech      Synthesizer
	Store       AudioStore
	Uploader    Uploader
	Log         *logger.Logger
	Concurrency int // parallel synthesis requests per item
	// inline attempts per chunk before the chunk counts as failed
	ChunkAttempts   uint
	ChunkRetryDelay time.Duration
	DefaultVoice    string
}

// Processor runs one content item through the pipeline. The merge and
// upload steps run from MergeItem, which the chunk coordinator calls once
// all chunks are in.
type Processor struct {
	pipeline Pipeline
	errors   service.ErrorHandler
	tracker  ChunkTracker
	chunks   service.AudioChunkRepository
	events   event.Publisher
	text     TextGenerator
	chunker  Chunker
	speech   Synthesizer
	store    AudioStore
	uploader Uploader
	log      *logger.Logger

	concurrency     int
	chunkAttempts   uint
	chunkRetryDelay time.Duration
	defaultVoice    string
}

func NewProcessor(d ProcessorDeps) *Processor {
	if d.Concurrency <= 0 {
		d.Concurrency = 4
	}
	if d.ChunkAttempts == 0 {
		d.ChunkAttempts = 3
	}
	if d.ChunkRetryDelay <= 0 {
		d.ChunkRetryDelay = 500 * time.Millisecond
	}
	if d.DefaultVoice == "" {
		d.DefaultVoice = provider.DefaultVoice
	}
	return &Processor{
		pipeline:        d.Pipeline,
		errors:          d.Errors,
		tracker:         d.Tracker,
		chunks:          d.Chunks,
		events:          d.Events,
		text:            d.Text,
		chunker:         d.Chunker,
		speech:          d.Speech,
		store:           d.Store,
		uploader:        d.Uploader,
		log:             d.Log.With("component", "processor"),
		concurrency:     d.Concurrency,
		chunkAttempts:   d.ChunkAttempts,
		chunkRetryDelay: d.ChunkRetryDelay,
		defaultVoice:    d.DefaultVoice,
	}
}

// Process handles one delivery of an item id. Deliveries that have nothing
// to do (duplicates, paused or finished jobs) return nil so they are acked.
func (p *Processor) Process(ctx context.Context, rawID string) error {
	start := time.Now()

	itemID, err := uuid.Parse(rawID)
	if err != nil {
		p.log.Error("bad item id", "item_id", rawID, "error", err)
		return err
	}

	it, job, err := p.pipeline.ProcessItem(ctx, itemID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrItemNotRunnable),
		errors.Is(err, service.ErrJobNotActive),
		errors.Is(err, service.ErrJobPaused),
		errors.Is(err, repository.ErrNotFound):
		p.log.Info("delivery skipped", "item_id", rawID, "reason", err.Error())
		return nil
	default:
		return fmt.Errorf("claim item %s: %w", rawID, err)
	}

	log := p.log.With("job_id", job.ID.String(), "item_id", it.ID.String())
	log.Info("item started", "retry_count", it.RetryCount)

	if err := it.Validate(); err != nil {
		return p.fail(ctx, it, entity.ItemValidating, err)
	}

	// text
	if _, err := p.pipeline.AdvanceItem(ctx, itemID, func(c *entity.ContentItem) error {
		return c.StartTextGeneration(time.Now().UTC())
	}); err != nil {
		return p.fail(ctx, it, entity.ItemValidating, err)
	}
	p.events.Publish(ctx, event.ItemTextGenerationStarted{JobID: job.ID, ItemID: itemID})

	textStart := time.Now()
	text, err := p.text.GenerateText(ctx, provider.TextRequest{
		Title:     it.Title,
		Details:   it.Details,
		Category:  it.Category,
		Reference: it.Reference,
		Prompt:    job.Config.Prompt,
	})
	if err != nil {
		return p.fail(ctx, it, entity.ItemGeneratingText, err)
	}
	if _, err := p.pipeline.AdvanceItem(ctx, itemID, func(c *entity.ContentItem) error {
		now := time.Now().UTC()
		if err := c.SetGeneratedText(text, now); err != nil {
			return err
		}
		return c.StartChunking(now)
	}); err != nil {
		return p.fail(ctx, it, entity.ItemGeneratingText, err)
	}
	p.events.Publish(ctx, event.ItemTextGenerationCompleted{
		JobID:      job.ID,
		ItemID:     itemID,
		TextLength: len(text),
		DurationMs: time.Since(textStart).Milliseconds(),
	})

	// chunking
	chunks, err := p.createChunks(ctx, job, it, text)
	if err != nil {
		return p.fail(ctx, it, entity.ItemChunking, err)
	}
	if _, err := p.pipeline.AdvanceItem(ctx, itemID, func(c *entity.ContentItem) error {
		return c.StartAudioGeneration(time.Now().UTC())
	}); err != nil {
		return p.fail(ctx, it, entity.ItemChunking, err)
	}
	ids := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	p.tracker.RegisterItemChunks(job.ID, itemID, ids)
	p.events.Publish(ctx, event.ItemTextChunkingCompleted{JobID: job.ID, ItemID: itemID, ChunkCount: len(ids), ChunkIDs: ids})

	// synthesis; the last chunk outcome triggers merge through the coordinator
	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for _, c := range chunks {
		g.Go(func() error {
			p.synthesizeChunk(ctx, job, c)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("item pipeline finished", "chunks", len(chunks), "duration_ms", time.Since(start).Milliseconds())
	return ctx.Err()
}

func (p *Processor) createChunks(ctx context.Context, job *entity.Job, it *entity.ContentItem, text string) ([]*entity.AudioChunk, error) {
	parts := p.chunker.Split(it.ID.String(), text, job.Config.ChunkSize)
	if len(parts) == 0 {
		return nil, &entity.ValidationError{Field: "generated_text", Reason: "produced no chunks"}
	}
	voice := job.Config.VoiceID
	if voice == "" {
		voice = p.defaultVoice
	}

	// stale chunks from an earlier attempt
	if _, err := p.chunks.DeleteByItemID(ctx, it.ID); err != nil {
		return nil, fmt.Errorf("delete chunks: %w", err)
	}
	if err := p.store.Cleanup(it.ID); err != nil {
		p.log.Warn("cleanup audio dir", "item_id", it.ID.String(), "error", err)
	}

	now := time.Now().UTC()
	out := make([]*entity.AudioChunk, 0, len(parts))
	for _, part := range parts {
		c := entity.NewAudioChunk(it.ID, part.Index, part.ID, part.Text, voice, now)
		if err := p.chunks.Save(ctx, c); err != nil {
			return nil, fmt.Errorf("save chunk %d: %w", part.Index, err)
		}
		p.events.Publish(ctx, event.ChunkCreated{ItemID: it.ID, ChunkID: c.ID, Index: c.Index})
		out = append(out, c)
	}
	return out, nil
}

func (p *Processor) synthesizeChunk(ctx context.Context, job *entity.Job, c *entity.AudioChunk) {
	start := time.Now()
	log := p.log.With("job_id", job.ID.String(), "item_id", c.ItemID.String(), "chunk_id", c.ID.String())
	step := string(entity.ItemGeneratingAudio)

	if err := c.StartProcessing(time.Now().UTC()); err != nil {
		log.Error("start chunk", "error", err)
		return
	}
	if err := p.chunks.Save(ctx, c); err != nil {
		log.Error("save chunk", "error", err)
	}
	p.events.Publish(ctx, event.ChunkProcessingStarted{JobID: job.ID, ItemID: c.ItemID, ChunkID: c.ID})

	var (
		path string
		size int64
		dur  float64
	)
	err := retry.Do(
		func() error {
			sp, err := p.speech.Synthesize(ctx, provider.SpeechRequest{Text: c.Text, Voice: c.VoiceID})
			if err != nil {
				return err
			}
			path, size, err = p.store.WriteChunk(ctx, c.ItemID, c.Index, sp.Audio)
			dur = sp.Duration
			return err
		},
		retry.Context(ctx),
		retry.Attempts(p.chunkAttempts),
		retry.Delay(p.chunkRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return service.Classify(step, err).Retryable }),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("chunk synthesis retry", "attempt", n+1, "error", err)
		}),
	)

	// the item may have been cancelled or failed while we were synthesizing
	if gone := p.pipeline.EnsureItemStatus(ctx, c.ItemID, entity.ItemGeneratingAudio); gone != nil {
		log.Info("chunk result discarded", "reason", gone.Error())
		return
	}

	now := time.Now().UTC()
	if err == nil {
		err = c.Complete(path, dur, size, now)
	}
	if err == nil {
		// merge only reads chunks persisted as completed
		if serr := p.chunks.Save(ctx, c); serr != nil {
			err = fmt.Errorf("save completed chunk: %w", serr)
		}
	}
	if err != nil {
		p.chunkFailed(ctx, job, c, err, start)
		return
	}
	p.events.Publish(ctx, event.ItemAudioChunkGenerated{
		JobID:    job.ID,
		ItemID:   c.ItemID,
		ChunkID:  c.ID,
		Index:    c.Index,
		Duration: c.Duration,
		FileSize: c.FileSize,
	})
	p.events.Publish(ctx, event.ChunkProcessingCompleted{
		JobID:      job.ID,
		ItemID:     c.ItemID,
		ChunkID:    c.ID,
		Success:    true,
		DurationMs: time.Since(start).Milliseconds(),
	})
}

func (p *Processor) chunkFailed(ctx context.Context, job *entity.Job, c *entity.AudioChunk, cause error, start time.Time) {
	step := string(entity.ItemGeneratingAudio)
	if err := c.Fail(cause.Error(), time.Now().UTC()); err == nil {
		if err := p.chunks.Save(ctx, c); err != nil {
			p.log.Error("save chunk", "chunk_id", c.ID.String(), "error", err)
		}
	}

	cl := service.Classify(step, cause)
	if _, err := p.errors.HandleError(ctx, service.ErrorContext{
		Scope:      service.ScopeChunk,
		EntityID:   c.ID,
		JobID:      job.ID,
		ItemID:     c.ItemID,
		ChunkID:    c.ID,
		Step:       step,
		Code:       cl.Code,
		Err:        cause,
		Severity:   cl.Severity,
		Retryable:  false, // retried inline above
		RetryCount: c.RetryCount,
		Metadata:   map[string]any{"chunk_index": c.Index},
	}); err != nil {
		p.log.Error("handle chunk error", "chunk_id", c.ID.String(), "error", err)
	}

	p.events.Publish(ctx, event.ChunkProcessingCompleted{
		JobID:      job.ID,
		ItemID:     c.ItemID,
		ChunkID:    c.ID,
		Success:    false,
		Error:      cause.Error(),
		DurationMs: time.Since(start).Milliseconds(),
	})
}

// MergeItem joins the completed chunks of an item, uploads the result and
// completes the item. Errors are returned to the chunk coordinator.
func (p *Processor) MergeItem(ctx context.Context, itemID uuid.UUID) error {
	it, err := p.pipeline.AdvanceItem(ctx, itemID, func(c *entity.ContentItem) error {
		return c.StartMerging(time.Now().UTC())
	})
	if err != nil {
		return err
	}

	all, err := p.chunks.FindByItemID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	var (
		parts    []string
		duration float64
	)
	for _, c := range all {
		if c.Status != entity.ChunkCompleted {
			continue
		}
		parts = append(parts, c.AudioPath)
		duration += c.Duration
	}
	p.events.Publish(ctx, event.ItemAudioMergeStarted{JobID: it.JobID, ItemID: itemID, ChunkCount: len(parts)})

	merged, err := p.store.Merge(ctx, itemID, parts)
	if err != nil {
		return err
	}
	p.events.Publish(ctx, event.ItemAudioMergeCompleted{JobID: it.JobID, ItemID: itemID, AudioPath: merged, Duration: duration})

	if _, err := p.pipeline.AdvanceItem(ctx, itemID, func(c *entity.ContentItem) error {
		return c.StartUploading(time.Now().UTC())
	}); err != nil {
		return err
	}
	url, err := p.uploader.Upload(ctx, merged, fmt.Sprintf("%s/%s.mp3", it.JobID, itemID))
	if err != nil {
		return err
	}
	return p.pipeline.CompleteItem(ctx, itemID, url)
}

// fail records the attempt and lets the error coordinator decide between
// a scheduled retry and a permanent failure.
func (p *Processor) fail(ctx context.Context, it *entity.ContentItem, step entity.ItemStatus, cause error) error {
	if errors.Is(cause, service.ErrJobNotActive) {
		p.log.Info("item result discarded", "item_id", it.ID.String(), "step", string(step))
		return nil
	}
	p.tracker.ResetItemTracking(it.ID)

	cur, err := p.pipeline.FailAttempt(ctx, it.ID, cause.Error())
	if err != nil {
		if errors.Is(err, service.ErrJobNotActive) {
			return nil
		}
		return fmt.Errorf("record failed attempt: %w", err)
	}

	cl := service.Classify(string(step), cause)
	res, err := p.errors.HandleError(ctx, service.ErrorContext{
		Scope:      service.ScopeItem,
		EntityID:   it.ID,
		JobID:      it.JobID,
		ItemID:     it.ID,
		Step:       string(step),
		Code:       cl.Code,
		Err:        cause,
		Severity:   cl.Severity,
		Retryable:  cl.Retryable,
		RetryCount: cur.RetryCount,
		MaxRetries: cur.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("handle item error: %w", err)
	}
	if res.RetryScheduled {
		p.log.Info("item attempt failed, retry scheduled",
			"item_id", it.ID.String(),
			"step", string(step),
			"next_retry_at", res.NextRetryAt.Format(time.RFC3339),
		)
		return nil
	}
	return cause
}
