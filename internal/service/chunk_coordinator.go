package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/event"
	"narration-service/internal/logger"
)

// MajorityFailureRatio is the share of failed chunks that fails the item
// without waiting for the rest.
const MajorityFailureRatio = 0.5

// Merger turns the completed chunks of an item into its final audio.
type Merger interface {
	MergeItem(ctx context.Context, itemID uuid.UUID) error
}

// ErrorHandler is the ErrorCoordinator entry point.
type ErrorHandler interface {
	HandleError(ctx context.Context, ec ErrorContext) (RecoveryResult, error)
}

type ChunkStatus struct {
	ItemID    uuid.UUID   `json:"item_id"`
	Tracked   bool        `json:"tracked"`
	Pending   []uuid.UUID `json:"pending"`
	Completed []uuid.UUID `json:"completed"`
	Failed    []uuid.UUID `json:"failed"`
	Total     int         `json:"total"`
}

type itemChunks struct {
	mu        sync.Mutex
	jobID     uuid.UUID
	pending   map[uuid.UUID]struct{}
	completed map[uuid.UUID]struct{}
	failed    map[uuid.UUID]struct{}
	// settled is set once merge or failure was triggered.
	settled bool
}

func (s *itemChunks) total() int { return len(s.pending) + len(s.completed) + len(s.failed) }

type decision int

const (
	decideNothing decision = iota
	decideMerge
	decideFail
)

// ChunkCoordinator aggregates chunk outcomes per item and triggers the
// merge when every chunk is done, or fails the item on majority failure.
type ChunkCoordinator struct {
	items  ContentItemRepository
	merger Merger
	errors ErrorHandler
	log    *logger.Logger

	mu      sync.Mutex
	tracked map[uuid.UUID]*itemChunks
}

func NewChunkCoordinator(items ContentItemRepository, errs ErrorHandler, log *logger.Logger) *ChunkCoordinator {
	return &ChunkCoordinator{
		items:   items,
		errors:  errs,
		log:     log.With("component", "chunk_coordinator"),
		tracked: map[uuid.UUID]*itemChunks{},
	}
}

// SetMerger wires the merge step; it lives in the worker, which itself
// depends on the coordinator.
func (c *ChunkCoordinator) SetMerger(m Merger) { c.merger = m }

// Attach subscribes the coordinator to chunk outcomes.
func (c *ChunkCoordinator) Attach(b *event.Bus) func() {
	return b.Subscribe(event.KindChunkProcessingCompleted, "chunk_coordinator", func(ctx context.Context, e event.Event) error {
		p, ok := e.Payload.(event.ChunkProcessingCompleted)
		if !ok {
			return nil
		}
		if p.Success {
			return c.OnChunkSucceeded(ctx, p.ItemID, p.ChunkID)
		}
		return c.OnChunkFailed(ctx, p.ItemID, p.ChunkID, p.Error)
	})
}

// RegisterItemChunks starts (or extends) tracking for an item. Ids already
// known in any set are left where they are, so registering twice is harmless.
func (c *ChunkCoordinator) RegisterItemChunks(jobID, itemID uuid.UUID, chunkIDs []uuid.UUID) {
	c.mu.Lock()
	st, ok := c.tracked[itemID]
	if !ok {
		st = &itemChunks{
			jobID:     jobID,
			pending:   map[uuid.UUID]struct{}{},
			completed: map[uuid.UUID]struct{}{},
			failed:    map[uuid.UUID]struct{}{},
		}
		c.tracked[itemID] = st
	}
	c.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	for _, id := range chunkIDs {
		if _, done := st.completed[id]; done {
			continue
		}
		if _, bad := st.failed[id]; bad {
			continue
		}
		st.pending[id] = struct{}{}
	}
	c.log.Debug("chunks registered", "item_id", itemID.String(), "chunks", len(chunkIDs), "total", st.total())
}

func (c *ChunkCoordinator) state(itemID uuid.UUID) *itemChunks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracked[itemID]
}

func (c *ChunkCoordinator) OnChunkSucceeded(ctx context.Context, itemID, chunkID uuid.UUID) error {
	st := c.state(itemID)
	if st == nil {
		return nil
	}

	st.mu.Lock()
	if _, ok := st.pending[chunkID]; !ok || st.settled {
		st.mu.Unlock()
		return nil
	}
	delete(st.pending, chunkID)
	st.completed[chunkID] = struct{}{}
	d := st.decide()
	jobID := st.jobID
	st.mu.Unlock()

	return c.act(ctx, d, jobID, itemID)
}

func (c *ChunkCoordinator) OnChunkFailed(ctx context.Context, itemID, chunkID uuid.UUID, reason string) error {
	st := c.state(itemID)
	if st == nil {
		return nil
	}

	st.mu.Lock()
	if _, ok := st.pending[chunkID]; !ok || st.settled {
		st.mu.Unlock()
		return nil
	}
	delete(st.pending, chunkID)
	st.failed[chunkID] = struct{}{}
	d := st.decide()
	jobID := st.jobID
	st.mu.Unlock()

	c.log.Debug("chunk failed", "item_id", itemID.String(), "chunk_id", chunkID.String(), "error", reason)
	return c.act(ctx, d, jobID, itemID)
}

// decide must be called with st.mu held.
func (s *itemChunks) decide() decision {
	if s.settled {
		return decideNothing
	}
	threshold := int(math.Ceil(float64(s.total()) * MajorityFailureRatio))
	if len(s.failed) > 0 && len(s.failed) >= threshold {
		s.settled = true
		return decideFail
	}
	if len(s.pending) == 0 && len(s.completed) > 0 {
		s.settled = true
		return decideMerge
	}
	return decideNothing
}

func (c *ChunkCoordinator) act(ctx context.Context, d decision, jobID, itemID uuid.UUID) error {
	switch d {
	case decideMerge:
		return c.triggerMerge(ctx, jobID, itemID)
	case decideFail:
		return c.failMajority(ctx, jobID, itemID)
	}
	return nil
}

func (c *ChunkCoordinator) failMajority(ctx context.Context, jobID, itemID uuid.UUID) error {
	st := c.GetChunkStatus(itemID)
	c.ResetItemTracking(itemID)

	c.log.Warn("majority of chunks failed",
		"item_id", itemID.String(),
		"failed", len(st.Failed),
		"total", st.Total,
	)
	_, err := c.errors.HandleError(ctx, ErrorContext{
		Scope:     ScopeItem,
		EntityID:  itemID,
		JobID:     jobID,
		ItemID:    itemID,
		Step:      string(entity.ItemGeneratingAudio),
		Code:      entity.CodeChunkMajorityFailed,
		Err:       fmt.Errorf("%d of %d chunks failed", len(st.Failed), st.Total),
		Severity:  entity.SeverityHigh,
		Retryable: false,
		Metadata:  map[string]any{"failed_chunks": len(st.Failed), "total_chunks": st.Total},
	})
	return err
}

func (c *ChunkCoordinator) triggerMerge(ctx context.Context, jobID, itemID uuid.UUID) error {
	// tracking is dropped on both outcomes
	defer c.ResetItemTracking(itemID)

	it, err := c.items.FindByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item %s: %w", itemID, err)
	}
	if it.Status != entity.ItemGeneratingAudio {
		// cancelled or failed concurrently
		c.log.Info("merge skipped", "item_id", itemID.String(), "status", string(it.Status))
		return nil
	}
	if c.merger == nil {
		return errors.New("chunk coordinator: merger not configured")
	}

	mergeErr := c.merger.MergeItem(ctx, itemID)
	if mergeErr == nil {
		return nil
	}
	if errors.Is(mergeErr, ErrJobNotActive) {
		c.log.Info("merge result discarded", "item_id", itemID.String(), "error", mergeErr)
		return nil
	}

	step := string(entity.ItemMerging)
	if cur, err := c.items.FindByID(ctx, itemID); err == nil && cur.Status == entity.ItemUploading {
		step = string(entity.ItemUploading)
	}
	cl := Classify(step, mergeErr)
	code := cl.Code
	if code == entity.CodeUnknown {
		code = entity.CodeMergeFailed
		if step == string(entity.ItemUploading) {
			code = entity.CodeUploadFailed
		}
	}
	_, err = c.errors.HandleError(ctx, ErrorContext{
		Scope:     ScopeItem,
		EntityID:  itemID,
		JobID:     jobID,
		ItemID:    itemID,
		Step:      step,
		Code:      code,
		Err:       mergeErr,
		Severity:  entity.DeriveSeverity(step, code),
		Retryable: false,
	})
	return err
}

// GetChunkStatus is a snapshot of the tracking sets for an item.
func (c *ChunkCoordinator) GetChunkStatus(itemID uuid.UUID) ChunkStatus {
	out := ChunkStatus{ItemID: itemID, Pending: []uuid.UUID{}, Completed: []uuid.UUID{}, Failed: []uuid.UUID{}}
	st := c.state(itemID)
	if st == nil {
		return out
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out.Tracked = true
	for id := range st.pending {
		out.Pending = append(out.Pending, id)
	}
	for id := range st.completed {
		out.Completed = append(out.Completed, id)
	}
	for id := range st.failed {
		out.Failed = append(out.Failed, id)
	}
	out.Total = st.total()
	return out
}

func (c *ChunkCoordinator) ResetItemTracking(itemID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracked, itemID)
}

// TrackedItems is the number of items with live tracking state.
func (c *ChunkCoordinator) TrackedItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracked)
}
