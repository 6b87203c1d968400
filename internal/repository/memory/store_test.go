package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/repository"
	"narration-service/internal/repository/memory"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestJobRepository_CopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	r := memory.NewJobRepository()
	j, err := entity.NewJob("batch", entity.JobConfig{}, now)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := r.Save(ctx, j); err != nil {
		t.Fatalf("save: %v", err)
	}

	j.Name = "changed after save"
	got, err := r.FindByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Name != "batch" {
		t.Fatalf("expected stored copy untouched, got %q", got.Name)
	}
	got.Name = "changed after read"
	again, _ := r.FindByID(ctx, j.ID)
	if again.Name != "batch" {
		t.Fatalf("expected read copy detached, got %q", again.Name)
	}
}

func TestJobRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	r := memory.NewJobRepository()
	if _, err := r.FindByID(ctx, uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.Delete(ctx, uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
	if ok, _ := r.Exists(ctx, uuid.New()); ok {
		t.Fatalf("expected unknown id not to exist")
	}
}

func TestContentItemRepository_OrdersByRow(t *testing.T) {
	ctx := context.Background()
	r := memory.NewContentItemRepository()
	jobID := uuid.New()
	for _, row := range []int{2, 0, 1} {
		it := entity.NewContentItem(jobID, row, entity.ItemSource{Title: "t", Details: "d"}, 3, now)
		if err := r.Save(ctx, it); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	_ = r.Save(ctx, entity.NewContentItem(uuid.New(), 0, entity.ItemSource{Title: "other"}, 3, now))

	items, err := r.FindByJobID(ctx, jobID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, it := range items {
		if it.RowIndex != i {
			t.Fatalf("expected row %d at %d, got %d", i, i, it.RowIndex)
		}
	}
	if n, _ := r.CountByJobID(ctx, jobID); n != 3 {
		t.Fatalf("expected count 3, got %d", n)
	}
}

func TestAudioChunkRepository_DeleteByItemID(t *testing.T) {
	ctx := context.Background()
	r := memory.NewAudioChunkRepository()
	itemID, other := uuid.New(), uuid.New()
	for i := 2; i >= 0; i-- {
		_ = r.Save(ctx, entity.NewAudioChunk(itemID, i, "c", "text", "onyx", now))
	}
	keep := entity.NewAudioChunk(other, 0, "c", "text", "onyx", now)
	_ = r.Save(ctx, keep)

	chunks, _ := r.FindByItemID(ctx, itemID)
	if len(chunks) != 3 || chunks[0].Index != 0 || chunks[2].Index != 2 {
		t.Fatalf("expected 3 chunks ordered by index, got %d", len(chunks))
	}

	n, err := r.DeleteByItemID(ctx, itemID)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 deleted, got %d %v", n, err)
	}
	if left, _ := r.FindByItemID(ctx, itemID); len(left) != 0 {
		t.Fatalf("expected no chunks left, got %d", len(left))
	}
	if _, err := r.FindByID(ctx, keep.ID); err != nil {
		t.Fatalf("expected other item's chunk kept, got %v", err)
	}
}

func TestErrorLogRepository_FiltersAndCopiesMetadata(t *testing.T) {
	ctx := context.Background()
	r := memory.NewErrorLogRepository()
	jobID, itemID := uuid.New(), uuid.New()

	first := entity.NewErrorLog("generating_text", entity.CodeTimeout, "slow", true, now)
	first.JobID, first.ItemID = &jobID, &itemID
	first.Metadata = map[string]any{"attempt": 1}
	second := entity.NewErrorLog("merging", entity.CodeMergeFailed, "bad file", false, now.Add(time.Second))
	second.JobID = &jobID
	_ = r.Save(ctx, second)
	_ = r.Save(ctx, first)

	first.Metadata["attempt"] = 99

	byJob, _ := r.FindByJobID(ctx, jobID)
	if len(byJob) != 2 || byJob[0].ID != first.ID {
		t.Fatalf("expected 2 logs oldest first, got %d", len(byJob))
	}
	if byJob[0].Metadata["attempt"] != 1 {
		t.Fatalf("expected metadata copied on save, got %v", byJob[0].Metadata["attempt"])
	}
	byItem, _ := r.FindByItemID(ctx, itemID)
	if len(byItem) != 1 || byItem[0].Code != entity.CodeTimeout {
		t.Fatalf("expected one item log, got %d", len(byItem))
	}

	if err := byItem[0].MarkAsRetried(now); err != nil {
		t.Fatalf("mark: %v", err)
	}
	stored, _ := r.FindByID(ctx, first.ID)
	if stored.RetriedAt != nil {
		t.Fatalf("expected mark not visible before save")
	}
	_ = r.Save(ctx, byItem[0])
	stored, _ = r.FindByID(ctx, first.ID)
	if stored.RetriedAt == nil {
		t.Fatalf("expected retried_at persisted")
	}
}
