package event

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindJobStarted         Kind = "job.started"
	KindJobProgressUpdated Kind = "job.progress.updated"
	KindJobCompleted       Kind = "job.completed"
	KindJobFailed          Kind = "job.failed"
	KindJobCancelled       Kind = "job.cancelled"
	KindJobPaused          Kind = "job.paused"

	KindItemCreated                 Kind = "item.created"
	KindItemFailed                  Kind = "item.failed"
	KindItemCompleted               Kind = "item.completed"
	KindItemProgressUpdated         Kind = "item.progress.updated"
	KindItemValidationStarted       Kind = "item.validation.started"
	KindItemTextGenerationStarted   Kind = "item.text.generation.started"
	KindItemTextGenerationCompleted Kind = "item.text.generation.completed"
	KindItemTextChunkingCompleted   Kind = "item.text.chunking.completed"
	KindItemAudioChunkGenerated     Kind = "item.audio.chunk.generated"
	KindItemAudioMergeStarted       Kind = "item.audio.merge.started"
	KindItemAudioMergeCompleted     Kind = "item.audio.merge.completed"

	KindChunkCreated             Kind = "chunk.created"
	KindChunkProcessingStarted   Kind = "chunk.processing.started"
	KindChunkProcessingCompleted Kind = "chunk.processing.completed"

	KindErrorOccurred       Kind = "error.occurred"
	KindErrorRetryScheduled Kind = "error.retry.scheduled"
)

// Group replaces "job.*" style wildcard subscriptions.
type Group string

const (
	GroupJob   Group = "job"
	GroupItem  Group = "item"
	GroupChunk Group = "chunk"
	GroupError Group = "error"
)

func (k Kind) Group() Group {
	prefix, _, _ := strings.Cut(string(k), ".")
	return Group(prefix)
}

// Payload is a closed set: only types in this package implement it.
type Payload interface {
	Kind() Kind
	sealed()
}

type Event struct {
	ID         uuid.UUID `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Payload   `json:"-"`
}

func New(p Payload, now time.Time) Event {
	return Event{ID: uuid.New(), OccurredAt: now, Payload: p}
}

func (e Event) Kind() Kind { return e.Payload.Kind() }

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         uuid.UUID `json:"id"`
		Type       Kind      `json:"type"`
		OccurredAt time.Time `json:"occurred_at"`
		Data       Payload   `json:"data"`
	}{e.ID, e.Kind(), e.OccurredAt, e.Payload})
}
