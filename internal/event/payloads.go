package event

import (
	"time"

	"github.com/google/uuid"
)

type JobStarted struct {
	JobID      uuid.UUID `json:"job_id"`
	TotalItems int       `json:"total_items"`
}

type JobProgressUpdated struct {
	JobID      uuid.UUID `json:"job_id"`
	Completed  int       `json:"completed_items"`
	Failed     int       `json:"failed_items"`
	Total      int       `json:"total_items"`
	Percent    float64   `json:"percent"`
	ETASeconds *float64  `json:"eta_seconds,omitempty"`
}

type JobCompleted struct {
	JobID      uuid.UUID `json:"job_id"`
	Completed  int       `json:"completed_items"`
	Failed     int       `json:"failed_items"`
	DurationMs int64     `json:"duration_ms"`
}

type JobFailed struct {
	JobID     uuid.UUID `json:"job_id"`
	Completed int       `json:"completed_items"`
	Failed    int       `json:"failed_items"`
	Error     string    `json:"error"`
}

type JobCancelled struct {
	JobID          uuid.UUID `json:"job_id"`
	CancelledItems int       `json:"cancelled_items"`
}

type JobPaused struct {
	JobID uuid.UUID `json:"job_id"`
}

type ItemCreated struct {
	JobID    uuid.UUID `json:"job_id"`
	ItemID   uuid.UUID `json:"item_id"`
	RowIndex int       `json:"row_index"`
}

type ItemFailed struct {
	JobID     uuid.UUID `json:"job_id"`
	ItemID    uuid.UUID `json:"item_id"`
	Step      string    `json:"step"`
	Error     string    `json:"error"`
	Permanent bool      `json:"permanent"`
}

type ItemCompleted struct {
	JobID      uuid.UUID `json:"job_id"`
	ItemID     uuid.UUID `json:"item_id"`
	AudioPath  string    `json:"audio_path"`
	DurationMs int64     `json:"duration_ms"`
}

type ItemProgressUpdated struct {
	JobID   uuid.UUID `json:"job_id"`
	ItemID  uuid.UUID `json:"item_id"`
	Step    string    `json:"step"`
	Percent float64   `json:"percent"`
}

type ItemValidationStarted struct {
	JobID  uuid.UUID `json:"job_id"`
	ItemID uuid.UUID `json:"item_id"`
	Retry  int       `json:"retry"`
}

type ItemTextGenerationStarted struct {
	JobID  uuid.UUID `json:"job_id"`
	ItemID uuid.UUID `json:"item_id"`
}

type ItemTextGenerationCompleted struct {
	JobID      uuid.UUID `json:"job_id"`
	ItemID     uuid.UUID `json:"item_id"`
	TextLength int       `json:"text_length"`
	DurationMs int64     `json:"duration_ms"`
}

type ItemTextChunkingCompleted struct {
	JobID      uuid.UUID   `json:"job_id"`
	ItemID     uuid.UUID   `json:"item_id"`
	ChunkCount int         `json:"chunk_count"`
	ChunkIDs   []uuid.UUID `json:"chunk_ids"`
}

type ItemAudioChunkGenerated struct {
	JobID    uuid.UUID `json:"job_id"`
	ItemID   uuid.UUID `json:"item_id"`
	ChunkID  uuid.UUID `json:"chunk_id"`
	Index    int       `json:"index"`
	Duration float64   `json:"duration"`
	FileSize int64     `json:"file_size"`
}

type ItemAudioMergeStarted struct {
	JobID      uuid.UUID `json:"job_id"`
	ItemID     uuid.UUID `json:"item_id"`
	ChunkCount int       `json:"chunk_count"`
}

type ItemAudioMergeCompleted struct {
	JobID     uuid.UUID `json:"job_id"`
	ItemID    uuid.UUID `json:"item_id"`
	AudioPath string    `json:"audio_path"`
	Duration  float64   `json:"duration"`
}

type ChunkCreated struct {
	ItemID  uuid.UUID `json:"item_id"`
	ChunkID uuid.UUID `json:"chunk_id"`
	Index   int       `json:"index"`
}

type ChunkProcessingStarted struct {
	JobID   uuid.UUID `json:"job_id"`
	ItemID  uuid.UUID `json:"item_id"`
	ChunkID uuid.UUID `json:"chunk_id"`
}

// ChunkProcessingCompleted is emitted for both outcomes; Success tells them apart.
type ChunkProcessingCompleted struct {
	JobID      uuid.UUID `json:"job_id"`
	ItemID     uuid.UUID `json:"item_id"`
	ChunkID    uuid.UUID `json:"chunk_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

type ErrorOccurred struct {
	Scope      string    `json:"scope"`
	EntityID   uuid.UUID `json:"entity_id"`
	ErrorLogID uuid.UUID `json:"error_log_id"`
	Step       string    `json:"step,omitempty"`
	Code       string    `json:"code"`
	Error      string    `json:"error"`
	Severity   string    `json:"severity"`
	Retryable  bool      `json:"retryable"`
	RetryCount int       `json:"retry_count"`
}

type ErrorRetryScheduled struct {
	Scope        string    `json:"scope"`
	EntityID     uuid.UUID `json:"entity_id"`
	RetryCount   int       `json:"retry_count"`
	DelayMs      int64     `json:"delay_ms"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (JobStarted) Kind() Kind                  { return KindJobStarted }
func (JobProgressUpdated) Kind() Kind          { return KindJobProgressUpdated }
func (JobCompleted) Kind() Kind                { return KindJobCompleted }
func (JobFailed) Kind() Kind                   { return KindJobFailed }
func (JobCancelled) Kind() Kind                { return KindJobCancelled }
func (JobPaused) Kind() Kind                   { return KindJobPaused }
func (ItemCreated) Kind() Kind                 { return KindItemCreated }
func (ItemFailed) Kind() Kind                  { return KindItemFailed }
func (ItemCompleted) Kind() Kind               { return KindItemCompleted }
func (ItemProgressUpdated) Kind() Kind         { return KindItemProgressUpdated }
func (ItemValidationStarted) Kind() Kind       { return KindItemValidationStarted }
func (ItemTextGenerationStarted) Kind() Kind   { return KindItemTextGenerationStarted }
func (ItemTextGenerationCompleted) Kind() Kind { return KindItemTextGenerationCompleted }
func (ItemTextChunkingCompleted) Kind() Kind   { return KindItemTextChunkingCompleted }
func (ItemAudioChunkGenerated) Kind() Kind     { return KindItemAudioChunkGenerated }
func (ItemAudioMergeStarted) Kind() Kind       { return KindItemAudioMergeStarted }
func (ItemAudioMergeCompleted) Kind() Kind     { return KindItemAudioMergeCompleted }
func (ChunkCreated) Kind() Kind                { return KindChunkCreated }
func (ChunkProcessingStarted) Kind() Kind      { return KindChunkProcessingStarted }
func (ChunkProcessingCompleted) Kind() Kind    { return KindChunkProcessingCompleted }
func (ErrorOccurred) Kind() Kind               { return KindErrorOccurred }
func (ErrorRetryScheduled) Kind() Kind         { return KindErrorRetryScheduled }

func (JobStarted) sealed()                  {}
func (JobProgressUpdated) sealed()          {}
func (JobCompleted) sealed()                {}
func (JobFailed) sealed()                   {}
func (JobCancelled) sealed()                {}
func (JobPaused) sealed()                   {}
func (ItemCreated) sealed()                 {}
func (ItemFailed) sealed()                  {}
func (ItemCompleted) sealed()               {}
func (ItemProgressUpdated) sealed()         {}
func (ItemValidationStarted) sealed()       {}
func (ItemTextGenerationStarted) sealed()   {}
func (ItemTextGenerationCompleted) sealed() {}
func (ItemTextChunkingCompleted) sealed()   {}
func (ItemAudioChunkGenerated) sealed()     {}
func (ItemAudioMergeStarted) sealed()       {}
func (ItemAudioMergeCompleted) sealed()     {}
func (ChunkCreated) sealed()                {}
func (ChunkProcessingStarted) sealed()      {}
func (ChunkProcessingCompleted) sealed()    {}
func (ErrorOccurred) sealed()               {}
func (ErrorRetryScheduled) sealed()         {}
