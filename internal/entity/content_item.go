package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ItemStatus string

const (
	ItemPending         ItemStatus = "pending"
	ItemValidating      ItemStatus = "validating"
	ItemGeneratingText  ItemStatus = "generating_text"
	ItemChunking        ItemStatus = "chunking"
	ItemGeneratingAudio ItemStatus = "generating_audio"
	ItemMerging         ItemStatus = "merging"
	ItemUploading       ItemStatus = "uploading"
	ItemCompleted       ItemStatus = "completed"
	ItemFailed          ItemStatus = "failed"
	ItemSkipped         ItemStatus = "skipped"
)

// ItemSteps is the happy path in order; progress of an item is its position here.
var ItemSteps = []ItemStatus{
	ItemPending,
	ItemValidating,
	ItemGeneratingText,
	ItemChunking,
	ItemGeneratingAudio,
	ItemMerging,
	ItemUploading,
	ItemCompleted,
}

var ItemTransitions = Transitions[ItemStatus]{
	ItemPending:         {ItemValidating, ItemFailed, ItemSkipped},
	ItemValidating:      {ItemGeneratingText, ItemFailed, ItemSkipped},
	ItemGeneratingText:  {ItemChunking, ItemFailed},
	ItemChunking:        {ItemGeneratingAudio, ItemFailed},
	ItemGeneratingAudio: {ItemMerging, ItemFailed},
	ItemMerging:         {ItemUploading, ItemFailed},
	ItemUploading:       {ItemCompleted, ItemFailed},
	ItemFailed:          {ItemValidating},
}

func (s ItemStatus) IsTerminal() bool {
	return s == ItemCompleted || s == ItemFailed || s == ItemSkipped
}

// StepIndex returns the position of s on the happy path, or -1.
func (s ItemStatus) StepIndex() int {
	for i, step := range ItemSteps {
		if step == s {
			return i
		}
	}
	return -1
}

type ContentItem struct {
	ID             uuid.UUID  `json:"id"`
	JobID          uuid.UUID  `json:"job_id"`
	RowIndex       int        `json:"row_index"`
	Status         ItemStatus `json:"status"`
	CurrentStep    string     `json:"current_step"`
	Title          string     `json:"title"`
	Details        string     `json:"details"`
	Category       string     `json:"category,omitempty"`
	Reference      string     `json:"reference,omitempty"`
	GeneratedText  string     `json:"generated_text,omitempty"`
	FinalAudioPath string     `json:"final_audio_path,omitempty"`
	RetryCount     int        `json:"retry_count"`
	MaxRetries     int        `json:"max_retries"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinalizedAt    *time.Time `json:"finalized_at,omitempty"`
}

type ItemSource struct {
	Title     string `json:"title"`
	Details   string `json:"details"`
	Category  string `json:"category,omitempty"`
	Reference string `json:"reference,omitempty"`
}

func NewContentItem(jobID uuid.UUID, rowIndex int, src ItemSource, maxRetries int, now time.Time) *ContentItem {
	return &ContentItem{
		ID:          uuid.New(),
		JobID:       jobID,
		RowIndex:    rowIndex,
		Status:      ItemPending,
		CurrentStep: string(ItemPending),
		Title:       strings.TrimSpace(src.Title),
		Details:     strings.TrimSpace(src.Details),
		Category:    strings.TrimSpace(src.Category),
		Reference:   strings.TrimSpace(src.Reference),
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the source fields of the row.
func (i *ContentItem) Validate() error {
	if i.Title == "" {
		return invalid("title", "is required")
	}
	if i.Details == "" {
		return invalid("details", "is required")
	}
	return nil
}

func (i *ContentItem) transition(to ItemStatus, now time.Time) error {
	if err := ItemTransitions.Check("content_item", i.Status, to); err != nil {
		return err
	}
	i.Status = to
	i.CurrentStep = string(to)
	i.UpdatedAt = now
	return nil
}

func (i *ContentItem) StartValidation(now time.Time) error {
	if err := i.transition(ItemValidating, now); err != nil {
		return err
	}
	if i.StartedAt == nil {
		i.StartedAt = &now
	}
	return nil
}

func (i *ContentItem) StartTextGeneration(now time.Time) error {
	return i.transition(ItemGeneratingText, now)
}

func (i *ContentItem) SetGeneratedText(text string, now time.Time) error {
	if i.Status != ItemGeneratingText {
		return &TransitionError{Entity: "content_item", From: string(i.Status), To: string(ItemChunking)}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return invalid("generated_text", "is empty")
	}
	i.GeneratedText = text
	i.UpdatedAt = now
	return nil
}

func (i *ContentItem) StartChunking(now time.Time) error {
	return i.transition(ItemChunking, now)
}

func (i *ContentItem) StartAudioGeneration(now time.Time) error {
	return i.transition(ItemGeneratingAudio, now)
}

func (i *ContentItem) StartMerging(now time.Time) error {
	return i.transition(ItemMerging, now)
}

func (i *ContentItem) StartUploading(now time.Time) error {
	return i.transition(ItemUploading, now)
}

func (i *ContentItem) Complete(audioPath string, now time.Time) error {
	if strings.TrimSpace(audioPath) == "" {
		return invalid("final_audio_path", "is required")
	}
	if err := i.transition(ItemCompleted, now); err != nil {
		return err
	}
	i.FinalAudioPath = audioPath
	i.ErrorMessage = ""
	i.FinalizedAt = &now
	return nil
}

// Fail records a failed attempt. The item stays eligible for Retry.
func (i *ContentItem) Fail(reason string, now time.Time) error {
	if err := i.transition(ItemFailed, now); err != nil {
		return err
	}
	i.ErrorMessage = reason
	return nil
}

// FailPermanently moves the item to failed (if not already there) and
// finalizes it. It returns true when this call finalized the item, so
// callers count each item exactly once.
func (i *ContentItem) FailPermanently(reason string, now time.Time) (bool, error) {
	if i.FinalizedAt != nil {
		return false, nil
	}
	if i.Status != ItemFailed {
		if err := i.transition(ItemFailed, now); err != nil {
			return false, err
		}
	}
	if reason != "" {
		i.ErrorMessage = reason
	}
	i.UpdatedAt = now
	i.FinalizedAt = &now
	return true, nil
}

func (i *ContentItem) Skip(reason string, now time.Time) error {
	if err := i.transition(ItemSkipped, now); err != nil {
		return err
	}
	i.ErrorMessage = reason
	i.FinalizedAt = &now
	return nil
}

func (i *ContentItem) CanRetry() bool {
	return i.Status == ItemFailed && i.FinalizedAt == nil && i.RetryCount < i.MaxRetries
}

// Retry re-enters validation from failed.
func (i *ContentItem) Retry(now time.Time) error {
	if !i.CanRetry() {
		return &TransitionError{Entity: "content_item", From: string(i.Status), To: string(ItemValidating)}
	}
	if err := i.transition(ItemValidating, now); err != nil {
		return err
	}
	i.RetryCount++
	i.ErrorMessage = ""
	i.GeneratedText = ""
	return nil
}

// Reset is the manual recovery path: failed -> pending with a clean slate.
func (i *ContentItem) Reset(now time.Time) error {
	if i.Status != ItemFailed {
		return &TransitionError{Entity: "content_item", From: string(i.Status), To: string(ItemPending)}
	}
	i.Status = ItemPending
	i.CurrentStep = string(ItemPending)
	i.RetryCount = 0
	i.ErrorMessage = ""
	i.GeneratedText = ""
	i.FinalAudioPath = ""
	i.StartedAt = nil
	i.FinalizedAt = nil
	i.UpdatedAt = now
	return nil
}

func (i *ContentItem) IsFinalized() bool { return i.FinalizedAt != nil }

// Progress is the position on the happy path in [0,1].
func (i *ContentItem) Progress() float64 {
	if i.Status.IsTerminal() {
		return 1
	}
	idx := i.Status.StepIndex()
	if idx <= 0 {
		return 0
	}
	return float64(idx) / float64(len(ItemSteps)-1)
}
