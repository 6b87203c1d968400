package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkProcessing ChunkStatus = "processing"
	ChunkCompleted  ChunkStatus = "completed"
	ChunkFailed     ChunkStatus = "failed"
)

var ChunkTransitions = Transitions[ChunkStatus]{
	ChunkPending:    {ChunkProcessing},
	ChunkProcessing: {ChunkCompleted, ChunkFailed},
	ChunkFailed:     {ChunkProcessing, ChunkPending},
}

type AudioChunk struct {
	ID          uuid.UUID   `json:"id"`
	ItemID      uuid.UUID   `json:"item_id"`
	TextChunkID string      `json:"text_chunk_id"`
	Index       int         `json:"index"`
	Text        string      `json:"text"`
	Status      ChunkStatus `json:"status"`
	AudioPath   string      `json:"audio_path,omitempty"`
	Duration    float64     `json:"duration"`
	FileSize    int64       `json:"file_size"`
	VoiceID     string      `json:"voice_id"`
	RetryCount  int         `json:"retry_count"`
	LastError   string      `json:"last_error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

func NewAudioChunk(itemID uuid.UUID, index int, textChunkID, text, voiceID string, now time.Time) *AudioChunk {
	return &AudioChunk{
		ID:          uuid.New(),
		ItemID:      itemID,
		TextChunkID: textChunkID,
		Index:       index,
		Text:        text,
		Status:      ChunkPending,
		VoiceID:     voiceID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (c *AudioChunk) transition(to ChunkStatus, now time.Time) error {
	if err := ChunkTransitions.Check("audio_chunk", c.Status, to); err != nil {
		return err
	}
	c.Status = to
	c.UpdatedAt = now
	return nil
}

func (c *AudioChunk) StartProcessing(now time.Time) error {
	if c.Status == ChunkFailed {
		c.RetryCount++
	}
	return c.transition(ChunkProcessing, now)
}

func (c *AudioChunk) Complete(audioPath string, duration float64, size int64, now time.Time) error {
	if strings.TrimSpace(audioPath) == "" {
		return invalid("audio_path", "is required")
	}
	if duration < 0 {
		return invalid("duration", "must not be negative")
	}
	if size < 0 {
		return invalid("file_size", "must not be negative")
	}
	if err := c.transition(ChunkCompleted, now); err != nil {
		return err
	}
	c.AudioPath = audioPath
	c.Duration = duration
	c.FileSize = size
	c.LastError = ""
	c.CompletedAt = &now
	return nil
}

func (c *AudioChunk) Fail(reason string, now time.Time) error {
	if err := c.transition(ChunkFailed, now); err != nil {
		return err
	}
	c.LastError = reason
	return nil
}

// Reset returns a failed chunk to pending.
func (c *AudioChunk) Reset(now time.Time) error {
	if c.Status != ChunkFailed {
		return &TransitionError{Entity: "audio_chunk", From: string(c.Status), To: string(ChunkPending)}
	}
	if err := c.transition(ChunkPending, now); err != nil {
		return err
	}
	c.AudioPath = ""
	c.Duration = 0
	c.FileSize = 0
	c.CompletedAt = nil
	return nil
}

// Progress maps a chunk status onto [0,1].
func (c *AudioChunk) Progress() float64 {
	switch c.Status {
	case ChunkCompleted, ChunkFailed:
		return 1
	case ChunkProcessing:
		return 0.5
	default:
		return 0
	}
}
