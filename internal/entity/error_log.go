package entity

import (
	"time"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	CodeValidation          ErrorCode = "validation"
	CodeInvalidTransition   ErrorCode = "invalid_transition"
	CodeTimeout             ErrorCode = "timeout"
	CodeNetwork             ErrorCode = "network"
	CodeRateLimit           ErrorCode = "rate_limit"
	CodeAuth                ErrorCode = "auth"
	CodeServiceUnavailable  ErrorCode = "service_unavailable"
	CodeMergeFailed         ErrorCode = "merge_failed"
	CodeUploadFailed        ErrorCode = "upload_failed"
	CodeChunkMajorityFailed ErrorCode = "chunk_majority_failed"
	CodeCancelled           ErrorCode = "cancelled"
	CodeUnknown             ErrorCode = "unknown"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DeriveSeverity classifies a failure from the pipeline step and error code.
// Critical codes win over the step.
func DeriveSeverity(step string, code ErrorCode) Severity {
	switch code {
	case CodeAuth, CodeRateLimit:
		return SeverityCritical
	}
	switch ItemStatus(step) {
	case ItemMerging, ItemUploading:
		return SeverityHigh
	}
	switch code {
	case CodeMergeFailed, CodeUploadFailed, CodeChunkMajorityFailed:
		return SeverityHigh
	case CodeTimeout, CodeNetwork, CodeServiceUnavailable:
		return SeverityMedium
	}
	return SeverityLow
}

// ErrorLog is written once per failure; only MarkAsRetried mutates it.
type ErrorLog struct {
	ID        uuid.UUID      `json:"id"`
	JobID     *uuid.UUID     `json:"job_id,omitempty"`
	ItemID    *uuid.UUID     `json:"item_id,omitempty"`
	ChunkID   *uuid.UUID     `json:"chunk_id,omitempty"`
	Step      string         `json:"step"`
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	RetriedAt *time.Time     `json:"retried_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewErrorLog(step string, code ErrorCode, message string, retryable bool, now time.Time) *ErrorLog {
	return &ErrorLog{
		ID:        uuid.New(),
		Step:      step,
		Code:      code,
		Message:   message,
		Retryable: retryable,
		CreatedAt: now,
	}
}

func (l *ErrorLog) Severity() Severity { return DeriveSeverity(l.Step, l.Code) }

func (l *ErrorLog) MarkAsRetried(now time.Time) error {
	if l.RetriedAt != nil {
		return ErrAlreadyRetried
	}
	l.RetriedAt = &now
	return nil
}
