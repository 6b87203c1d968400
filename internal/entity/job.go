package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobDraft      JobStatus = "draft"
	JobValidating JobStatus = "validating"
	JobReady      JobStatus = "ready"
	JobProcessing JobStatus = "processing"
	JobPaused     JobStatus = "paused"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// failed -> paused is the manual recovery path, everything else is the
// regular lifecycle.
var JobTransitions = Transitions[JobStatus]{
	JobDraft:      {JobValidating, JobReady, JobProcessing, JobCancelled},
	JobValidating: {JobReady, JobFailed, JobCancelled},
	JobReady:      {JobProcessing, JobCancelled},
	JobProcessing: {JobPaused, JobCompleted, JobFailed, JobCancelled},
	JobPaused:     {JobProcessing, JobCompleted, JobFailed, JobCancelled},
	JobFailed:     {JobPaused},
}

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

const (
	PriorityLow    = 0
	PriorityNormal = 1
	PriorityHigh   = 2
)

const (
	DefaultChunkSize  = 1000
	DefaultMaxRetries = 3
)

type JobConfig struct {
	VoiceID    string `json:"voice_id"`
	Prompt     string `json:"prompt"`
	ChunkSize  int    `json:"chunk_size"`
	MaxRetries int    `json:"max_retries"`
	Priority   int    `json:"priority"`
}

// Normalize fills defaults; priority outside 0..2 becomes normal.
func (c JobConfig) Normalize() JobConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Priority < PriorityLow || c.Priority > PriorityHigh {
		c.Priority = PriorityNormal
	}
	c.VoiceID = strings.TrimSpace(c.VoiceID)
	return c
}

type Job struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Status         JobStatus  `json:"status"`
	TotalItems     int        `json:"total_items"`
	CompletedItems int        `json:"completed_items"`
	FailedItems    int        `json:"failed_items"`
	Config         JobConfig  `json:"config"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func NewJob(name string, cfg JobConfig, now time.Time) (*Job, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	return &Job{
		ID:        uuid.New(),
		Name:      name,
		Status:    JobDraft,
		Config:    cfg.Normalize(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (j *Job) transition(to JobStatus, now time.Time) error {
	if err := JobTransitions.Check("job", j.Status, to); err != nil {
		return err
	}
	j.Status = to
	j.UpdatedAt = now
	return nil
}

// CanModify is true while the job is not terminal.
func (j *Job) CanModify() bool { return !j.Status.IsTerminal() }

// AcceptsResults is true while item outcomes may still be counted.
func (j *Job) AcceptsResults() bool {
	return j.Status == JobProcessing || j.Status == JobPaused
}

func (j *Job) SetTotalItems(n int, now time.Time) error {
	if !j.CanModify() {
		return ErrJobNotModifiable
	}
	if n < 0 || n < j.CompletedItems+j.FailedItems {
		return ErrCounterOverflow
	}
	j.TotalItems = n
	j.UpdatedAt = now
	return nil
}

func (j *Job) UpdateConfig(cfg JobConfig, now time.Time) error {
	if !j.CanModify() {
		return ErrJobNotModifiable
	}
	j.Config = cfg.Normalize()
	j.UpdatedAt = now
	return nil
}

func (j *Job) StartValidation(now time.Time) error { return j.transition(JobValidating, now) }

func (j *Job) MarkReady(now time.Time) error { return j.transition(JobReady, now) }

func (j *Job) Start(now time.Time) error {
	if j.TotalItems <= 0 {
		return invalid("total_items", "must be greater than zero to start")
	}
	if j.Status != JobDraft && j.Status != JobReady {
		return &TransitionError{Entity: "job", From: string(j.Status), To: string(JobProcessing)}
	}
	if err := j.transition(JobProcessing, now); err != nil {
		return err
	}
	j.StartedAt = &now
	return nil
}

func (j *Job) Pause(now time.Time) error {
	if j.Status != JobProcessing {
		return &TransitionError{Entity: "job", From: string(j.Status), To: string(JobPaused)}
	}
	return j.transition(JobPaused, now)
}

func (j *Job) Resume(now time.Time) error {
	if j.Status != JobPaused {
		return &TransitionError{Entity: "job", From: string(j.Status), To: string(JobProcessing)}
	}
	return j.transition(JobProcessing, now)
}

func (j *Job) Cancel(now time.Time) error {
	if err := j.transition(JobCancelled, now); err != nil {
		return err
	}
	j.CompletedAt = &now
	return nil
}

func (j *Job) Complete(now time.Time) error {
	if err := j.transition(JobCompleted, now); err != nil {
		return err
	}
	j.CompletedAt = &now
	return nil
}

func (j *Job) Fail(reason string, now time.Time) error {
	if err := j.transition(JobFailed, now); err != nil {
		return err
	}
	j.ErrorMessage = reason
	j.CompletedAt = &now
	return nil
}

// ResetToPaused moves a failed job back to paused for manual recovery.
func (j *Job) ResetToPaused(now time.Time) error {
	if j.Status != JobFailed {
		return &TransitionError{Entity: "job", From: string(j.Status), To: string(JobPaused)}
	}
	if err := j.transition(JobPaused, now); err != nil {
		return err
	}
	j.ErrorMessage = ""
	j.CompletedAt = nil
	return nil
}

// IncrementCompleted counts one finished item and settles the job when all
// items are accounted for. It returns true if the job became terminal.
func (j *Job) IncrementCompleted(now time.Time) (bool, error) {
	if err := j.checkIncrement(); err != nil {
		return false, err
	}
	j.CompletedItems++
	j.UpdatedAt = now
	return j.settle(now)
}

func (j *Job) IncrementFailed(now time.Time) (bool, error) {
	if err := j.checkIncrement(); err != nil {
		return false, err
	}
	j.FailedItems++
	j.UpdatedAt = now
	return j.settle(now)
}

// RevertFailed undoes one failed count after an item was reset.
func (j *Job) RevertFailed(now time.Time) error {
	if !j.CanModify() {
		return ErrJobNotModifiable
	}
	if j.FailedItems > 0 {
		j.FailedItems--
		j.UpdatedAt = now
	}
	return nil
}

// RecountItems replaces both counters, e.g. after a manual reset when the
// persisted items are the source of truth.
func (j *Job) RecountItems(completed, failed int, now time.Time) error {
	if !j.CanModify() {
		return ErrJobNotModifiable
	}
	if completed < 0 || failed < 0 || completed+failed > j.TotalItems {
		return ErrCounterOverflow
	}
	j.CompletedItems = completed
	j.FailedItems = failed
	j.UpdatedAt = now
	return nil
}

func (j *Job) checkIncrement() error {
	if !j.AcceptsResults() {
		return ErrJobNotModifiable
	}
	if j.CompletedItems+j.FailedItems >= j.TotalItems {
		return ErrCounterOverflow
	}
	return nil
}

// settle is shared by both increment paths: all items failed => failed,
// any completed item => completed.
func (j *Job) settle(now time.Time) (bool, error) {
	if j.ProcessedItems() < j.TotalItems {
		return false, nil
	}
	if j.CompletedItems == 0 {
		return true, j.Fail("all items failed", now)
	}
	return true, j.Complete(now)
}

func (j *Job) ProcessedItems() int { return j.CompletedItems + j.FailedItems }

// Progress returns processed/total in [0,1].
func (j *Job) Progress() float64 {
	if j.TotalItems <= 0 {
		return 0
	}
	return float64(j.ProcessedItems()) / float64(j.TotalItems)
}
