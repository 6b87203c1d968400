package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/event"
	"narration-service/internal/logger"
)

type Scope string

const (
	ScopeJob    Scope = "job"
	ScopeItem   Scope = "item"
	ScopeChunk  Scope = "chunk"
	ScopeSystem Scope = "system"
)

const (
	DefaultRetryBaseDelay = time.Second
	DefaultRetryMaxDelay  = 5 * time.Minute
)

// ErrorContext describes one failure surfaced through the pipeline.
type ErrorContext struct {
	Scope      Scope
	EntityID   uuid.UUID
	JobID      uuid.UUID
	ItemID     uuid.UUID
	ChunkID    uuid.UUID
	Step       string
	Code       entity.ErrorCode
	Err        error
	Severity   entity.Severity
	Retryable  bool
	RetryCount int
	MaxRetries int
	Metadata   map[string]any
}

type RecoveryResult struct {
	RetryScheduled bool
	NextRetryAt    time.Time
	ErrorLogID     uuid.UUID
}

// ItemFailer finalizes an item as permanently failed (Orchestrator).
type ItemFailer interface {
	FailItem(ctx context.Context, itemID uuid.UUID, step, reason string) error
}

// JobRecovery is the job-level side of recovery (Orchestrator). All of it
// runs under the orchestrator's per-job lock.
type JobRecovery interface {
	FailJob(ctx context.Context, jobID uuid.UUID, reason string) error
	ResetJob(ctx context.Context, jobID uuid.UUID) error
	ResetItem(ctx context.Context, itemID uuid.UUID) error
}

type ErrorCoordinatorDeps struct {
	ErrorLogs ErrorLogRepository
	Retries   RetryQueue
	Events    event.Publisher
	ItemFail  ItemFailer
	JobRec    JobRecovery
	Log       *logger.Logger
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Now       func() time.Time
}

// ErrorCoordinator decides retry vs. give up for every failure that
// reaches it and leaves an ErrorLog either way.
type ErrorCoordinator struct {
	errorLogs ErrorLogRepository
	retries   RetryQueue
	events    event.Publisher
	itemFail  ItemFailer
	jobRec    JobRecovery
	log       *logger.Logger
	baseDelay time.Duration
	maxDelay  time.Duration
	now       func() time.Time
}

func NewErrorCoordinator(d ErrorCoordinatorDeps) *ErrorCoordinator {
	if d.BaseDelay <= 0 {
		d.BaseDelay = DefaultRetryBaseDelay
	}
	if d.MaxDelay <= 0 {
		d.MaxDelay = DefaultRetryMaxDelay
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &ErrorCoordinator{
		errorLogs: d.ErrorLogs,
		retries:   d.Retries,
		events:    d.Events,
		itemFail:  d.ItemFail,
		jobRec:    d.JobRec,
		log:       d.Log.With("component", "error_coordinator"),
		baseDelay: d.BaseDelay,
		maxDelay:  d.MaxDelay,
		now:       d.Now,
	}
}

// BackoffDelay is min(base * 2^retryCount, max).
func BackoffDelay(retryCount int, base, max time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := float64(base) * math.Pow(2, float64(retryCount))
	if d >= float64(max) {
		return max
	}
	return time.Duration(d)
}

func (c *ErrorCoordinator) Delay(retryCount int) time.Duration {
	return BackoffDelay(retryCount, c.baseDelay, c.maxDelay)
}

// ShouldRetry: retryable, not critical and attempts left.
func ShouldRetry(ec ErrorContext) bool {
	return ec.Retryable && ec.Severity != entity.SeverityCritical && ec.RetryCount < ec.MaxRetries
}

func (c *ErrorCoordinator) HandleError(ctx context.Context, ec ErrorContext) (RecoveryResult, error) {
	if ec.Code == "" {
		cl := Classify(ec.Step, ec.Err)
		ec.Code = cl.Code
		if ec.Severity == "" {
			ec.Severity = cl.Severity
		}
	}
	if ec.Severity == "" {
		ec.Severity = entity.DeriveSeverity(ec.Step, ec.Code)
	}

	msg := "unknown error"
	if ec.Err != nil {
		msg = ec.Err.Error()
	}
	retry := ShouldRetry(ec)

	errLog := c.newErrorLog(ec, msg)
	if err := c.errorLogs.Save(ctx, errLog); err != nil {
		// лог ошибки не должен блокировать восстановление
		c.log.Error("save error log", "error_log_id", errLog.ID.String(), "error", err)
	}

	c.events.Publish(ctx, event.ErrorOccurred{
		Scope:      string(ec.Scope),
		EntityID:   ec.EntityID,
		ErrorLogID: errLog.ID,
		Step:       ec.Step,
		Code:       string(ec.Code),
		Error:      msg,
		Severity:   string(ec.Severity),
		Retryable:  ec.Retryable,
		RetryCount: ec.RetryCount,
	})

	if retry {
		return c.scheduleRetry(ctx, ec, errLog.ID)
	}

	c.log.Warn("permanent failure",
		"scope", string(ec.Scope),
		"entity_id", ec.EntityID.String(),
		"step", ec.Step,
		"code", string(ec.Code),
		"severity", string(ec.Severity),
		"retry_count", ec.RetryCount,
		"error", msg,
	)

	res := RecoveryResult{ErrorLogID: errLog.ID}
	switch ec.Scope {
	case ScopeJob:
		if err := c.jobRec.FailJob(ctx, ec.EntityID, msg); err != nil {
			return res, fmt.Errorf("fail job %s: %w", ec.EntityID, err)
		}
	case ScopeItem:
		if err := c.itemFail.FailItem(ctx, ec.EntityID, ec.Step, msg); err != nil {
			return res, fmt.Errorf("fail item %s: %w", ec.EntityID, err)
		}
	case ScopeChunk:
		// chunk outcomes are aggregated by the ChunkCoordinator
	case ScopeSystem:
		c.log.Error("system failure", "error", msg, "metadata", ec.Metadata)
	}
	return res, nil
}

func (c *ErrorCoordinator) scheduleRetry(ctx context.Context, ec ErrorContext, errLogID uuid.UUID) (RecoveryResult, error) {
	delay := c.Delay(ec.RetryCount)
	next := c.now().Add(delay)
	d := RetryDescriptor{
		EntityID:     ec.EntityID,
		Scope:        ec.Scope,
		RetryCount:   ec.RetryCount + 1,
		ScheduledFor: next,
		ErrorLogID:   errLogID,
	}
	if err := c.retries.Schedule(ctx, d); err != nil {
		return RecoveryResult{ErrorLogID: errLogID}, fmt.Errorf("schedule retry: %w", err)
	}

	c.events.Publish(ctx, event.ErrorRetryScheduled{
		Scope:        string(ec.Scope),
		EntityID:     ec.EntityID,
		RetryCount:   d.RetryCount,
		DelayMs:      delay.Milliseconds(),
		ScheduledFor: next,
	})
	c.log.Info("retry scheduled",
		"scope", string(ec.Scope),
		"entity_id", ec.EntityID.String(),
		"retry_count", d.RetryCount,
		"delay_ms", delay.Milliseconds(),
	)
	return RecoveryResult{RetryScheduled: true, NextRetryAt: next, ErrorLogID: errLogID}, nil
}

func (c *ErrorCoordinator) newErrorLog(ec ErrorContext, msg string) *entity.ErrorLog {
	l := entity.NewErrorLog(ec.Step, ec.Code, msg, ec.Retryable, c.now())
	l.Metadata = ec.Metadata
	if ec.JobID != uuid.Nil {
		id := ec.JobID
		l.JobID = &id
	}
	if ec.ItemID != uuid.Nil {
		id := ec.ItemID
		l.ItemID = &id
	}
	if ec.ChunkID != uuid.Nil {
		id := ec.ChunkID
		l.ChunkID = &id
	}
	switch ec.Scope {
	case ScopeJob:
		if l.JobID == nil {
			id := ec.EntityID
			l.JobID = &id
		}
	case ScopeItem:
		if l.ItemID == nil {
			id := ec.EntityID
			l.ItemID = &id
		}
	case ScopeChunk:
		if l.ChunkID == nil {
			id := ec.EntityID
			l.ChunkID = &id
		}
	}
	return l
}

// MarkRetried stamps the error log that caused a retry once it runs.
func (c *ErrorCoordinator) MarkRetried(ctx context.Context, errLogID uuid.UUID) error {
	if errLogID == uuid.Nil {
		return nil
	}
	l, err := c.errorLogs.FindByID(ctx, errLogID)
	if err != nil {
		return err
	}
	if err := l.MarkAsRetried(c.now()); err != nil {
		if errors.Is(err, entity.ErrAlreadyRetried) {
			return nil
		}
		return err
	}
	return c.errorLogs.Save(ctx, l)
}

// ResetEntity is the manual recovery path: a failed job goes back to
// paused, a failed item back to pending with its retry budget restored.
func (c *ErrorCoordinator) ResetEntity(ctx context.Context, scope Scope, id uuid.UUID) error {
	var err error
	switch scope {
	case ScopeJob:
		err = c.jobRec.ResetJob(ctx, id)
	case ScopeItem:
		err = c.jobRec.ResetItem(ctx, id)
	default:
		err = fmt.Errorf("reset %s: unsupported scope", scope)
	}
	if err != nil {
		return err
	}
	c.log.Info("entity reset", "scope", string(scope), "entity_id", id.String())
	return nil
}
