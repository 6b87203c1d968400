package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"narration-service/internal/entity"
	"narration-service/internal/logger"
	"narration-service/internal/service"
)

type RetryTarget interface {
	RetryItem(ctx context.Context, itemID uuid.UUID) error
	RequeuePending(ctx context.Context, jobID uuid.UUID) (int, error)
}

type RetryMarker interface {
	MarkRetried(ctx context.Context, errLogID uuid.UUID) error
}

// RetryPoller re-invokes entities whose backoff has elapsed.
type RetryPoller struct {
	retries  service.RetryQueue
	target   RetryTarget
	marker   RetryMarker
	interval time.Duration
	batch    int64
	log      *logger.Logger
	now      func() time.Time
}

func NewRetryPoller(retries service.RetryQueue, target RetryTarget, marker RetryMarker, interval time.Duration, log *logger.Logger) *RetryPoller {
	if interval <= 0 {
		interval = time.Second
	}
	return &RetryPoller{
		retries:  retries,
		target:   target,
		marker:   marker,
		interval: interval,
		batch:    100,
		log:      log.With("component", "retry_poller"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *RetryPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
				p.log.Error("poll retries", "error", err)
			}
		}
	}
}

// PollOnce drains the descriptors that are due and returns how many were
// re-invoked.
func (p *RetryPoller) PollOnce(ctx context.Context) (int, error) {
	due, err := p.retries.Due(ctx, p.now(), p.batch)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, d := range due {
		var rerr error
		switch d.Scope {
		case service.ScopeItem:
			rerr = p.target.RetryItem(ctx, d.EntityID)
		case service.ScopeJob:
			_, rerr = p.target.RequeuePending(ctx, d.EntityID)
		default:
			p.log.Warn("retry scope not supported", "scope", string(d.Scope), "entity_id", d.EntityID.String())
			continue
		}

		if rerr != nil {
			switch {
			case errors.Is(rerr, service.ErrJobNotActive):
				p.log.Info("retry dropped, job not active", "scope", string(d.Scope), "entity_id", d.EntityID.String())
			case errors.Is(rerr, entity.ErrInvalidTransition):
				// already claimed through a resume or job requeue
				p.log.Info("retry dropped, item not retryable", "scope", string(d.Scope), "entity_id", d.EntityID.String())
			default:
				p.log.Error("retry failed", "scope", string(d.Scope), "entity_id", d.EntityID.String(), "error", rerr)
			}
			continue
		}
		if err := p.marker.MarkRetried(ctx, d.ErrorLogID); err != nil {
			p.log.Warn("mark error log retried", "error_log_id", d.ErrorLogID.String(), "error", err)
		}
		n++
	}
	if n > 0 {
		p.log.Info("retries dispatched", "count", n)
	}
	return n, nil
}
