package worker

import (
	"context"
	"time"

	"narration-service/internal/logger"
	"narration-service/internal/service"
)

// RunReaper periodically returns ids left in processing lists to their
// queues (worker crashed or restarted mid-item).
func RunReaper(ctx context.Context, queue service.Queue, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log = log.With("component", "reaper")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := queue.RequeueStale(ctx, 100)
			if err != nil {
				log.Error("requeue stale", "error", err)
				continue
			}
			if n > 0 {
				log.Info("requeued items from processing", "count", n)
			}
		}
	}
}
