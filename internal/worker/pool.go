package worker

import (
	"context"
	"time"

	"narration-service/internal/logger"
	"narration-service/internal/service"
)

// ItemProcessor handles one delivery of an item id.
type ItemProcessor interface {
	Process(ctx context.Context, itemID string) error
}

type Pool struct {
	queue      service.Queue
	processor  ItemProcessor
	workers    int
	claimDelay time.Duration
	log        *logger.Logger
}

func NewPool(queue service.Queue, processor ItemProcessor, workers int, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		claimDelay: 5 * time.Second,
		log:        log.With("component", "pool"),
	}
}

// Run claims item ids until ctx is done and waits for in-flight items.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info("worker pool started", "workers", p.workers)

	itemCh := make(chan string)
	done := make(chan struct{}, p.workers)

	// N воркеров
	for i := 0; i < p.workers; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for itemID := range itemCh {
				if err := p.processor.Process(ctx, itemID); err != nil {
					p.log.Warn("process item failed", "worker", n, "item_id", itemID, "error", err)
				}

				// ACK в любом случае: статус item уже в БД, повтор идёт через retry queue.
				// Если процесс упал до этого места, reaper вернёт id обратно.
				if ackErr := p.queue.Ack(context.WithoutCancel(ctx), itemID); ackErr != nil {
					p.log.Error("ack item failed", "worker", n, "item_id", itemID, "error", ackErr)
				}
			}
		}(i + 1)
	}

	defer func() {
		close(itemCh)
		for i := 0; i < p.workers; i++ {
			<-done
		}
		p.log.Info("worker pool stopped")
	}()

	// Listener: atomically claim from queue -> processing
	for {
		select {
		case <-ctx.Done():
			return
		default:
			itemID, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
			if err != nil {
				// timeout/redis.Nil/ctx cancel: не фатально
				continue
			}
			select {
			case itemCh <- itemID:
			case <-ctx.Done():
				return
			}
		}
	}
}
