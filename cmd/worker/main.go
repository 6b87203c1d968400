// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"narration-service/internal/config"
	"narration-service/internal/event"
	"narration-service/internal/logger"
	"narration-service/internal/provider"
	"narration-service/internal/repository/postgresql"
	"narration-service/internal/service"
	httptransport "narration-service/internal/transport/http"
	"narration-service/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		// логгера ещё нет
		panic(err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("config loaded", "config", cfg.Redacted())

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("worker stopped with error", "error", err)
	}
	log.Info("worker stopped")
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	// Postgres
	pool, err := postgresql.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := postgresql.Migrate(ctx, pool); err != nil {
		return err
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	// DI
	jobs := postgresql.NewJobRepository(pool)
	items := postgresql.NewContentItemRepository(pool)
	chunks := postgresql.NewAudioChunkRepository(pool)
	errLogs := postgresql.NewErrorLogRepository(pool)

	bus := event.NewBus(log)
	event.NewRedisForwarder(rdb, cfg.EventsChannel, log).Attach(bus)

	low, normal, high := service.LanesFor(cfg.QueueKey, cfg.ProcessingKey)
	queue := service.NewRedisPriorityQueue(rdb, cfg.ProcessingMapKey, low, normal, high)
	retries := service.NewRedisRetryQueue(rdb, cfg.RetryKey)

	orch := service.NewOrchestrator(service.OrchestratorDeps{
		Jobs:      jobs,
		Items:     items,
		Chunks:    chunks,
		ErrorLogs: errLogs,
		Queue:     queue,
		Events:    bus,
		Log:       log,
	})
	errs := service.NewErrorCoordinator(service.ErrorCoordinatorDeps{
		ErrorLogs: errLogs,
		Retries:   retries,
		Events:    bus,
		ItemFail:  orch,
		JobRec:    orch,
		Log:       log,
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
	})
	chunkCoord := service.NewChunkCoordinator(items, errs, log)
	chunkCoord.Attach(bus)
	progress := service.NewProgressTracker(jobs, items, chunks, log)
	progress.Attach(bus)

	uploader, closeUploader, err := newUploader(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeUploader()

	oa := provider.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		TextModel:   cfg.TextModel,
		SpeechModel: cfg.SpeechModel,
		Voice:       cfg.DefaultVoice,
	}
	processor := worker.NewProcessor(worker.ProcessorDeps{
		Pipeline:     orch,
		Errors:       errs,
		Tracker:      chunkCoord,
		Chunks:       chunks,
		Events:       bus,
		Text:         provider.NewOpenAITextGenerator(oa),
		Chunker:      provider.SentenceChunker{},
		Speech:       provider.NewOpenAISynthesizer(oa),
		Store:        provider.LocalAudioStore{Dir: cfg.AudioDir},
		Uploader:     uploader,
		Log:          log,
		Concurrency:  cfg.ChunkConcurrency,
		DefaultVoice: cfg.DefaultVoice,
	})
	chunkCoord.SetMerger(processor)

	workers := worker.NewPool(queue, processor, cfg.Workers, log)
	poller := worker.NewRetryPoller(retries, orch, errs, cfg.RetryPollInterval, log)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httptransport.Routes(httptransport.NewHandler(httptransport.HandlerDeps{
			Orchestrator: orch,
			Errors:       errs,
			Progress:     progress,
			Chunks:       chunkCoord,
			Log:          log,
		})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info("worker started", "workers", cfg.Workers)
		workers.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// Reaper: периодически возвращает items из processing обратно в queue
		// (если воркер падал/перезапускался)
		worker.RunReaper(gctx, queue, cfg.ReaperInterval, log)
		return nil
	})
	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})
	g.Go(func() error {
		progress.RunCleanup(gctx, cfg.ProgressMaxAge/2, cfg.ProgressMaxAge)
		return nil
	})

	return g.Wait()
}

// newUploader picks GCS when a bucket is configured, else a local directory.
func newUploader(ctx context.Context, cfg config.Config) (worker.Uploader, func(), error) {
	if cfg.GCSBucket == "" {
		return provider.FileUploader{Dir: cfg.OutputDir}, func() {}, nil
	}
	u, err := provider.NewGCSUploader(ctx, provider.GCSConfig{
		Bucket:       cfg.GCSBucket,
		Prefix:       cfg.GCSPrefix,
		EmulatorHost: cfg.GCSEmulatorHost,
	})
	if err != nil {
		return nil, nil, err
	}
	return u, func() { _ = u.Close() }, nil
}
