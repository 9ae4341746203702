package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"recap/internal/config"
	"recap/internal/pkg/logger"
	"recap/internal/pkg/shutdown"
	"recap/internal/queue"
	"recap/internal/render"
	"recap/internal/signing"
	"recap/internal/storage"
	"recap/internal/store"
	"recap/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "recap-worker",
	})
	log.Info("starting recap worker", "concurrency", cfg.WorkerConcurrency)

	ctx, cancel := context.WithCancel(context.Background())
	shutdownMgr := shutdown.NewManager(log, 60*time.Second)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)
	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	signer := signing.New(cfg.SignedURLSecret, cfg.SignedURLBase, cfg.SignedURLTTL)
	sp, err := storage.NewProvider(cfg, signer)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	if err := os.MkdirAll(cfg.RenderScratch, 0o755); err != nil {
		log.LogFatal("failed to create scratch directory", err)
	}

	q := queue.NewRedisQueue(rdb, queue.Config{
		Name:          cfg.QueueName,
		MaxAttempts:   cfg.QueueMaxAttempts,
		BackoffBase:   cfg.QueueBackoffBase,
		Visibility:    cfg.QueueVisibility,
		DeadRetention: cfg.QueueDeadRetention,
	}, log)
	go q.RunHousekeeper(ctx, 15*time.Second)

	proc := worker.NewProcessor(worker.ProcessorDeps{
		Jobs:          store.NewPGJobStore(pool),
		Engine:        render.NewHTTPEngine(cfg.RendererBaseURL),
		Storage:       sp,
		Log:           log,
		ScratchDir:    cfg.RenderScratch,
		RenderTimeout: cfg.RenderTimeout,
	})
	workers := worker.NewPool(q, proc, cfg.WorkerConcurrency, log)

	done := make(chan struct{})
	go func() {
		workers.Run(ctx)
		close(done)
	}()

	// Stop consuming and let in-flight renders finish before the
	// connection pools go away.
	shutdownMgr.Register("worker-pool", func(ctx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	shutdownMgr.Wait()
	log.Info("worker stopped")
}
