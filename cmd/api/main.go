package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"recap/internal/config"
	"recap/internal/httpapi"
	"recap/internal/httpapi/handlers"
	"recap/internal/pkg/logger"
	"recap/internal/pkg/shutdown"
	"recap/internal/queue"
	"recap/internal/signing"
	"recap/internal/storage"
	"recap/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "recap-api",
	})
	log.Info("starting recap API")

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)
	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}

	log.Info("connecting to Redis")
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
	log.Info("storage provider initialized", "provider", sp.Provider())

	q := queue.NewRedisQueue(rdb, queue.Config{
		Name:          cfg.QueueName,
		MaxAttempts:   cfg.QueueMaxAttempts,
		BackoffBase:   cfg.QueueBackoffBase,
		Visibility:    cfg.QueueVisibility,
		DeadRetention: cfg.QueueDeadRetention,
	}, log)

	router := httpapi.NewRouter(handlers.Deps{
		Jobs:     store.NewPGJobStore(pool),
		Datasets: store.NewPGDatasetStore(pool),
		Orgs:     store.NewPGOrganizationStore(pool),
		Queue:    q,
		Storage:  sp,
		Signer:   signer,
		Log:      log,
		Pool:     pool,
		RDB:      rdb,
	}, log, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}
