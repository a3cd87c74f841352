package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/crm-engine/internal/config"
	"github.com/ignite/crm-engine/internal/enrollment"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/segment"
	"github.com/ignite/crm-engine/internal/sequence"
	"github.com/ignite/crm-engine/internal/subscriber"
	"github.com/ignite/crm-engine/internal/worker"
)

// Standalone batch worker: processes pending scheduled and drip batches.
// Run this when the server's in-process worker is disabled.
func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII)

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetimeDuration())

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("database unreachable: %v", err)
	}
	cancel()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to advisory locks",
				"addr", cfg.Redis.Addr, "error", err.Error())
			redisClient = nil
		}
		cancel()
	}

	subscriberStore := subscriber.NewStore(db, cfg.Enrollment.ManualLookupBatch)
	segmentStore := segment.NewStore(db, cfg.Enrollment.DynamicSegmentCap)
	sequenceStore := sequence.NewStore(db)
	enrollmentStore := enrollment.NewStore(db)
	batchStore := enrollment.NewBatchStore(db)

	selector := enrollment.NewSelector(subscriberStore, segmentStore, cfg.Enrollment.AllSourceCap)
	scheduler := enrollment.NewScheduler(enrollmentStore)
	service := enrollment.NewService(selector, scheduler, batchStore, sequenceStore, cfg.Enrollment.ChunkSize)

	processor := worker.NewBatchProcessor(service, batchStore, db, redisClient,
		cfg.Worker.PollInterval(), cfg.Worker.ClaimTTL())
	if err := processor.Start(); err != nil {
		log.Fatalf("starting batch processor: %v", err)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	sig := <-done
	logger.Info("shutting down", "signal", sig.String())

	processor.Stop()
}
