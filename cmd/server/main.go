package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/crm-engine/internal/api"
	"github.com/ignite/crm-engine/internal/config"
	"github.com/ignite/crm-engine/internal/enrollment"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/segment"
	"github.com/ignite/crm-engine/internal/sequence"
	"github.com/ignite/crm-engine/internal/subscriber"
	"github.com/ignite/crm-engine/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use,
// so a stale process does not silently shadow this one.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

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
		log.Fatalf("database unreachable at %s: %v", extractHost(cfg.Database.URL), err)
	}
	cancel()
	logger.Info("database connected", "host", extractHost(cfg.Database.URL))

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without it",
				"addr", cfg.Redis.Addr, "error", err.Error())
			redisClient = nil
		}
		cancel()
	}

	// Wire the stores and services.
	subscriberStore := subscriber.NewStore(db, cfg.Enrollment.ManualLookupBatch)
	segmentStore := segment.NewStore(db, cfg.Enrollment.DynamicSegmentCap)
	sequenceStore := sequence.NewStore(db)
	enrollmentStore := enrollment.NewStore(db)
	batchStore := enrollment.NewBatchStore(db)

	selector := enrollment.NewSelector(subscriberStore, segmentStore, cfg.Enrollment.AllSourceCap)
	scheduler := enrollment.NewScheduler(enrollmentStore)
	service := enrollment.NewService(selector, scheduler, batchStore, sequenceStore, cfg.Enrollment.ChunkSize)

	lifecycle := sequence.NewLifecycle(sequenceStore)
	linter := sequence.NewLinter(time.Duration(cfg.Enrollment.MaxStepDelayDays) * 24 * time.Hour)

	handlers := api.NewHandlers(service, segmentStore, sequenceStore, lifecycle, linter)
	server := api.NewServer(handlers)

	// Optional in-process worker for deferred batches.
	var processor *worker.BatchProcessor
	if cfg.Worker.Enabled {
		processor = worker.NewBatchProcessor(service, batchStore, db, redisClient,
			cfg.Worker.PollInterval(), cfg.Worker.ClaimTTL())
		if err := processor.Start(); err != nil {
			log.Fatalf("starting batch processor: %v", err)
		}
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("%v", err)
	}
	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("server error: %v", err)
	case sig := <-done:
		logger.Info("shutting down", "signal", sig.String())
	}

	if processor != nil {
		processor.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err.Error())
	}
}
