package worker

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/crm-engine/internal/enrollment"
	"github.com/ignite/crm-engine/internal/pkg/distlock"
	"github.com/ignite/crm-engine/internal/pkg/logger"
)

// BatchProcessor polls for pending deferred batches (scheduled batches
// whose time has come, drip batches with daily budget left) and processes
// them. A distributed lock per batch keeps multiple worker instances from
// double-processing.
type BatchProcessor struct {
	service *enrollment.Service
	batches *enrollment.BatchStore
	limiter *DripLimiter

	db    *sql.DB
	redis *redis.Client

	pollInterval time.Duration
	claimTTL     time.Duration
	listLimit    int

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewBatchProcessor(
	service *enrollment.Service,
	batches *enrollment.BatchStore,
	db *sql.DB,
	redisClient *redis.Client,
	pollInterval, claimTTL time.Duration,
) *BatchProcessor {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	if claimTTL <= 0 {
		claimTTL = 5 * time.Minute
	}
	return &BatchProcessor{
		service:      service,
		batches:      batches,
		limiter:      NewDripLimiter(redisClient),
		db:           db,
		redis:        redisClient,
		pollInterval: pollInterval,
		claimTTL:     claimTTL,
		listLimit:    20,
	}
}

// Start launches the poll loop.
func (p *BatchProcessor) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("batch processor already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	logger.Info("batch processor starting", "poll_interval", p.pollInterval.String())

	p.wg.Add(1)
	go p.run()
	return nil
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (p *BatchProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	logger.Info("batch processor stopped")
}

func (p *BatchProcessor) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.processDue(p.ctx); err != nil {
				logger.Error("batch poll failed", "error", err.Error())
			}
		}
	}
}

// processDue handles one poll pass. Errors on individual batches are
// logged and do not stop the pass.
func (p *BatchProcessor) processDue(ctx context.Context) error {
	due, err := p.batches.ListDue(ctx, time.Now(), p.listLimit)
	if err != nil {
		return err
	}

	for _, batch := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := p.processOne(ctx, batch); err != nil {
			logger.Error("batch processing failed",
				"batch_id", batch.ID.String(),
				"schedule", string(batch.Schedule),
				"error", err.Error())
		}
	}
	return nil
}

func (p *BatchProcessor) processOne(ctx context.Context, batch *enrollment.Batch) error {
	lock := distlock.NewLock(p.redis, p.db, "batch:"+batch.ID.String(), p.claimTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring batch lock: %w", err)
	}
	if !acquired {
		// Another worker instance holds it.
		return nil
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("releasing batch lock failed",
				"batch_id", batch.ID.String(), "error", err.Error())
		}
	}()

	if batch.Schedule == enrollment.ScheduleDrip {
		return p.processDrip(ctx, batch)
	}

	logger.Info("processing scheduled batch",
		"batch_id", batch.ID.String(), "total", batch.TotalCount)
	return p.service.ProcessDeferred(ctx, batch)
}

func (p *BatchProcessor) processDrip(ctx context.Context, batch *enrollment.Batch) error {
	cfg := batch.DripConfig
	if cfg == nil || cfg.EmailsPerDay <= 0 {
		// Misconfigured drip falls back to one full pass.
		return p.service.ProcessDeferred(ctx, batch)
	}

	if !withinSendWindow(time.Now(), cfg.StartHour, cfg.EndHour) {
		return nil
	}

	remaining := batch.TotalCount - batch.ProcessedCount
	if remaining <= 0 {
		remaining = batch.TotalCount
	}
	granted, err := p.limiter.Reserve(ctx, batch.ID, cfg.EmailsPerDay, remaining)
	if err != nil {
		return err
	}
	if granted == 0 {
		return nil
	}

	logger.Info("processing drip batch",
		"batch_id", batch.ID.String(),
		"granted", granted,
		"processed", batch.ProcessedCount,
		"total", batch.TotalCount)

	_, err = p.service.ProcessDeferredN(ctx, batch, granted)
	return err
}

// withinSendWindow checks the drip send window. A zero window (0,0) means
// any time of day. End is exclusive; windows wrapping midnight are allowed.
func withinSendWindow(now time.Time, startHour, endHour int) bool {
	if startHour == 0 && endHour == 0 {
		return true
	}
	h := now.Hour()
	if startHour <= endHour {
		return h >= startHour && h < endHour
	}
	return h >= startHour || h < endHour
}
