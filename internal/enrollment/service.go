package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/sequence"
)

// SequenceLoader is the read surface the service needs from the sequence
// store.
type SequenceLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*sequence.Sequence, error)
}

// BatchTracker is the progress-record surface, implemented by *BatchStore.
type BatchTracker interface {
	Create(ctx context.Context, b *Batch) error
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	IncrementCounters(ctx context.Context, id uuid.UUID, success, errored, skipped int) error
	Requeue(ctx context.Context, id uuid.UUID) error
	Finalize(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Batch, error)
}

// DefaultChunkSize bounds per-statement work, nothing more. Chunk
// boundaries carry no atomicity guarantee.
const DefaultChunkSize = 50

// Service runs the full enrollment pipeline: select, create batch,
// schedule in chunks, track progress.
type Service struct {
	selector  *Selector
	scheduler *Scheduler
	batches   BatchTracker
	sequences SequenceLoader
	chunkSize int
}

func NewService(selector *Selector, scheduler *Scheduler, batches BatchTracker, sequences SequenceLoader, chunkSize int) *Service {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Service{
		selector:  selector,
		scheduler: scheduler,
		batches:   batches,
		sequences: sequences,
		chunkSize: chunkSize,
	}
}

// Enroll handles one enrollment request end to end. Validation and
// selection failures return an error with no batch row created. Once the
// batch row exists, per-subscriber failures are absorbed into the counters
// and never fail the call.
func (s *Service) Enroll(ctx context.Context, sequenceID uuid.UUID, req *EnrollRequest) (*EnrollResult, error) {
	if !req.Source.Valid() {
		return nil, ErrInvalidSource
	}
	if !req.Schedule.Valid() {
		return nil, ErrInvalidSchedule
	}

	seq, err := s.sequences.Get(ctx, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("loading sequence: %w", err)
	}
	if seq == nil {
		return nil, ErrSequenceNotFound
	}
	if err := s.scheduler.CheckSequence(seq); err != nil {
		return nil, err
	}

	ids, details, err := s.selector.Select(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoSubscribers
	}

	batch := &Batch{
		ID:            uuid.New(),
		SequenceID:    sequenceID,
		Status:        BatchPending,
		Schedule:      req.Schedule,
		SourceDetails: *details,
		Request:       req,
		TotalCount:    len(ids),
		ScheduledAt:   req.ScheduledAt,
		Timezone:      req.Timezone,
		DripConfig:    req.DripConfig,
		CreatedAt:     time.Now(),
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}

	logger.Info("enrollment batch created",
		"batch_id", batch.ID.String(),
		"sequence_id", sequenceID.String(),
		"source", string(req.Source),
		"schedule", string(req.Schedule),
		"total", len(ids))

	// Deferred schedules stop here; the worker picks the batch up later.
	if req.Schedule != ScheduleImmediate {
		result := &EnrollResult{Batch: batch}
		return result, nil
	}

	subErrors, err := s.Process(ctx, batch, seq, ids)
	if err != nil {
		return nil, err
	}

	final, err := s.batches.Get(ctx, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("reloading batch: %w", err)
	}
	return &EnrollResult{Batch: final, SubscriberErrors: subErrors}, nil
}

// Process runs the chunk loop for a batch whose subscribers are already
// resolved. Shared between the immediate path and the deferred worker.
func (s *Service) Process(ctx context.Context, batch *Batch, seq *sequence.Sequence, ids []uuid.UUID) ([]SubscriberError, error) {
	if err := s.batches.MarkProcessing(ctx, batch.ID); err != nil {
		return nil, err
	}

	subErrors, err := s.processIDs(ctx, batch, seq, ids)
	if err != nil {
		return subErrors, err
	}

	if err := s.batches.Finalize(ctx, batch.ID); err != nil {
		return subErrors, fmt.Errorf("finalizing batch: %w", err)
	}

	logger.Info("enrollment batch completed",
		"batch_id", batch.ID.String(),
		"total", len(ids),
		"errors", len(subErrors))
	return subErrors, nil
}

func (s *Service) processIDs(ctx context.Context, batch *Batch, seq *sequence.Sequence, ids []uuid.UUID) ([]SubscriberError, error) {
	excludeEnrolled := true
	if batch.Request != nil {
		excludeEnrolled = batch.Request.ExcludeEnrolledOrDefault()
	}

	var subErrors []SubscriberError
	for start := 0; start < len(ids); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		result := s.scheduler.ScheduleChunk(ctx, seq, chunk, excludeEnrolled)
		subErrors = append(subErrors, result.Errors...)

		if err := s.batches.IncrementCounters(ctx, batch.ID, result.Success, len(result.Errors), result.Skipped); err != nil {
			return subErrors, fmt.Errorf("updating batch counters: %w", err)
		}
	}
	return subErrors, nil
}

// ProcessDeferred resolves a pending scheduled/drip batch's subscribers
// from its stored request and runs the chunk loop. Called by the worker.
func (s *Service) ProcessDeferred(ctx context.Context, batch *Batch) error {
	_, err := s.ProcessDeferredN(ctx, batch, 0)
	return err
}

// ProcessDeferredN is ProcessDeferred with a subscriber budget: at most
// limit subscribers are handled in this pass (0 means no limit), resuming
// from batch.ProcessedCount. Drip batches use this to spread enrollment
// over days. Returns done=true once the batch is finalized; otherwise the
// batch is requeued as pending for a later pass.
//
// The subscriber set is re-resolved from the stored request on every pass,
// so membership changes between drip passes shift which subscribers remain.
func (s *Service) ProcessDeferredN(ctx context.Context, batch *Batch, limit int) (bool, error) {
	if batch.Request == nil {
		return false, fmt.Errorf("batch %s has no stored request", batch.ID)
	}

	seq, err := s.sequences.Get(ctx, batch.SequenceID)
	if err != nil {
		return false, fmt.Errorf("loading sequence: %w", err)
	}
	if seq == nil {
		return false, ErrSequenceNotFound
	}
	if err := s.scheduler.CheckSequence(seq); err != nil {
		return false, err
	}

	ids, _, err := s.selector.Select(ctx, batch.Request)
	if err != nil {
		return false, err
	}

	offset := batch.ProcessedCount
	if offset >= len(ids) {
		if err := s.batches.Finalize(ctx, batch.ID); err != nil {
			return false, fmt.Errorf("finalizing batch: %w", err)
		}
		return true, nil
	}

	remaining := ids[offset:]
	partial := limit > 0 && len(remaining) > limit
	if partial {
		remaining = remaining[:limit]
	}

	if err := s.batches.MarkProcessing(ctx, batch.ID); err != nil {
		return false, err
	}
	subErrors, err := s.processIDs(ctx, batch, seq, remaining)
	if err != nil {
		return false, err
	}

	if partial {
		if err := s.batches.Requeue(ctx, batch.ID); err != nil {
			return false, fmt.Errorf("requeueing batch: %w", err)
		}
		logger.Info("enrollment batch partially processed",
			"batch_id", batch.ID.String(),
			"processed", offset+len(remaining),
			"total", len(ids),
			"errors", len(subErrors))
		return false, nil
	}

	if err := s.batches.Finalize(ctx, batch.ID); err != nil {
		return false, fmt.Errorf("finalizing batch: %w", err)
	}
	logger.Info("enrollment batch completed",
		"batch_id", batch.ID.String(),
		"total", len(ids),
		"errors", len(subErrors))
	return true, nil
}

// GetBatch exposes batch progress for the API layer.
func (s *Service) GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error) {
	b, err := s.batches.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBatchNotFound
	}
	return b, nil
}
