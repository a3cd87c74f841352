package enrollment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchStore maintains the crm_batch_enrollments progress records.
type BatchStore struct {
	db *sql.DB
}

func NewBatchStore(db *sql.DB) *BatchStore {
	return &BatchStore{db: db}
}

// Create inserts the batch row in pending status. The original request is
// persisted alongside the audit details so deferred batches can re-resolve
// their subscribers at dispatch time.
func (s *BatchStore) Create(ctx context.Context, b *Batch) error {
	details, err := json.Marshal(b.SourceDetails)
	if err != nil {
		return fmt.Errorf("encoding source details: %w", err)
	}
	var request []byte
	if b.Request != nil {
		if request, err = json.Marshal(b.Request); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}
	var drip []byte
	if b.DripConfig != nil {
		if drip, err = json.Marshal(b.DripConfig); err != nil {
			return fmt.Errorf("encoding drip config: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crm_batch_enrollments
			(id, sequence_id, status, schedule, source_details, request,
			 total_count, scheduled_at, timezone, drip_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		b.ID, b.SequenceID, b.Status, b.Schedule, details, request,
		b.TotalCount, b.ScheduledAt, b.Timezone, drip, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting batch: %w", err)
	}
	return nil
}

func (s *BatchStore) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crm_batch_enrollments
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking batch processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// IncrementCounters adds one chunk's tallies to the batch row in a single
// statement. Skipped subscribers count toward processed_count, so
// processed = success + error + skipped at all times.
func (s *BatchStore) IncrementCounters(ctx context.Context, id uuid.UUID, success, errored, skipped int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crm_batch_enrollments
		SET processed_count = processed_count + $2,
		    success_count   = success_count + $3,
		    error_count     = error_count + $4,
		    skipped_count   = skipped_count + $5,
		    updated_at      = NOW()
		WHERE id = $1`,
		id, success+errored+skipped, success, errored, skipped)
	if err != nil {
		return fmt.Errorf("incrementing batch counters: %w", err)
	}
	return nil
}

// Requeue puts a partially processed drip batch back in pending so a later
// worker pass picks it up again. Counters are preserved.
func (s *BatchStore) Requeue(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crm_batch_enrollments
		SET status = 'pending', updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("requeueing batch: %w", err)
	}
	return nil
}

func (s *BatchStore) Finalize(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crm_batch_enrollments
		SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("finalizing batch: %w", err)
	}
	return nil
}

func (s *BatchStore) Get(ctx context.Context, id uuid.UUID) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sequence_id, status, schedule, source_details, request,
		       total_count, processed_count, success_count, error_count, skipped_count,
		       scheduled_at, timezone, drip_config, created_at, updated_at, completed_at
		FROM crm_batch_enrollments
		WHERE id = $1`, id)
	return scanBatch(row)
}

// ListDue returns pending deferred batches that are ready for processing:
// scheduled batches whose scheduled_at has passed, and drip batches
// (which are always eligible once created). Oldest first.
func (s *BatchStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sequence_id, status, schedule, source_details, request,
		       total_count, processed_count, success_count, error_count, skipped_count,
		       scheduled_at, timezone, drip_config, created_at, updated_at, completed_at
		FROM crm_batch_enrollments
		WHERE status = 'pending'
		  AND (schedule = 'drip' OR (schedule = 'scheduled' AND scheduled_at <= $1))
		ORDER BY created_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing due batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row rowScanner) (*Batch, error) {
	var (
		b           Batch
		details     []byte
		request     []byte
		drip        []byte
		scheduledAt sql.NullTime
		timezone    sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.SequenceID, &b.Status, &b.Schedule, &details, &request,
		&b.TotalCount, &b.ProcessedCount, &b.SuccessCount, &b.ErrorCount, &b.SkippedCount,
		&scheduledAt, &timezone, &drip, &b.CreatedAt, &b.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning batch: %w", err)
	}

	if len(details) > 0 {
		if err := json.Unmarshal(details, &b.SourceDetails); err != nil {
			return nil, fmt.Errorf("decoding source details: %w", err)
		}
	}
	if len(request) > 0 {
		b.Request = &EnrollRequest{}
		if err := json.Unmarshal(request, b.Request); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
	}
	if len(drip) > 0 {
		b.DripConfig = &DripConfig{}
		if err := json.Unmarshal(drip, b.DripConfig); err != nil {
			return nil, fmt.Errorf("decoding drip config: %w", err)
		}
	}
	if scheduledAt.Valid {
		b.ScheduledAt = &scheduledAt.Time
	}
	if timezone.Valid {
		b.Timezone = timezone.String
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return &b, nil
}
