package enrollment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store persists per-subscriber enrollment rows in crm_subscriber_sequences.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// HasLiveEnrollment reports whether (subscriber, sequence) already has a row
// in a live status. This check-then-insert is not serialized across
// concurrent requests; two simultaneous enrolls can both pass it.
func (s *Store) HasLiveEnrollment(ctx context.Context, subscriberID, sequenceID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM crm_subscriber_sequences
			WHERE subscriber_id = $1 AND sequence_id = $2 AND status = ANY($3)
		)`, subscriberID, sequenceID, pq.Array(LiveStatuses)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking live enrollment: %w", err)
	}
	return exists, nil
}

func (s *Store) Insert(ctx context.Context, e *Enrollment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_subscriber_sequences
			(id, subscriber_id, sequence_id, status, current_step_number,
			 ab_variant, enrolled_at, next_step_scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.SubscriberID, e.SequenceID, e.Status, e.CurrentStepNumber,
		e.ABVariant, e.EnrolledAt, e.NextStepScheduledAt)
	if err != nil {
		return fmt.Errorf("inserting enrollment: %w", err)
	}
	return nil
}

// CountLive returns how many live enrollments a sequence currently has,
// used by the sequence detail endpoint.
func (s *Store) CountLive(ctx context.Context, sequenceID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM crm_subscriber_sequences
		WHERE sequence_id = $1 AND status = ANY($2)`,
		sequenceID, pq.Array(LiveStatuses)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting live enrollments: %w", err)
	}
	return n, nil
}
