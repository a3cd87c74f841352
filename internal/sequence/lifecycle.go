package sequence

import (
	"context"

	"github.com/google/uuid"
	"github.com/ignite/crm-engine/internal/pkg/logger"
)

// Lifecycle implements sequence status transitions.
type Lifecycle struct {
	store *Store
}

func NewLifecycle(store *Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// ActivationResult reports the outcome of an Activate call.
type ActivationResult struct {
	ID                     uuid.UUID `json:"id"`
	Status                 Status    `json:"status"`
	PreviousStatus         Status    `json:"previous_status"`
	ReactivatedEnrollments int64     `json:"reactivated_enrollments"`
}

// Activate transitions a sequence from draft or paused to active. When
// resuming from paused, any paused subscriber enrollments for the sequence
// are transitioned back to active as well.
func (l *Lifecycle) Activate(ctx context.Context, id uuid.UUID) (*ActivationResult, error) {
	seq, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, ErrNotFound
	}
	if seq.Status != StatusDraft && seq.Status != StatusPaused {
		return nil, ErrInvalidTransition
	}

	if err := l.store.UpdateStatus(ctx, id, StatusActive); err != nil {
		return nil, err
	}

	result := &ActivationResult{
		ID:             id,
		Status:         StatusActive,
		PreviousStatus: seq.Status,
	}

	if seq.Status == StatusPaused {
		n, err := l.store.ReactivatePausedEnrollments(ctx, id)
		if err != nil {
			// The sequence itself is already active; report the partial
			// transition rather than failing the whole call.
			logger.Error("reactivate paused enrollments failed", "sequence_id", id.String(), "error", err.Error())
		}
		result.ReactivatedEnrollments = n
	}

	logger.Info("sequence activated",
		"sequence_id", id.String(),
		"previous_status", string(seq.Status),
		"reactivated", result.ReactivatedEnrollments)
	return result, nil
}
