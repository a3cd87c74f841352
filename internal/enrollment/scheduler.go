package enrollment

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/sequence"
)

// EnrollmentStore is the write surface the scheduler needs. Implemented by
// *Store for Postgres and by in-memory fakes in tests.
type EnrollmentStore interface {
	HasLiveEnrollment(ctx context.Context, subscriberID, sequenceID uuid.UUID) (bool, error)
	Insert(ctx context.Context, e *Enrollment) error
}

// Scheduler makes the per-subscriber enrollment decision: exclusion check,
// first-step delay, optional A/B variant, insert. One decision per
// subscriber, best effort across the chunk.
type Scheduler struct {
	store EnrollmentStore

	// Injected for deterministic tests.
	now  func() time.Time
	draw func() int
}

func NewScheduler(store EnrollmentStore) *Scheduler {
	return &Scheduler{
		store: store,
		now:   time.Now,
		draw:  func() int { return rand.Intn(100) },
	}
}

// CheckSequence verifies the enrollment precondition: an active step 1.
// Called once per batch, before any subscriber is touched.
func (s *Scheduler) CheckSequence(seq *sequence.Sequence) error {
	first := seq.FirstStep()
	if first == nil || !first.IsActive() {
		return ErrInactiveFirstStep
	}
	return nil
}

// ScheduleChunk enrolls one chunk of subscribers into seq. A failed insert
// is recorded against that subscriber and processing continues; the chunk
// never fails as a whole. The returned tallies satisfy
// len(chunk) == Success + Skipped + len(Errors).
func (s *Scheduler) ScheduleChunk(ctx context.Context, seq *sequence.Sequence, subscriberIDs []uuid.UUID, excludeEnrolled bool) ChunkResult {
	var result ChunkResult
	first := seq.FirstStep()

	for _, subID := range subscriberIDs {
		if excludeEnrolled {
			live, err := s.store.HasLiveEnrollment(ctx, subID, seq.ID)
			if err != nil {
				result.Errors = append(result.Errors, SubscriberError{SubscriberID: subID, Error: err.Error()})
				continue
			}
			if live {
				result.Skipped++
				continue
			}
		}

		now := s.now()
		e := &Enrollment{
			ID:                  uuid.New(),
			SubscriberID:        subID,
			SequenceID:          seq.ID,
			Status:              "active",
			CurrentStepNumber:   1,
			ABVariant:           s.assignVariant(seq),
			EnrolledAt:          now,
			NextStepScheduledAt: now.Add(first.Delay()),
		}

		if err := s.store.Insert(ctx, e); err != nil {
			result.Errors = append(result.Errors, SubscriberError{SubscriberID: subID, Error: err.Error()})
			continue
		}
		result.Success++
	}

	return result
}

// assignVariant draws A/B once at enrollment time. The split percentage is
// the share of variant A, so split=100 means everyone gets A.
func (s *Scheduler) assignVariant(seq *sequence.Sequence) *string {
	if !seq.ABTestEnabled {
		return nil
	}
	split := seq.ABTestSplitPercentage
	if split <= 0 {
		split = 50
	}
	variant := "B"
	if s.draw() < split {
		variant = "A"
	}
	return &variant
}
