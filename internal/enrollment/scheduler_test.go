package enrollment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/sequence"
)

// memStore is an in-memory EnrollmentStore for tests.
type memStore struct {
	rows     []*Enrollment
	failFor  map[uuid.UUID]error
	checkErr error
}

func newMemStore() *memStore {
	return &memStore{failFor: make(map[uuid.UUID]error)}
}

func (m *memStore) HasLiveEnrollment(ctx context.Context, subscriberID, sequenceID uuid.UUID) (bool, error) {
	if m.checkErr != nil {
		return false, m.checkErr
	}
	for _, r := range m.rows {
		if r.SubscriberID != subscriberID || r.SequenceID != sequenceID {
			continue
		}
		for _, s := range LiveStatuses {
			if r.Status == s {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memStore) Insert(ctx context.Context, e *Enrollment) error {
	if err := m.failFor[e.SubscriberID]; err != nil {
		return err
	}
	m.rows = append(m.rows, e)
	return nil
}

func testSequence(delayValue int, delayUnit sequence.DelayUnit) *sequence.Sequence {
	seqID := uuid.New()
	return &sequence.Sequence{
		ID:     seqID,
		Name:   "welcome",
		Status: sequence.StatusActive,
		Steps: []sequence.Step{
			{ID: uuid.New(), SequenceID: seqID, StepNumber: 1, Subject: "hi",
				DelayValue: delayValue, DelayUnit: delayUnit, Status: "active"},
		},
	}
}

func fixedScheduler(store EnrollmentStore, now time.Time, draw int) *Scheduler {
	s := NewScheduler(store)
	s.now = func() time.Time { return now }
	s.draw = func() int { return draw }
	return s
}

func TestScheduleChunkEnrolls(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sched := fixedScheduler(store, now, 0)
	seq := testSequence(2, sequence.UnitDays)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	result := sched.ScheduleChunk(context.Background(), seq, ids, true)

	if result.Success != 2 || result.Skipped != 0 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(store.rows) != 2 {
		t.Fatalf("rows = %d", len(store.rows))
	}
	for _, r := range store.rows {
		if r.Status != "active" || r.CurrentStepNumber != 1 {
			t.Errorf("row = %+v", r)
		}
		want := now.Add(2 * 24 * time.Hour)
		if !r.NextStepScheduledAt.Equal(want) {
			t.Errorf("next_step_scheduled_at = %v, want %v", r.NextStepScheduledAt, want)
		}
		if !r.EnrolledAt.Equal(now) {
			t.Errorf("enrolled_at = %v", r.EnrolledAt)
		}
	}
}

func TestScheduleChunkDelayUnits(t *testing.T) {
	tests := []struct {
		unit sequence.DelayUnit
		want time.Duration
	}{
		{sequence.UnitMinutes, 3 * time.Minute},
		{sequence.UnitHours, 3 * time.Hour},
		{sequence.UnitDays, 3 * 24 * time.Hour},
		{sequence.UnitWeeks, 3 * 7 * 24 * time.Hour},
		{sequence.DelayUnit("fortnights"), 3 * time.Hour}, // unknown behaves as hours
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			store := newMemStore()
			sched := fixedScheduler(store, now, 0)
			seq := testSequence(3, tt.unit)

			sched.ScheduleChunk(context.Background(), seq, []uuid.UUID{uuid.New()}, false)
			if len(store.rows) != 1 {
				t.Fatalf("rows = %d", len(store.rows))
			}
			want := now.Add(tt.want)
			if !store.rows[0].NextStepScheduledAt.Equal(want) {
				t.Errorf("next_step_scheduled_at = %v, want %v", store.rows[0].NextStepScheduledAt, want)
			}
		})
	}
}

func TestScheduleChunkIdempotentExclusion(t *testing.T) {
	store := newMemStore()
	sched := fixedScheduler(store, time.Now(), 0)
	seq := testSequence(1, sequence.UnitHours)
	subID := uuid.New()

	first := sched.ScheduleChunk(context.Background(), seq, []uuid.UUID{subID}, true)
	second := sched.ScheduleChunk(context.Background(), seq, []uuid.UUID{subID}, true)

	if first.Success != 1 {
		t.Errorf("first = %+v", first)
	}
	if second.Success != 0 || second.Skipped != 1 || len(second.Errors) != 0 {
		t.Errorf("second attempt must skip, not succeed or error: %+v", second)
	}
	if len(store.rows) != 1 {
		t.Errorf("exactly one live enrollment row expected, got %d", len(store.rows))
	}
}

func TestScheduleChunkExclusionDisabled(t *testing.T) {
	store := newMemStore()
	sched := fixedScheduler(store, time.Now(), 0)
	seq := testSequence(1, sequence.UnitHours)
	subID := uuid.New()

	sched.ScheduleChunk(context.Background(), seq, []uuid.UUID{subID}, false)
	result := sched.ScheduleChunk(context.Background(), seq, []uuid.UUID{subID}, false)

	if result.Success != 1 || result.Skipped != 0 {
		t.Errorf("exclusion disabled should re-enroll: %+v", result)
	}
	if len(store.rows) != 2 {
		t.Errorf("rows = %d", len(store.rows))
	}
}

func TestScheduleChunkABSplit(t *testing.T) {
	// split=100: every draw in [0,100) lands under the split, so always A.
	for _, draw := range []int{0, 50, 99} {
		store := newMemStore()
		sched := fixedScheduler(store, time.Now(), draw)
		seq := testSequence(1, sequence.UnitHours)
		seq.ABTestEnabled = true
		seq.ABTestSplitPercentage = 100

		sched.ScheduleChunk(context.Background(), seq, []uuid.UUID{uuid.New()}, false)
		if store.rows[0].ABVariant == nil || *store.rows[0].ABVariant != "A" {
			t.Errorf("draw %d: variant = %v, want A", draw, store.rows[0].ABVariant)
		}
	}

	// split=50: draw below the split is A, at or above is B.
	for draw, want := range map[int]string{0: "A", 49: "A", 50: "B", 99: "B"} {
		store := newMemStore()
		sched := fixedScheduler(store, time.Now(), draw)
		seq := testSequence(1, sequence.UnitHours)
		seq.ABTestEnabled = true
		seq.ABTestSplitPercentage = 50

		sched.ScheduleChunk(context.Background(), seq, []uuid.UUID{uuid.New()}, false)
		if *store.rows[0].ABVariant != want {
			t.Errorf("draw %d: variant = %s, want %s", draw, *store.rows[0].ABVariant, want)
		}
	}
}

func TestScheduleChunkNoABTest(t *testing.T) {
	store := newMemStore()
	sched := fixedScheduler(store, time.Now(), 0)
	seq := testSequence(1, sequence.UnitHours)

	sched.ScheduleChunk(context.Background(), seq, []uuid.UUID{uuid.New()}, false)
	if store.rows[0].ABVariant != nil {
		t.Errorf("variant should be nil without A/B testing, got %v", *store.rows[0].ABVariant)
	}
}

func TestScheduleChunkPerSubscriberErrors(t *testing.T) {
	store := newMemStore()
	sched := fixedScheduler(store, time.Now(), 0)
	seq := testSequence(1, sequence.UnitHours)

	good1, bad, good2 := uuid.New(), uuid.New(), uuid.New()
	store.failFor[bad] = fmt.Errorf("insert failed: connection reset")

	result := sched.ScheduleChunk(context.Background(), seq, []uuid.UUID{good1, bad, good2}, true)

	if result.Success != 2 {
		t.Errorf("success = %d, want 2 (one failure must not abort the rest)", result.Success)
	}
	if len(result.Errors) != 1 || result.Errors[0].SubscriberID != bad {
		t.Errorf("errors = %+v", result.Errors)
	}
	if len(store.rows) != 2 {
		t.Errorf("rows = %d", len(store.rows))
	}
}

func TestCheckSequence(t *testing.T) {
	sched := NewScheduler(newMemStore())

	seq := testSequence(1, sequence.UnitHours)
	if err := sched.CheckSequence(seq); err != nil {
		t.Errorf("active step 1 should pass: %v", err)
	}

	seq.Steps[0].Status = "inactive"
	if err := sched.CheckSequence(seq); !errors.Is(err, ErrInactiveFirstStep) {
		t.Errorf("inactive step 1: err = %v", err)
	}

	seq.Steps = nil
	if err := sched.CheckSequence(seq); !errors.Is(err, ErrInactiveFirstStep) {
		t.Errorf("no steps: err = %v", err)
	}
}
