package enrollment

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/subscriber"
)

// Source discriminates how an enrollment request selects subscribers.
type Source string

const (
	SourceManual  Source = "manual"
	SourceSegment Source = "segment"
	SourceAll     Source = "all"
)

func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceSegment, SourceAll:
		return true
	}
	return false
}

// Schedule is the dispatch mode for a batch.
type Schedule string

const (
	ScheduleImmediate Schedule = "immediate"
	ScheduleScheduled Schedule = "scheduled"
	ScheduleDrip      Schedule = "drip"
)

func (s Schedule) Valid() bool {
	switch s {
	case ScheduleImmediate, ScheduleScheduled, ScheduleDrip:
		return true
	}
	return false
}

// DripConfig spreads a batch's processing over time instead of enrolling
// everyone in one pass.
type DripConfig struct {
	EmailsPerDay int `json:"emails_per_day"`
	StartHour    int `json:"start_hour,omitempty"`
	EndHour      int `json:"end_hour,omitempty"`
}

// EnrollRequest is the inbound contract for a batch enrollment.
// ExcludeEnrolled is a pointer so an absent field defaults to true.
type EnrollRequest struct {
	Source          Source                   `json:"source"`
	Emails          []string                 `json:"emails,omitempty"`
	SegmentID       *uuid.UUID               `json:"segment_id,omitempty"`
	Filters         *subscriber.SearchFilter `json:"filters,omitempty"`
	Schedule        Schedule                 `json:"schedule"`
	ScheduledAt     *time.Time               `json:"scheduled_at,omitempty"`
	Timezone        string                   `json:"timezone,omitempty"`
	DripConfig      *DripConfig              `json:"drip_config,omitempty"`
	ExcludeEnrolled *bool                    `json:"exclude_enrolled,omitempty"`
}

// ExcludeEnrolledOrDefault applies the default-true semantics.
func (r *EnrollRequest) ExcludeEnrolledOrDefault() bool {
	if r.ExcludeEnrolled == nil {
		return true
	}
	return *r.ExcludeEnrolled
}

// SourceDetails is the audit description of what a request selected,
// persisted on the batch row.
type SourceDetails struct {
	Type        Source     `json:"type"`
	Description string     `json:"description"`
	SegmentID   *uuid.UUID `json:"segment_id,omitempty"`
	SegmentName string     `json:"segment_name,omitempty"`
	Requested   int        `json:"requested,omitempty"`
	Matched     int        `json:"matched"`
	NotFound    []string   `json:"not_found,omitempty"`
}

// BatchStatus is the lifecycle of a batch row: pending -> processing -> completed.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
)

// Batch is one bulk-enroll request tracked as a single progress record.
// Counter convention: processed_count = success_count + error_count + skipped_count.
type Batch struct {
	ID             uuid.UUID      `json:"id"`
	SequenceID     uuid.UUID      `json:"sequence_id"`
	Status         BatchStatus    `json:"status"`
	Schedule       Schedule       `json:"schedule"`
	SourceDetails  SourceDetails  `json:"source_details"`
	Request        *EnrollRequest `json:"-"`
	TotalCount     int            `json:"total_count"`
	ProcessedCount int            `json:"processed_count"`
	SuccessCount   int            `json:"success_count"`
	ErrorCount     int            `json:"error_count"`
	SkippedCount   int            `json:"skipped_count"`
	ScheduledAt    *time.Time     `json:"scheduled_at,omitempty"`
	Timezone       string         `json:"timezone,omitempty"`
	DripConfig     *DripConfig    `json:"drip_config,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// Enrollment is the per-subscriber join row in crm_subscriber_sequences.
// Rows are insert-only from this package's point of view; the dispatcher
// advances current_step_number later.
type Enrollment struct {
	ID                  uuid.UUID `json:"id"`
	SubscriberID        uuid.UUID `json:"subscriber_id"`
	SequenceID          uuid.UUID `json:"sequence_id"`
	Status              string    `json:"status"`
	CurrentStepNumber   int       `json:"current_step_number"`
	ABVariant           *string   `json:"ab_variant,omitempty"`
	EnrolledAt          time.Time `json:"enrolled_at"`
	NextStepScheduledAt time.Time `json:"next_step_scheduled_at"`
}

// LiveStatuses are the enrollment statuses that count as "already enrolled"
// for the exclusion check.
var LiveStatuses = []string{"active", "queued", "paused"}

// SubscriberError records one subscriber's failed enrollment attempt.
// It never fails the batch as a whole.
type SubscriberError struct {
	SubscriberID uuid.UUID `json:"subscriber_id"`
	Error        string    `json:"error"`
}

// ChunkResult tallies one chunk of scheduling work.
type ChunkResult struct {
	Success int
	Skipped int
	Errors  []SubscriberError
}

// EnrollResult is the response body for an enroll call.
type EnrollResult struct {
	Batch            *Batch            `json:"batch"`
	SubscriberErrors []SubscriberError `json:"subscriber_errors,omitempty"`
}
