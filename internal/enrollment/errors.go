package enrollment

import "errors"

var (
	// Request validation failures. Nothing is persisted when these are returned.
	ErrInvalidSource   = errors.New("invalid enrollment source")
	ErrInvalidSchedule = errors.New("invalid enrollment schedule")
	ErrEmailsRequired  = errors.New("emails array is required")
	ErrSegmentRequired = errors.New("segment_id is required")

	ErrSegmentNotFound  = errors.New("segment not found")
	ErrSequenceNotFound = errors.New("sequence not found")
	ErrBatchNotFound    = errors.New("batch not found")

	// ErrNoSubscribers means the source resolved to zero subscribers.
	// Treated as a hard validation failure, not an empty success.
	ErrNoSubscribers = errors.New("no subscribers matched the enrollment source")

	// ErrInactiveFirstStep blocks the whole batch before any subscriber
	// is touched. A sequence without an active step 1 must not enroll anyone.
	ErrInactiveFirstStep = errors.New("sequence has no active first step")
)
