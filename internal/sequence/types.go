// Package sequence implements drip campaign definitions: ordered,
// time-delayed email steps, their content linter, and lifecycle transitions.
package sequence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a sequence.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusArchived Status = "archived"
)

// DelayUnit is the time unit of a step delay.
type DelayUnit string

const (
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
	UnitDays    DelayUnit = "days"
	UnitWeeks   DelayUnit = "weeks"
)

// Seconds returns the unit length in seconds. Unrecognized units behave as
// hours.
func (u DelayUnit) Seconds() int64 {
	switch u {
	case UnitMinutes:
		return 60
	case UnitHours:
		return 3600
	case UnitDays:
		return 86400
	case UnitWeeks:
		return 604800
	default:
		return 3600
	}
}

// Sequence is a multi-step drip campaign definition.
type Sequence struct {
	ID                    uuid.UUID       `json:"id"`
	Name                  string          `json:"name"`
	Description           string          `json:"description,omitempty"`
	Status                Status          `json:"status"`
	TriggerType           string          `json:"trigger_type"` // manual, triggered
	TriggerConfig         json.RawMessage `json:"trigger_config,omitempty"`
	ABTestEnabled         bool            `json:"ab_test_enabled"`
	ABTestSplitPercentage int             `json:"ab_test_split_percentage"`
	Steps                 []Step          `json:"steps,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// FirstStep returns step 1, or nil if the sequence has no step 1.
func (s *Sequence) FirstStep() *Step {
	for i := range s.Steps {
		if s.Steps[i].StepNumber == 1 {
			return &s.Steps[i]
		}
	}
	return nil
}

// Step is one email in a sequence. StepNumber is 1-based and contiguous;
// the delay is measured from the previous step (step 1: from enrollment).
type Step struct {
	ID             uuid.UUID       `json:"id"`
	SequenceID     uuid.UUID       `json:"sequence_id"`
	StepNumber     int             `json:"step_number"`
	Subject        string          `json:"subject"`
	HTMLContent    string          `json:"html_content"`
	DelayValue     int             `json:"delay_value"`
	DelayUnit      DelayUnit       `json:"delay_unit"`
	Status         string          `json:"status"` // active, inactive
	SendConditions json.RawMessage `json:"send_conditions,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DelaySeconds converts the step's delay to seconds.
func (s Step) DelaySeconds() int64 {
	return int64(s.DelayValue) * s.DelayUnit.Seconds()
}

// Delay returns the step's delay as a duration.
func (s Step) Delay() time.Duration {
	return time.Duration(s.DelaySeconds()) * time.Second
}

// IsActive reports whether the step participates in dispatch.
func (s Step) IsActive() bool {
	return s.Status == "active"
}
