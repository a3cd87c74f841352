// Package subscriber provides read-only access to CRM subscriber records.
// The enrollment pipeline never mutates subscribers; it only resolves them.
package subscriber

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber represents one CRM contact (a restaurant client or prospect).
type Subscriber struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	FirstName      string     `json:"first_name,omitempty" db:"first_name"`
	LastName       string     `json:"last_name,omitempty" db:"last_name"`
	Company        string     `json:"company,omitempty" db:"company"`
	POSSystem      string     `json:"pos_system,omitempty" db:"pos_system"`
	GeographicTier string     `json:"geographic_tier,omitempty" db:"geographic_tier"`
	City           string     `json:"city,omitempty" db:"city"`
	State          string     `json:"state,omitempty" db:"state"`
	Source         string     `json:"source,omitempty" db:"source"`
	Status         string     `json:"status" db:"status"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
}

// SearchFilter is the fixed-shape filter for "all subscribers" selection.
// Unlike segment queries, its field set is hardcoded by the caller, so it
// needs no allow-list treatment.
type SearchFilter struct {
	Search          string   `json:"search,omitempty"`
	Statuses        []string `json:"statuses,omitempty"`
	POSSystems      []string `json:"pos_systems,omitempty"`
	GeographicTiers []string `json:"geographic_tiers,omitempty"`
}

// IsZero reports whether the filter selects everything.
func (f SearchFilter) IsZero() bool {
	return f.Search == "" && len(f.Statuses) == 0 && len(f.POSSystems) == 0 && len(f.GeographicTiers) == 0
}

// LookupResult reports a chunked email lookup: resolved IDs plus the input
// emails that matched nothing. Missing emails are diagnostic, not an error.
type LookupResult struct {
	IDs      []uuid.UUID
	NotFound []string
}
