// Package segment provides subscriber segments: static membership lists and
// dynamic, query-defined groupings compiled to parameterized SQL.
package segment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operator represents a comparison operator in a segment condition.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpInList      Operator = "in_list"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
)

// Logic combines conditions within a group, or groups within a query.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// joiner returns the SQL joiner for this logic. Anything other than an
// explicit OR combines with AND.
func (l Logic) joiner() string {
	if strings.EqualFold(string(l), string(LogicOr)) {
		return " OR "
	}
	return " AND "
}

// Condition is a single field/operator/value predicate.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"` // in_list only
}

// Group is a list of conditions combined by an intra-group logic.
type Group struct {
	Logic      Logic       `json:"logic,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Query is the stored definition of a dynamic segment: groups of conditions,
// combined by a top-level logic.
type Query struct {
	Logic  Logic   `json:"logic,omitempty"`
	Groups []Group `json:"groups,omitempty"`
}

// Resolution determines how a segment's membership is computed. It is a
// closed set: Static (explicit join-table membership) or Dynamic (stored
// query evaluated at selection time).
type Resolution interface {
	segmentResolution()
}

// Static membership lives in crm_segment_members.
type Static struct{}

// Dynamic membership is computed from a stored Query.
type Dynamic struct {
	Query Query
}

func (Static) segmentResolution()  {}
func (Dynamic) segmentResolution() {}

// Segment is a named, reusable grouping of subscribers.
type Segment struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Resolution      Resolution `json:"-"`
	SubscriberCount int        `json:"subscriber_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Type returns the persisted segment_type discriminator.
func (s *Segment) Type() string {
	switch s.Resolution.(type) {
	case Dynamic:
		return "dynamic"
	default:
		return "static"
	}
}

// allowedFields is the fixed allow-list of subscriber columns a segment
// condition may reference. Conditions on anything else are dropped before
// compilation so user-controlled field names never reach the SQL text.
var allowedFields = map[string]bool{
	"email":           true,
	"first_name":      true,
	"last_name":       true,
	"company":         true,
	"pos_system":      true,
	"geographic_tier": true,
	"city":            true,
	"state":           true,
	"source":          true,
	"status":          true,
}

// canonicalField normalizes a user-supplied field name and reports whether
// it is allow-listed.
func canonicalField(field string) (string, bool) {
	f := strings.ToLower(strings.TrimSpace(field))
	return f, allowedFields[f]
}

// AllowedFields returns the allow-listed column names, for API discovery.
func AllowedFields() []string {
	out := make([]string, 0, len(allowedFields))
	for f := range allowedFields {
		out = append(out, f)
	}
	return out
}
