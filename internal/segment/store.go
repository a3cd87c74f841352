package segment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DefaultDynamicCap bounds the result size of a dynamic segment so a single
// enrollment request cannot fan out unbounded.
const DefaultDynamicCap = 10000

// Store handles reads against crm_segments and crm_segment_members.
type Store struct {
	db         *sql.DB
	dynamicCap int
}

// NewStore creates a segment store. dynamicCap <= 0 uses DefaultDynamicCap.
func NewStore(db *sql.DB, dynamicCap int) *Store {
	if dynamicCap <= 0 {
		dynamicCap = DefaultDynamicCap
	}
	return &Store{db: db, dynamicCap: dynamicCap}
}

// Get returns a segment with its resolution variant populated, or nil if no
// segment with that ID exists.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Segment, error) {
	var seg Segment
	var segmentType string
	var description sql.NullString
	var queryJSON []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, segment_type, query, subscriber_count, created_at, updated_at
		FROM crm_segments WHERE id = $1`, id,
	).Scan(&seg.ID, &seg.Name, &description, &segmentType, &queryJSON,
		&seg.SubscriberCount, &seg.CreatedAt, &seg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	seg.Description = description.String

	switch segmentType {
	case "dynamic":
		var q Query
		if len(queryJSON) > 0 {
			if err := json.Unmarshal(queryJSON, &q); err != nil {
				return nil, fmt.Errorf("segment %s: parse query: %w", id, err)
			}
		}
		seg.Resolution = Dynamic{Query: q}
	default:
		seg.Resolution = Static{}
	}
	return &seg, nil
}

// ResolveStatic reads the explicit membership list for a static segment.
func (s *Store) ResolveStatic(ctx context.Context, segmentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subscriber_id FROM crm_segment_members WHERE segment_id = $1`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("resolve static segment: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResolveDynamic compiles a dynamic segment's query and evaluates it against
// crm_subscribers, capped at the configured result size.
func (s *Store) ResolveDynamic(ctx context.Context, q Query) ([]uuid.UUID, error) {
	compiler := NewCompiler()
	predicate, args := compiler.Compile(q)

	query := "SELECT id FROM crm_subscribers"
	if predicate != "" {
		query += " WHERE " + predicate
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", s.dynamicCap)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve dynamic segment: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountDynamic evaluates a dynamic query to a count, for segment previews.
func (s *Store) CountDynamic(ctx context.Context, q Query) (int, error) {
	compiler := NewCompiler()
	predicate, args := compiler.Compile(q)

	query := "SELECT COUNT(*) FROM crm_subscribers"
	if predicate != "" {
		query += " WHERE " + predicate
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count dynamic segment: %w", err)
	}
	return count, nil
}
