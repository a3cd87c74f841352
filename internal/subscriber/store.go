package subscriber

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DefaultLookupBatch bounds the size of a single IN (...) email lookup.
const DefaultLookupBatch = 50

// Store handles reads against the crm_subscribers table.
type Store struct {
	db          *sql.DB
	lookupBatch int
}

// NewStore creates a subscriber store. lookupBatch <= 0 uses DefaultLookupBatch.
func NewStore(db *sql.DB, lookupBatch int) *Store {
	if lookupBatch <= 0 {
		lookupBatch = DefaultLookupBatch
	}
	return &Store{db: db, lookupBatch: lookupBatch}
}

// LookupByEmails resolves emails to subscriber IDs, case-insensitively and
// de-duplicated. Emails are queried in fixed-size batches to bound query
// size. Input emails that match no subscriber are returned in NotFound.
func (s *Store) LookupByEmails(ctx context.Context, emails []string) (*LookupResult, error) {
	result := &LookupResult{}

	// Normalize and de-duplicate input up front so NotFound reporting is
	// stable regardless of batch boundaries.
	seen := make(map[string]bool, len(emails))
	var normalized []string
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		normalized = append(normalized, e)
	}

	found := make(map[string]bool, len(normalized))
	for start := 0; start < len(normalized); start += s.lookupBatch {
		end := start + s.lookupBatch
		if end > len(normalized) {
			end = len(normalized)
		}
		batch := normalized[start:end]

		rows, err := s.db.QueryContext(ctx,
			`SELECT id, LOWER(email) FROM crm_subscribers WHERE LOWER(email) = ANY($1)`,
			pq.Array(batch))
		if err != nil {
			return nil, fmt.Errorf("lookup emails: %w", err)
		}
		for rows.Next() {
			var id uuid.UUID
			var email string
			if err := rows.Scan(&id, &email); err != nil {
				rows.Close()
				return nil, err
			}
			if !found[email] {
				found[email] = true
				result.IDs = append(result.IDs, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	for _, e := range normalized {
		if !found[e] {
			result.NotFound = append(result.NotFound, e)
		}
	}
	return result, nil
}

// Search resolves the fixed-shape "all" filter to at most limit subscriber
// IDs. The filter's columns are hardcoded here, never caller-supplied.
func (s *Store) Search(ctx context.Context, f SearchFilter, limit int) ([]uuid.UUID, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, fmt.Sprintf(
			"(email ILIKE %[1]s OR first_name ILIKE %[1]s OR last_name ILIKE %[1]s OR company ILIKE %[1]s)", p))
	}
	if len(f.Statuses) > 0 {
		where = append(where, fmt.Sprintf("status = ANY(%s)", arg(pq.Array(f.Statuses))))
	}
	if len(f.POSSystems) > 0 {
		where = append(where, fmt.Sprintf("pos_system = ANY(%s)", arg(pq.Array(f.POSSystems))))
	}
	if len(f.GeographicTiers) > 0 {
		where = append(where, fmt.Sprintf("geographic_tier = ANY(%s)", arg(pq.Array(f.GeographicTiers))))
	}

	query := "SELECT id FROM crm_subscribers WHERE " + strings.Join(where, " AND ") +
		" ORDER BY created_at DESC LIMIT " + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search subscribers: %w", err)
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

// Get returns a single subscriber, or nil if it doesn't exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Subscriber, error) {
	var sub Subscriber
	var first, last, company, pos, tier, city, state, source sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, company, pos_system, geographic_tier,
		        city, state, source, status, created_at, updated_at, unsubscribed_at
		FROM crm_subscribers WHERE id = $1`, id,
	).Scan(&sub.ID, &sub.Email, &first, &last, &company, &pos, &tier,
		&city, &state, &source, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt, &sub.UnsubscribedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub.FirstName = first.String
	sub.LastName = last.String
	sub.Company = company.String
	sub.POSSystem = pos.String
	sub.GeographicTier = tier.String
	sub.City = city.String
	sub.State = state.String
	sub.Source = source.String
	return &sub, nil
}
