package sequence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Store handles CRUD for crm_sequences and crm_sequence_steps.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns a sequence with its steps ordered by step_number, or nil if
// it doesn't exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Sequence, error) {
	var seq Sequence
	var description sql.NullString
	var triggerConfig []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, status, trigger_type, trigger_config,
		        ab_test_enabled, ab_test_split_percentage, created_at, updated_at
		FROM crm_sequences WHERE id = $1`, id,
	).Scan(&seq.ID, &seq.Name, &description, &seq.Status, &seq.TriggerType, &triggerConfig,
		&seq.ABTestEnabled, &seq.ABTestSplitPercentage, &seq.CreatedAt, &seq.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	seq.Description = description.String
	seq.TriggerConfig = triggerConfig

	steps, err := s.GetSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	seq.Steps = steps
	return &seq, nil
}

// GetSteps returns a sequence's steps ordered by step_number.
func (s *Store) GetSteps(ctx context.Context, sequenceID uuid.UUID) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sequence_id, step_number, COALESCE(subject,''), COALESCE(html_content,''),
		        delay_value, delay_unit, status, send_conditions, created_at
		FROM crm_sequence_steps WHERE sequence_id = $1 ORDER BY step_number`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		var sendConditions []byte
		if err := rows.Scan(&st.ID, &st.SequenceID, &st.StepNumber, &st.Subject, &st.HTMLContent,
			&st.DelayValue, &st.DelayUnit, &st.Status, &sendConditions, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.SendConditions = sendConditions
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// UpdateStatus transitions a sequence's status.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crm_sequences SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReactivatePausedEnrollments flips a sequence's paused subscriber rows back
// to active. Returns the number of rows transitioned.
func (s *Store) ReactivatePausedEnrollments(ctx context.Context, sequenceID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crm_subscriber_sequences SET status = 'active', updated_at = NOW()
		WHERE sequence_id = $1 AND status = 'paused'`, sequenceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
