package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func setupTestDB(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewStore(db), mock, func() { db.Close() }
}

func sequenceRows(id uuid.UUID, status Status) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "description", "status", "trigger_type", "trigger_config",
		"ab_test_enabled", "ab_test_split_percentage", "created_at", "updated_at",
	}).AddRow(id, "welcome", "desc", string(status), "manual", nil, false, 50, now, now)
}

func stepRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "sequence_id", "step_number", "subject", "html_content",
		"delay_value", "delay_unit", "status", "send_conditions", "created_at",
	})
}

func expectGet(mock sqlmock.Sqlmock, id uuid.UUID, status Status) {
	mock.ExpectQuery(`SELECT id, name, description, status, trigger_type`).
		WithArgs(id).
		WillReturnRows(sequenceRows(id, status))
	mock.ExpectQuery(`SELECT id, sequence_id, step_number`).
		WithArgs(id).
		WillReturnRows(stepRows())
}

func TestActivateFromDraft(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	id := uuid.New()
	expectGet(mock, id, StatusDraft)
	mock.ExpectExec(`UPDATE crm_sequences SET status`).
		WithArgs(string(StatusActive), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := NewLifecycle(store).Activate(context.Background(), id)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if result.Status != StatusActive || result.PreviousStatus != StatusDraft {
		t.Errorf("result = %+v", result)
	}
	if result.ReactivatedEnrollments != 0 {
		t.Errorf("draft activation should not touch enrollments, got %d", result.ReactivatedEnrollments)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestActivateFromPausedReactivatesEnrollments(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	id := uuid.New()
	expectGet(mock, id, StatusPaused)
	mock.ExpectExec(`UPDATE crm_sequences SET status`).
		WithArgs(string(StatusActive), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE crm_subscriber_sequences SET status = 'active'`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 7))

	result, err := NewLifecycle(store).Activate(context.Background(), id)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if result.PreviousStatus != StatusPaused {
		t.Errorf("result = %+v", result)
	}
	if result.ReactivatedEnrollments != 7 {
		t.Errorf("reactivated = %d, want 7", result.ReactivatedEnrollments)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestActivateInvalidTransition(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	id := uuid.New()
	expectGet(mock, id, StatusActive)

	_, err := NewLifecycle(store).Activate(context.Background(), id)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestActivateNotFound(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, name, description, status, trigger_type`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewLifecycle(store).Activate(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
