package subscriber

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func setupTestDB(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewStore(db, 2), mock, func() { db.Close() }
}

func TestLookupByEmailsCompleteness(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	id1 := uuid.New()
	id2 := uuid.New()

	// lookupBatch=2, three unique emails after normalization -> two queries.
	mock.ExpectQuery(`SELECT id, LOWER\(email\) FROM crm_subscribers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(id1, "alice@example.org").
			AddRow(id2, "bob@example.org"))
	mock.ExpectQuery(`SELECT id, LOWER\(email\) FROM crm_subscribers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}))

	result, err := store.LookupByEmails(context.Background(), []string{
		"Alice@Example.org",
		" bob@example.org ",
		"ALICE@EXAMPLE.ORG", // duplicate after normalization
		"ghost@example.org",
	})
	if err != nil {
		t.Fatalf("LookupByEmails: %v", err)
	}

	if len(result.IDs) != 2 {
		t.Errorf("IDs = %v, want 2 entries", result.IDs)
	}
	if len(result.NotFound) != 1 || result.NotFound[0] != "ghost@example.org" {
		t.Errorf("NotFound = %v, want [ghost@example.org]", result.NotFound)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLookupByEmailsEmptyInput(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	result, err := store.LookupByEmails(context.Background(), nil)
	if err != nil {
		t.Fatalf("LookupByEmails: %v", err)
	}
	if len(result.IDs) != 0 || len(result.NotFound) != 0 {
		t.Errorf("empty input should resolve to nothing, got %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no query should run for empty input: %v", err)
	}
}

func TestSearchWithFilters(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	id := uuid.New()
	mock.ExpectQuery(`SELECT id FROM crm_subscribers WHERE 1=1 AND \(email ILIKE \$1 OR first_name ILIKE \$1 OR last_name ILIKE \$1 OR company ILIKE \$1\) AND status = ANY\(\$2\) ORDER BY created_at DESC LIMIT \$3`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))

	ids, err := store.Search(context.Background(), SearchFilter{
		Search:   "pizza",
		Statuses: []string{"active"},
	}, 100)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("ids = %v", ids)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSearchNoFilter(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id FROM crm_subscribers WHERE 1=1 ORDER BY created_at DESC LIMIT \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()).AddRow(uuid.New()))

	ids, err := store.Search(context.Background(), SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ids = %v", ids)
	}
}
