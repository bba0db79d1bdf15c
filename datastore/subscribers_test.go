package datastore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func subscriberRows(extraColumns ...string) *sqlmock.Rows {
	columns := []string{"email", "city", "subscribed_at", "updated_at", "paused", "pause_reason", "last_sent_at", "welcome_sent_at"}
	return sqlmock.NewRows(append(columns, extraColumns...))
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Pat@Example.COM", "pat@example.com"},
		{"  pat@example.com  ", "pat@example.com"},
		{"pat@example.com", "pat@example.com"},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.input); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestUpsert_NewSubscriber(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO subscribers").
		WithArgs("pat@example.com", "Lisbon", sqlmock.AnyArg()).
		WillReturnRows(subscriberRows("is_new").
			AddRow("pat@example.com", "Lisbon", now, now, false, "", nil, nil, true))

	repo := NewSubscriberRepository(db)
	isNew, sub, err := repo.Upsert(context.Background(), "  Pat@Example.com ", "Lisbon")
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if !isNew {
		t.Error("Upsert() isNew = false, want true for fresh email")
	}
	if sub.Email != "pat@example.com" {
		t.Errorf("Upsert() email = %q, want normalized form", sub.Email)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsert_ExistingSubscriberKeepsPausedState(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO subscribers").
		WithArgs("pat@example.com", "Porto", sqlmock.AnyArg()).
		WillReturnRows(subscriberRows("is_new").
			AddRow("pat@example.com", "Porto", now.Add(-48*time.Hour), now, true, "Bounced", nil, nil, false))

	repo := NewSubscriberRepository(db)
	isNew, sub, err := repo.Upsert(context.Background(), "pat@example.com", "Porto")
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if isNew {
		t.Error("Upsert() isNew = true, want false for existing email")
	}
	if !sub.Paused || sub.PauseReason != "Bounced" {
		t.Error("Upsert() should not clear paused state on city change")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFindByEmail_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM subscribers WHERE email").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	repo := NewSubscriberRepository(db)
	_, err := repo.FindByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByEmail() error = %v, want ErrNotFound", err)
	}
}

func TestSetPaused_DefaultsReason(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery("UPDATE subscribers").
		WithArgs("pat@example.com", true, "Paused by admin", sqlmock.AnyArg()).
		WillReturnRows(subscriberRows().
			AddRow("pat@example.com", "Lisbon", now, now, true, "Paused by admin", nil, nil))

	repo := NewSubscriberRepository(db)
	sub, err := repo.SetPaused(context.Background(), "pat@example.com", true, "  ")
	if err != nil {
		t.Fatalf("SetPaused() error: %v", err)
	}
	if sub.PauseReason != "Paused by admin" {
		t.Errorf("SetPaused() reason = %q, want default", sub.PauseReason)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSetPaused_ResumeClearsReason(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery("UPDATE subscribers").
		WithArgs("pat@example.com", false, "", sqlmock.AnyArg()).
		WillReturnRows(subscriberRows().
			AddRow("pat@example.com", "Lisbon", now, now, false, "", nil, nil))

	repo := NewSubscriberRepository(db)
	sub, err := repo.SetPaused(context.Background(), "pat@example.com", false, "should be ignored")
	if err != nil {
		t.Fatalf("SetPaused() error: %v", err)
	}
	if sub.Paused || sub.PauseReason != "" {
		t.Error("SetPaused(false) should clear paused flag and reason")
	}
}

func TestSetPaused_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("UPDATE subscribers").
		WillReturnError(sql.ErrNoRows)

	repo := NewSubscriberRepository(db)
	_, err := repo.SetPaused(context.Background(), "ghost@example.com", true, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetPaused() error = %v, want ErrNotFound", err)
	}
}

func TestList_ActiveOnly(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT (.+) FROM subscribers").
		WithArgs(false, 2, 0).
		WillReturnRows(subscriberRows().
			AddRow("a@example.com", "Lisbon", now, now, false, "", nil, nil).
			AddRow("b@example.com", "Porto", now, now, false, "", nil, nil))

	repo := NewSubscriberRepository(db)
	page, err := repo.List(context.Background(), false, 2, 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("List() total = %d, want 3", page.Total)
	}
	if len(page.Subscribers) != 2 {
		t.Errorf("List() page size = %d, want 2", len(page.Subscribers))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListActive(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	sentAt := now.Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM subscribers WHERE paused = FALSE").
		WillReturnRows(subscriberRows().
			AddRow("a@example.com", "Lisbon", now, now, false, "", sentAt, sentAt))

	repo := NewSubscriberRepository(db)
	subs, err := repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive() error: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("ListActive() returned %d subscribers, want 1", len(subs))
	}
	if subs[0].LastSentAt == nil || !subs[0].LastSentAt.Equal(sentAt) {
		t.Error("ListActive() did not scan last_sent_at")
	}
}

func TestMarkDigestSent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE subscribers SET last_sent_at").
		WithArgs("pat@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSubscriberRepository(db)
	if err := repo.MarkDigestSent(context.Background(), "Pat@Example.com"); err != nil {
		t.Fatalf("MarkDigestSent() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRemove(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM subscribers").
		WithArgs("pat@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSubscriberRepository(db)
	if err := repo.Remove(context.Background(), "pat@example.com"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
}
