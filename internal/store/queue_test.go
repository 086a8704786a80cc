package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/pxlchk1/trailnotify/internal/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func queueRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "channel", "type", "payload", "transactional",
		"scheduled_at", "status", "suppression_reason",
		"attempts", "last_attempt_at", "error_message",
		"metadata", "created_at", "sent_at",
	})
}

func TestQueueRepo_Enqueue(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueueRepo(db)
	item := &domain.QueueItem{
		ID:          "q-001",
		UserID:      "user-001",
		Channel:     domain.ChannelPush,
		Type:        "onboarding_day01_welcome",
		Payload:     domain.Payload{Title: "Welcome", Body: "Plan your first trip"},
		ScheduledAt: time.Now(),
		Status:      domain.StatusPending,
		Metadata:    map[string]string{},
	}

	mock.ExpectExec(`INSERT INTO notify_queue`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestQueueRepo_Enqueue_DuplicateIsSilent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueueRepo(db)

	// ON CONFLICT DO NOTHING reports zero rows affected, not an error.
	mock.ExpectExec(`INSERT INTO notify_queue`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	item := &domain.QueueItem{
		ID: "q-002", UserID: "user-001", Channel: domain.ChannelPush,
		Type: "trip_reminder_3d", Status: domain.StatusPending,
		ScheduledAt: time.Now(),
		Metadata:    map[string]string{"trip_id": "trip-9"},
	}
	if err := repo.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("duplicate enqueue must not error: %v", err)
	}
}

func TestQueueRepo_ClaimDue(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueueRepo(db)
	now := time.Now()

	rows := queueRows().
		AddRow("q-001", "user-001", "push", "onboarding_day01_welcome",
			[]byte(`{"title":"Welcome","body":"Plan your first trip"}`), false,
			now, "in_flight", "", 0, nil, "", []byte(`{}`), now, nil).
		AddRow("q-002", "user-002", "push", "trip_reminder_1d",
			[]byte(`{"title":"Trip tomorrow","body":"Check your packing list"}`), true,
			now, "in_flight", "", 0, nil, "", []byte(`{"trip_id":"trip-9"}`), now, nil)

	mock.ExpectQuery(`WITH claimed AS`).
		WithArgs("worker-1", "push", 200).
		WillReturnRows(rows)

	items, err := repo.ClaimDue(context.Background(), domain.ChannelPush, 200, "worker-1")
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 claimed items, got %d", len(items))
	}
	if items[0].Status != domain.StatusInFlight {
		t.Errorf("claimed item status = %s, want in_flight", items[0].Status)
	}
	if items[1].TripID() != "trip-9" {
		t.Errorf("TripID() = %q, want trip-9", items[1].TripID())
	}
}

func TestQueueRepo_TerminalTransitions(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueueRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`SET status = 'sent'`).
		WithArgs("q-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.MarkSent(ctx, "q-001"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	mock.ExpectExec(`SET status = 'suppressed'`).
		WithArgs("q-002", "bounced").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.MarkSuppressed(ctx, "q-002", domain.ReasonBounced); err != nil {
		t.Fatalf("MarkSuppressed: %v", err)
	}

	mock.ExpectExec(`SET status = 'failed'`).
		WithArgs("q-003", "provider timeout").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.MarkFailed(ctx, "q-003", "provider timeout"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestQueueRepo_Reschedule(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueueRepo(db)
	nextAt := time.Now().Add(30 * time.Minute)

	mock.ExpectExec(`SET status = 'pending'`).
		WithArgs("q-001", "ses throttled", nextAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Reschedule(context.Background(), "q-001", "ses throttled", nextAt); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
}

func TestQueueRepo_SuppressPendingForTrip(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueueRepo(db)

	// Empty type matches every pending item for the trip.
	mock.ExpectExec(`SET status = 'suppressed'`).
		WithArgs("trip-9", "trip_cancelled", "").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.SuppressPendingForTrip(context.Background(), "trip-9", "", domain.ReasonTripCancelled)
	if err != nil {
		t.Fatalf("SuppressPendingForTrip: %v", err)
	}
	if n != 3 {
		t.Errorf("suppressed = %d, want 3", n)
	}
}

func TestQueueRepo_ReclaimStale(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueueRepo(db)

	mock.ExpectExec(`SET status = 'pending'`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`SET status = 'failed'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	requeued, failed, err := repo.ReclaimStale(context.Background(), 10*time.Minute, 3)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if requeued != 2 || failed != 1 {
		t.Errorf("requeued=%d failed=%d, want 2 and 1", requeued, failed)
	}
}

func TestQueueRepo_HasRecentItem(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueueRepo(db)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-001", "inactive_comeback", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	found, err := repo.HasRecentItem(context.Background(), "user-001", "inactive_comeback", time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("HasRecentItem: %v", err)
	}
	if !found {
		t.Error("expected recent item to be found")
	}
}
