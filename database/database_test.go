package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"upswatch/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return &DB{DB: mockDB}, mock
}

func TestRecordEventClosesThenOpens(t *testing.T) {
	// Closing any open event and opening the new one happen inside one
	// transaction, so there is never more than one open event per UPS.
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ups_events").
		WithArgs(sqlmock.AnyArg(), "ups").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO ups_events").
		WithArgs("ups", "ONBATT", "", sqlmock.AnyArg(), sqlmock.AnyArg(), "127.0.0.1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	event, err := db.RecordEvent("ups", models.EventOnBatt, "", "127.0.0.1")
	if err != nil {
		t.Fatalf("RecordEvent() error: %v", err)
	}
	if event.ID != 7 {
		t.Errorf("event ID = %d, want 7", event.ID)
	}
	if event.EndTZ != nil {
		t.Error("new event opened with an end timestamp")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("close-then-open ordering not honored: %v", err)
	}
}

func TestRecordEventRollsBackOnInsertFailure(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ups_events").
		WithArgs(sqlmock.AnyArg(), "ups").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO ups_events").
		WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	if _, err := db.RecordEvent("ups", models.EventOnline, "", ""); err == nil {
		t.Fatal("RecordEvent() succeeded, want error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("failed insert did not roll back the close: %v", err)
	}
}

func TestLastClosedDuration(t *testing.T) {
	db, mock := newMockDB(t)

	begin := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := begin.Add(5 * time.Minute)
	mock.ExpectQuery("SELECT timestamp_tz_begin, timestamp_tz_end").
		WithArgs("ups", pq.Array([]string{"ONBATT"}), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"timestamp_tz_begin", "timestamp_tz_end"}).
			AddRow(begin, end))

	d, err := db.LastClosedDuration("ups", []models.EventType{models.EventOnBatt}, time.Hour)
	if err != nil {
		t.Fatalf("LastClosedDuration() error: %v", err)
	}
	if d == nil || *d != 5*time.Minute {
		t.Errorf("LastClosedDuration() = %v, want 5m", d)
	}
}

func TestLastClosedDurationNoMatch(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT timestamp_tz_begin, timestamp_tz_end").
		WillReturnRows(sqlmock.NewRows([]string{"timestamp_tz_begin", "timestamp_tz_end"}))

	d, err := db.LastClosedDuration("ups", []models.EventType{models.EventOnBatt}, time.Hour)
	if err != nil {
		t.Fatalf("LastClosedDuration() error: %v", err)
	}
	if d != nil {
		t.Errorf("LastClosedDuration() = %v, want nil without a closed event", *d)
	}
}

func TestSeedNotificationSettingsDisabled(t *testing.T) {
	db, mock := newMockDB(t)

	for _, eventType := range models.EventTypes {
		mock.ExpectExec("INSERT INTO notification_settings").
			WithArgs(string(eventType)).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	if err := db.SeedNotificationSettings(); err != nil {
		t.Fatalf("SeedNotificationSettings() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("seeding did not cover every event type: %v", err)
	}
}

func TestRealpowerHrsMeanBetween(t *testing.T) {
	db, mock := newMockDB(t)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	mock.ExpectQuery(`AVG\(ups_realpower_hrs\)`).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(180.5))

	mean, err := db.RealpowerHrsMeanBetween(start, end)
	if err != nil {
		t.Fatalf("RealpowerHrsMeanBetween() error: %v", err)
	}
	if mean == nil || *mean != 180.5 {
		t.Errorf("RealpowerHrsMeanBetween() = %v, want 180.5", mean)
	}
}

func TestBackfillDailyRollup(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Date(2026, 3, 3, 0, 5, 0, 0, time.UTC)
	prevDay := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	midnight := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO ups_dynamic_data").
		WithArgs(prevDay, midnight).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := db.BackfillDailyRollup(now, time.UTC); err != nil {
		t.Fatalf("BackfillDailyRollup() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("backfill did not target the previous day: %v", err)
	}
}
