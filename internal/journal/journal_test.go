package journal

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
)

func testRecord() *Record {
	return &Record{
		ID:            "rec-1",
		AccountID:     "default",
		Symbol:        "BTC",
		Side:          "long",
		Quantity:      2,
		EntryPrice:    100,
		ExitPrice:     110,
		RealizedPnl:   20,
		UnrealizedPnl: 0,
		NetPnl:        19.8,
		AutoTrigger:   "TARGET",
		ClosedAt:      time.Now(),
	}
}

func TestConsoleJournal_RecordClose(t *testing.T) {
	j := NewConsoleJournal(zap.NewNop())

	if err := j.RecordClose(context.Background(), testRecord()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}
}

func TestPostgresJournal_RecordClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	j := newPostgresJournalWithDB(db, zap.NewNop())
	rec := testRecord()

	mock.ExpectExec("INSERT INTO closed_trades").
		WithArgs(
			rec.ID,
			rec.AccountID,
			rec.Symbol,
			rec.Side,
			rec.Quantity,
			rec.EntryPrice,
			rec.ExitPrice,
			rec.RealizedPnl,
			rec.UnrealizedPnl,
			rec.NetPnl,
			rec.AutoTrigger,
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := j.RecordClose(context.Background(), rec); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresJournal_RecordClose_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	j := newPostgresJournalWithDB(db, zap.NewNop())

	mock.ExpectExec("INSERT INTO closed_trades").
		WillReturnError(sqlmock.ErrCancelled)

	if err := j.RecordClose(context.Background(), testRecord()); err == nil {
		t.Error("expected error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresJournal_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	j := newPostgresJournalWithDB(db, zap.NewNop())
	mock.ExpectClose()

	if err := j.Close(); err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestJournal_Interface(t *testing.T) {
	var _ Journal = NewConsoleJournal(zap.NewNop())

	db, _, _ := sqlmock.New()
	defer db.Close()
	var _ Journal = newPostgresJournalWithDB(db, zap.NewNop())
}
