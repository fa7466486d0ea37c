package handoff

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/osnovaresurs/leadbot/internal/session"
)

func TestArchiveSaveInsertsLead(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO lead_requests").
		WithArgs(sqlmock.AnyArg(), int64(42), "Иван", "ул. Ленина 5", "5000 литров", "+79991234567", "Заправка газгольдера").
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := NewArchive(db)
	if err := a.Save(context.Background(), 42, "Иван", fullRecord); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestArchiveSaveWrapsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO lead_requests").WillReturnError(errors.New("connection refused"))

	a := NewArchive(db)
	if err := a.Save(context.Background(), 42, "Иван", fullRecord); err == nil {
		t.Fatalf("expected insert error")
	}
}

func TestArchiveNilIsNoOp(t *testing.T) {
	var a *Archive
	if err := a.Save(context.Background(), 42, "Иван", session.Intake{}); err != nil {
		t.Fatalf("nil archive must be a no-op: %v", err)
	}
	if err := NewArchive(nil).Save(context.Background(), 42, "Иван", session.Intake{}); err != nil {
		t.Fatalf("nil db must be a no-op: %v", err)
	}
}
