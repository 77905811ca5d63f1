package db

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestInitSchema(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS write_ledger").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE UNIQUE INDEX IF NOT EXISTS idx_write_ledger_session").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := InitSchema(sqlDB); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("mock expectations: %v", err)
	}
}

func TestInitSchema_Error(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer sqlDB.Close()

	boom := errors.New("read-only")
	mock.ExpectExec("CREATE TABLE").WillReturnError(boom)

	if err := InitSchema(sqlDB); !errors.Is(err, boom) {
		t.Errorf("InitSchema = %v, want wrapped %v", err, boom)
	}
}
