package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dokzlo13/visbind/internal/binding"
)

var columns = []string{"id", "timestamp", "mode", "binding_id", "widget_id", "point_key", "oid", "value", "session_id"}

func newLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	l := New(db)
	l.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	return l, mock
}

func TestRecord(t *testing.T) {
	at := time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		write binding.Write
		query string
		args  []driver.Value
	}{
		{
			name:  "write through",
			write: binding.Write{Mode: binding.WriteThrough, BindingID: "b1", Owner: "lights", Key: "1", OID: "light.0.on", Value: true, At: at},
			query: "INSERT INTO write_ledger",
			args:  []driver.Value{at.UnixMilli(), "write_through", "b1", "lights", "1", "light.0.on", "true", ""},
		},
		{
			name:  "commit ignores a repeated session",
			write: binding.Write{Mode: binding.WriteCommit, BindingID: "b1", Key: "setpoint", OID: "hvac.0.set", Value: 21.5, SessionID: "s1"},
			query: "INSERT OR IGNORE INTO write_ledger",
			args:  []driver.Value{int64(1715342400000), "commit", "b1", "", "setpoint", "hvac.0.set", "21.5", "s1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, mock := newLedger(t)

			mock.ExpectExec(regexp.QuoteMeta(tt.query)).
				WithArgs(tt.args...).
				WillReturnResult(sqlmock.NewResult(1, 1))

			if err := l.Record(context.Background(), tt.write); err != nil {
				t.Fatalf("Record: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("mock expectations: %v", err)
			}
		})
	}
}

func TestRecord_DBError(t *testing.T) {
	l, mock := newLedger(t)
	mock.ExpectExec("INSERT INTO write_ledger").WillReturnError(errors.New("disk full"))

	err := l.Record(context.Background(), binding.Write{Mode: binding.WriteThrough, OID: "x", Value: 1})
	if err == nil {
		t.Fatal("Record returned nil on database error")
	}
}

func TestRecent(t *testing.T) {
	l, mock := newLedger(t)

	rows := sqlmock.NewRows(columns).
		AddRow(2, int64(1715342400000), "commit", "b1", "hall", "setpoint", "hvac.0.set", "21.5", "s1").
		AddRow(1, int64(1715338800000), "write_through", "b1", nil, nil, "light.0.on", "true", nil)
	mock.ExpectQuery("SELECT (.+) FROM write_ledger").WithArgs(10).WillReturnRows(rows)

	got, err := l.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d entries", len(got))
	}
	first := got[0]
	if first.Mode != binding.WriteCommit || first.WidgetID != "hall" || first.SessionID != "s1" || first.Value != 21.5 {
		t.Errorf("entry = %+v", first)
	}
	if !first.Timestamp.Equal(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", first.Timestamp)
	}
	if got[1].WidgetID != "" || got[1].Value != true {
		t.Errorf("entry = %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("mock expectations: %v", err)
	}
}

func TestByPoint(t *testing.T) {
	l, mock := newLedger(t)

	rows := sqlmock.NewRows(columns).
		AddRow(3, int64(1715342400000), "write_through", "b2", "sw", "2", "light.0.level", "255", "")
	mock.ExpectQuery("SELECT (.+) FROM write_ledger WHERE oid").
		WithArgs("light.0.level", 5).
		WillReturnRows(rows)

	got, err := l.ByPoint(context.Background(), "light.0.level", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Value != 255.0 || got[0].Key != "2" {
		t.Errorf("ByPoint = %+v", got)
	}
}

func TestByPoint_QueryError(t *testing.T) {
	l, mock := newLedger(t)
	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrConnDone)

	if _, err := l.ByPoint(context.Background(), "x", 5); !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("ByPoint = %v, want ErrConnDone", err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	l, mock := newLedger(t)

	cutoff := time.Date(2024, 5, 9, 12, 0, 0, 0, time.UTC).UnixMilli()
	mock.ExpectExec("DELETE FROM write_ledger").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := l.DeleteOlderThan(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("deleted %d, want 4", n)
	}
}
