package report

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/civitas/internal/guard"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "mysql")), mock
}

func TestInsert(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO report`)).
		WithArgs(uint64(1), sqlmock.AnyArg(), "pothole", "Buraco na Av. Ana Costa", sqlmock.AnyArg(), sqlmock.AnyArg(), "open").
		WillReturnResult(sqlmock.NewResult(42, 1))

	r := &Report{CityScope: guard.CityScope{CityID: 1}, Category: "pothole", Description: "Buraco na Av. Ana Costa"}
	if err := s.Insert(context.Background(), r); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if r.ID != 42 || r.Status != "open" {
		t.Errorf("report = %+v", r)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestInsert_RefusesZeroCity(t *testing.T) {
	s, _ := newMock(t)
	if err := s.Insert(context.Background(), &Report{Category: "x"}); !errors.Is(err, guard.ErrCityRequired) {
		t.Fatalf("err = %v, want ErrCityRequired", err)
	}
}

func TestSummary(t *testing.T) {
	s, mock := newMock(t)
	since := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE city_id = ? AND created_at >= ?`)).
		WithArgs(uint64(1), since).
		WillReturnRows(sqlmock.NewRows([]string{"category", "n"}).
			AddRow("pothole", 5).
			AddRow("lighting", 2))

	got, err := s.Summary(context.Background(), 1, since)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(got) != 2 || got[0].Category != "pothole" || got[0].Count != 5 {
		t.Errorf("summary = %+v", got)
	}
}

func TestDigestContacts(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM city_contact WHERE city_id = ?`)).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("ouvidoria@santos.example"))

	got, err := s.DigestContacts(context.Background(), 1)
	if err != nil || len(got) != 1 || got[0] != "ouvidoria@santos.example" {
		t.Fatalf("contacts = %v, %v", got, err)
	}
}

func TestPurgeExpiredOTP(t *testing.T) {
	s, mock := newMock(t)
	cutoff := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM otp_code WHERE expires_at < ?`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := s.PurgeExpiredOTP(context.Background(), cutoff)
	if err != nil || n != 7 {
		t.Fatalf("purged %d, %v", n, err)
	}
}
