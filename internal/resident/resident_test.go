package resident

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/guard"
	"github.com/yanizio/civitas/internal/tenant"
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

func TestStoreInsert(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO resident`)).
		WithArgs(uint64(1), sqlmock.AnyArg(), "Maria", "maria@example.org").
		WillReturnResult(sqlmock.NewResult(7, 1))

	r := &Resident{CityScope: guard.CityScope{CityID: 1}, Name: "Maria", Email: "maria@example.org"}
	if err := s.Insert(context.Background(), r); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if r.ID != 7 {
		t.Errorf("id = %d", r.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestStoreInsert_Duplicate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO resident`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	r := &Resident{CityScope: guard.CityScope{CityID: 1}, Name: "Maria", Email: "maria@example.org"}
	if err := s.Insert(context.Background(), r); err != ErrDuplicate {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestStoreInsert_NoCity(t *testing.T) {
	s, _ := newMock(t)
	if err := s.Insert(context.Background(), &Resident{Name: "x", Email: "x@example.org"}); err != guard.ErrCityRequired {
		t.Fatalf("err = %v", err)
	}
}

type fakeStore struct {
	rows []*Resident
	dup  bool
}

func (f *fakeStore) Insert(_ context.Context, r *Resident) error {
	if f.dup {
		return ErrDuplicate
	}
	r.ID = uint64(len(f.rows) + 1)
	f.rows = append(f.rows, r)
	return nil
}

type bairros map[uint64]uint64

func (b bairros) NeighborhoodCity(_ context.Context, id uint64) (uint64, error) {
	if c, ok := b[id]; ok {
		return c, nil
	}
	return 0, city.ErrNotFound
}

var santos = &city.City{ID: 1, Slug: "santos", Status: city.StatusActive}

func post(h http.Handler, ctx context.Context, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func payloadBound() context.Context {
	return tenant.Detached(context.Background(), tenant.Resolved{City: santos, Source: tenant.SourcePayload})
}

func TestRegister(t *testing.T) {
	st := &fakeStore{}
	h := NewHandler(st, bairros{10: 1}, nil, zap.NewNop())

	rec := post(h, payloadBound(), `{"city_slug":"santos","name":" Maria ","email":"Maria@Example.org","bairro_id":10}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(st.rows) != 1 {
		t.Fatalf("rows = %d", len(st.rows))
	}
	got := st.rows[0]
	if got.CityID != 1 || got.Name != "Maria" || got.Email != "maria@example.org" {
		t.Errorf("row = %+v", got)
	}
}

func TestRegister_Rejections(t *testing.T) {
	cases := []struct {
		name string
		ctx  context.Context
		st   *fakeStore
		body string
		want int
	}{
		{"foreign bairro", payloadBound(), &fakeStore{}, `{"name":"Ana","email":"ana@example.org","bairro_id":20}`, http.StatusUnprocessableEntity},
		{"bad email", payloadBound(), &fakeStore{}, `{"name":"Ana","email":"nope"}`, http.StatusUnprocessableEntity},
		{"no tenant", context.Background(), &fakeStore{}, `{"name":"Ana","email":"ana@example.org"}`, http.StatusBadRequest},
		{"duplicate", payloadBound(), &fakeStore{dup: true}, `{"name":"Ana","email":"ana@example.org"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(tc.st, bairros{10: 1, 20: 2}, nil, zap.NewNop())
			rec := post(h, tc.ctx, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body)
			}
			if tc.want == http.StatusConflict {
				var body struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal(rec.Body.Bytes(), &body)
				if body.Error != AlreadyRegistered {
					t.Errorf("code = %q", body.Error)
				}
			}
		})
	}
}
