// internal/report/report.go
//
// Citizen reports ("denúncias") and the queries behind the daily digest.
//
//	CREATE TABLE report       (id, city_id, bairro_id NULL, category, description,
//	                           latitude NULL, longitude NULL, status, created_at);
//	CREATE TABLE city_contact (city_id, email, digest);
//
// Every query takes the city id explicitly.  Rows are stamped through
// guard.Assign before Insert is called, so Insert refuses a zero city.
package report

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/civitas/internal/guard"
)

// Report mirrors one row in `report`.
type Report struct {
	guard.CityScope
	ID          uint64    `db:"id"          json:"id"`
	BairroID    *uint64   `db:"bairro_id"   json:"bairro_id,omitempty"`
	Category    string    `db:"category"    json:"category"`
	Description string    `db:"description" json:"description"`
	Latitude    *float64  `db:"latitude"    json:"latitude,omitempty"`
	Longitude   *float64  `db:"longitude"   json:"longitude,omitempty"`
	Status      string    `db:"status"      json:"status"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
}

// CategoryCount is one line of the digest.
type CategoryCount struct {
	Category string `db:"category"`
	Count    int    `db:"n"`
}

// Store wraps the control-plane handle.
type Store struct{ db *sqlx.DB }

// NewStore returns a Store.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Insert writes r and sets its id.
func (s *Store) Insert(ctx context.Context, r *Report) error {
	if r.CityID == 0 {
		return guard.ErrCityRequired
	}
	if r.Status == "" {
		r.Status = "open"
	}
	const q = `INSERT INTO report (city_id, bairro_id, category, description, latitude, longitude, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		r.CityID, r.BairroID, r.Category, r.Description, r.Latitude, r.Longitude, r.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = uint64(id)
	return nil
}

// Summary counts cityID's reports created at or after since, per category.
func (s *Store) Summary(ctx context.Context, cityID uint64, since time.Time) ([]CategoryCount, error) {
	const q = `SELECT category, COUNT(*) AS n
	             FROM report
	            WHERE city_id = ? AND created_at >= ?
	         GROUP BY category
	         ORDER BY n DESC, category`
	var out []CategoryCount
	err := s.db.SelectContext(ctx, &out, q, cityID, since)
	return out, err
}

// DigestContacts lists the addresses that receive cityID's digest.
func (s *Store) DigestContacts(ctx context.Context, cityID uint64) ([]string, error) {
	const q = `SELECT email FROM city_contact WHERE city_id = ? AND digest = TRUE ORDER BY email`
	var out []string
	err := s.db.SelectContext(ctx, &out, q, cityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return out, err
}

// PurgeExpiredOTP deletes one-time codes that expired before cutoff.
// The table is global; codes are issued before a city is known.
func (s *Store) PurgeExpiredOTP(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM otp_code WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
