// Package resident registers citizens with a city.
//
// Registration is the one write that arrives before the caller has any
// tenant context, so the city usually comes from "city_slug" in the JSON
// body.  The route sits behind tenant.RequireTenant; the handler itself
// only sees a bound city.
//
//	POST /api/register
//	{"city_slug": "santos", "name": "Maria", "email": "maria@example.org", "bairro_id": 12}
package resident

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/form"
	"github.com/yanizio/civitas/internal/guard"
	"github.com/yanizio/civitas/internal/httperr"
)

// ErrDuplicate is returned when the email is already registered in the
// city.
var ErrDuplicate = errors.New("resident already registered")

// AlreadyRegistered is the error code answered with 409.
const AlreadyRegistered = "ALREADY_REGISTERED"

const mysqlDuplicateEntry = 1062

// Resident mirrors one row in `resident`.
type Resident struct {
	guard.CityScope
	ID       uint64  `db:"id"        json:"id"`
	BairroID *uint64 `db:"bairro_id" json:"bairro_id,omitempty"`
	Name     string  `db:"name"      json:"name"`
	Email    string  `db:"email"     json:"email"`
}

// Store wraps the control-plane handle.
type Store struct{ db *sqlx.DB }

// NewStore returns a Store.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Insert writes r and sets its id.
func (s *Store) Insert(ctx context.Context, r *Resident) error {
	if r.CityID == 0 {
		return guard.ErrCityRequired
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO resident (city_id, bairro_id, name, email) VALUES (?, ?, ?, ?)`,
		r.CityID, r.BairroID, r.Name, r.Email)
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return ErrDuplicate
	}
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

// Inserter is satisfied by *Store.
type Inserter interface {
	Insert(ctx context.Context, r *Resident) error
}

// Handler serves POST /api/register.
type Handler struct {
	store    Inserter
	hoods    guard.NeighborhoodLookup
	validate *validator.Validate
	log      *zap.Logger
}

// NewHandler wires the registration endpoint.
func NewHandler(store Inserter, hoods guard.NeighborhoodLookup, v *validator.Validate, log *zap.Logger) *Handler {
	if v == nil {
		v = form.NewValidator()
	}
	if log == nil {
		log = zap.L()
	}
	return &Handler{store: store, hoods: hoods, validate: v, log: log}
}

type registerRequest struct {
	CitySlug string `json:"city_slug"`
	BairroID uint64 `json:"bairro_id"`
	Name     string `json:"name"  validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email,max=190"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in registerRequest
	if err := form.HandleSubmit(r, &in, h.validate); err != nil {
		form.WriteError(w, err)
		return
	}

	res := &Resident{Name: strings.TrimSpace(in.Name), Email: strings.ToLower(in.Email)}
	if in.BairroID != 0 {
		res.BairroID = &in.BairroID
	}

	fields, err := guard.CheckReferences(ctx, h.hoods, res, guard.Ref{Field: "bairro_id", NeighborhoodID: in.BairroID})
	switch {
	case errors.Is(err, guard.ErrCityRequired):
		httperr.Write(w, http.StatusBadRequest, httperr.TenantRequired)
		return
	case err != nil:
		h.log.Error("bairro lookup failed", zap.Error(err))
		httperr.Write(w, http.StatusServiceUnavailable, httperr.Internal)
		return
	case len(fields) > 0:
		form.WriteError(w, form.Invalid(fields))
		return
	}

	if err := guard.Assign(ctx, res); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.TenantRequired)
		return
	}
	err = h.store.Insert(ctx, res)
	if errors.Is(err, ErrDuplicate) {
		httperr.Write(w, http.StatusConflict, AlreadyRegistered)
		return
	}
	if err != nil {
		h.log.Error("resident insert failed", zap.Uint64("city_id", res.CityID), zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
		return
	}

	h.log.Info("resident registered", zap.Uint64("city_id", res.CityID), zap.Uint64("resident_id", res.ID))
	httperr.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": res})
}
