// components/reports/reports.go
//
// Reports component: citizens file a report ("denúncia") against the
// city in the URL.
//
//	POST /{region}/{city}/reports
//	{"category": "pothole", "description": "...", "bairro_id": 12,
//	 "latitude": -23.96, "longitude": -46.33}
//
// The row is stamped with the active city through guard.Assign, and a
// bairro or city_id that belongs to another city is answered with 422
// cross_tenant_reference.  After the insert a ReportFiled job notifies
// the city's contacts.
package reports

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/component"
	"github.com/yanizio/civitas/internal/form"
	"github.com/yanizio/civitas/internal/guard"
	"github.com/yanizio/civitas/internal/httperr"
	"github.com/yanizio/civitas/internal/jobs"
	"github.com/yanizio/civitas/internal/module"
	"github.com/yanizio/civitas/internal/report"
	"github.com/yanizio/civitas/internal/tasks"
	"github.com/yanizio/civitas/internal/tenant"
)

const enqueueTimeout = 5 * time.Second

var _ component.Component = (*Comp)(nil)

func init() { component.Register(&Comp{}) }

// Inserter is satisfied by *report.Store.
type Inserter interface {
	Insert(ctx context.Context, r *report.Report) error
}

// Comp implements component.Component.
type Comp struct {
	store    Inserter
	hoods    guard.NeighborhoodLookup
	jobs     *jobs.Dispatcher
	validate *validator.Validate
	log      *zap.Logger
}

func (c *Comp) Name() string   { return "reports" }
func (c *Comp) Module() string { return module.Reports }

func (c *Comp) Init(d component.Deps) error {
	if d.DB == nil || d.Neighborhoods == nil || d.Jobs == nil {
		return errors.New("reports needs a database, a bairro lookup, and a job dispatcher")
	}
	c.store = report.NewStore(d.DB)
	c.hoods = d.Neighborhoods
	c.jobs = d.Jobs
	c.validate = d.Validate
	if c.validate == nil {
		c.validate = form.NewValidator()
	}
	c.log = d.Log
	if c.log == nil {
		c.log = zap.L()
	}
	return nil
}

func (c *Comp) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", c.create)
	return r
}

type createRequest struct {
	CityID      uint64   `json:"city_id"`
	BairroID    uint64   `json:"bairro_id"`
	Category    string   `json:"category"    validate:"required,max=64"`
	Description string   `json:"description" validate:"required,min=10,max=4000"`
	Latitude    *float64 `json:"latitude"    validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude"   validate:"omitempty,gte=-180,lte=180"`
}

func (c *Comp) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in createRequest
	if err := form.HandleSubmit(r, &in, c.validate); err != nil {
		form.WriteError(w, err)
		return
	}

	rep := &report.Report{
		CityScope:   guard.CityScope{CityID: in.CityID},
		Category:    in.Category,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
	}
	if in.BairroID != 0 {
		rep.BairroID = &in.BairroID
	}

	fields, err := guard.CheckReferences(ctx, c.hoods, rep, guard.Ref{Field: "bairro_id", NeighborhoodID: in.BairroID})
	switch {
	case errors.Is(err, guard.ErrCityRequired):
		httperr.Write(w, http.StatusBadRequest, httperr.TenantRequired)
		return
	case err != nil:
		c.log.Error("bairro lookup failed", zap.Error(err))
		httperr.Write(w, http.StatusServiceUnavailable, httperr.Internal)
		return
	case len(fields) > 0:
		form.WriteError(w, form.Invalid(fields))
		return
	}

	if err := guard.Assign(ctx, rep); err != nil {
		httperr.Write(w, http.StatusBadRequest, httperr.TenantRequired)
		return
	}
	if err := c.store.Insert(ctx, rep); err != nil {
		c.log.Error("report insert failed", zap.Uint64("city_id", rep.CityID), zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
		return
	}

	// The report is stored; a client hanging up now must not lose the
	// notification.
	bound, _ := tenant.FromContext(ctx)
	jctx, cancel := context.WithTimeout(tenant.Detached(ctx, bound), enqueueTimeout)
	defer cancel()
	if err := c.jobs.Enqueue(jctx, tasks.NewReportFiled(rep.ID, rep.Category, rep.Description)); err != nil {
		c.log.Warn("report notification not queued", zap.Uint64("report_id", rep.ID), zap.Error(err))
	}

	httperr.JSON(w, http.StatusCreated, map[string]any{"success": true, "data": rep})
}
