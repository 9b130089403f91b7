// Package jobs runs background work with an explicit tenancy contract.
//
// Every job type declares, through Contract(), whether it runs for one
// city (TenantContract) or across all of them (GlobalContract).  Contract
// is a sealed interface, so no third kind can exist, and a job type that
// declares nothing does not satisfy Job and cannot be registered.
//
// Tenant jobs carry their city id, module key, and trace id through
// serialization by embedding Tenancy.  The dispatcher stamps the city of
// the enqueuing request and a fresh trace id; EnsureTenantContext binds
// that city again on the worker before the job body runs.
package jobs

import "context"

// Contract is TenantContract or GlobalContract.
type Contract interface {
	contract()
}

// TenantContract is declared by jobs that touch one city's data.  These
// three fields are all the worker middleware reads.
type TenantContract struct {
	CityID    uint64
	ModuleKey string
	TraceID   string
}

// GlobalContract is declared by jobs that intentionally run without a
// tenant.  Reason is required and shows up in conformance reports.
type GlobalContract struct {
	Reason string
}

func (TenantContract) contract() {}
func (GlobalContract) contract() {}

// Job is one unit of background work.  Implementations must be pointer
// types that round-trip through encoding/json.
type Job interface {
	Name() string
	Contract() Contract
	Handle(ctx context.Context) error
}

// Tenancy is embedded by tenant jobs.  ModuleKey is set by the job's
// constructor; CityID and TraceID are filled by the dispatcher when left
// empty.
type Tenancy struct {
	CityID    uint64 `json:"city_id"`
	ModuleKey string `json:"module_key,omitempty"`
	TraceID   string `json:"trace_id"`
}

// Contract implements Job.
func (t *Tenancy) Contract() Contract {
	return TenantContract{CityID: t.CityID, ModuleKey: t.ModuleKey, TraceID: t.TraceID}
}

func (t *Tenancy) stamp(cityID uint64, traceID string) {
	if t.CityID == 0 {
		t.CityID = cityID
	}
	if t.TraceID == "" {
		t.TraceID = traceID
	}
}

type stamper interface {
	stamp(cityID uint64, traceID string)
}
