// internal/tenant/tenant.go
//
// Tenant resolution outcomes.
//
// Context
// -------
// Every request and every tenant job runs against exactly one city.  The
// resolver reports its verdict as an Outcome, which is either Resolved
// (a city plus the Source that produced it) or Unresolved (the reason no
// trustworthy city was found).  There is no third state and no nil city.
//
// Source matters downstream: canonical routes accept only explicit
// sources, and draft cities are visible only through the admin switcher.
package tenant

import (
	"errors"

	"github.com/yanizio/civitas/internal/city"
)

// Source names the signal that produced a Resolved outcome.
type Source string

const (
	SourcePath          Source = "path"
	SourceHeader        Source = "header"
	SourceDomain        Source = "domain"
	SourcePayload       Source = "payload"
	SourceFallback      Source = "fallback"
	SourceQueueJob      Source = "queue_job"
	SourceAdminSwitcher Source = "admin_switcher"
)

// Explicit reports whether the caller actually named the city.  Only the
// configured default city is implicit.
func (s Source) Explicit() bool { return s != SourceFallback }

func (s Source) String() string { return string(s) }

var (
	// ErrTenantRequired means no trustworthy signal named a city and the
	// fallback is disabled or unusable.
	ErrTenantRequired = errors.New("tenant required")

	// ErrLookupFailed wraps control-plane failures during resolution.
	ErrLookupFailed = errors.New("tenant lookup failed")
)

// Outcome is Resolved or Unresolved.
type Outcome interface {
	outcome()
}

// Resolved binds a city to the execution.  City is shared and must be
// treated as read-only.
type Resolved struct {
	City   *city.City
	Source Source
}

// Unresolved carries the reason resolution failed.
type Unresolved struct {
	Err error
}

func (Resolved) outcome()   {}
func (Unresolved) outcome() {}

// CityID is shorthand for r.City.ID.
func (r Resolved) CityID() uint64 { return r.City.ID }

// Input gathers the raw signals for one resolution attempt.  Empty fields
// are absent signals.
type Input struct {
	PathSlug    string
	Header      string
	Host        string
	PayloadSlug string
}
