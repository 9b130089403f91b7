// internal/guard/guard.go
//
// Write-path tenant guard.
//
// Context
// -------
// Every tenant-scoped row carries a city_id.  Assign fills it before an
// insert:
//
//   • explicit city_id already set  → kept as is, never overwritten
//   • tenant bound on the context   → copied from the binding
//   • neither                       → ErrCityRequired, nothing is written
//
// CheckReferences is the companion validation step.  It reports, as
// field errors rather than a hard failure, references to a city or bairro
// that belong to another tenant.
//
// Read-path filtering is left to the queries themselves.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/tenant"
)

// ErrCityRequired aborts the creation of a scoped row with no tenant.
var ErrCityRequired = errors.New("tenant-scoped record requires explicit city_id")

// CodeCrossTenant is the field error code for foreign references.
const CodeCrossTenant = "cross_tenant_reference"

// Scoped is implemented by every tenant-scoped row.
type Scoped interface {
	TenantCityID() uint64
	SetTenantCityID(id uint64)
}

// CityScope is embedded by row structs to satisfy Scoped.
type CityScope struct {
	CityID uint64 `db:"city_id" json:"city_id,omitempty"`
}

func (c *CityScope) TenantCityID() uint64      { return c.CityID }
func (c *CityScope) SetTenantCityID(id uint64) { c.CityID = id }

// Assign populates e's city id per the rules above.
func Assign(ctx context.Context, e Scoped) error {
	if e.TenantCityID() != 0 {
		return nil
	}
	if id, ok := tenant.CityIDFrom(ctx); ok {
		e.SetTenantCityID(id)
		return nil
	}
	return ErrCityRequired
}

// NeighborhoodLookup returns the owning city of a bairro.  *city.Store
// satisfies it.
type NeighborhoodLookup interface {
	NeighborhoodCity(ctx context.Context, id uint64) (uint64, error)
}

// FieldError is one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ref names a bairro referenced by field.  Zero ids are skipped.
type Ref struct {
	Field          string
	NeighborhoodID uint64
}

// CheckReferences validates e against the active tenant, or against e's
// own city when no tenant is bound.  err is only set for lookup failures.
func CheckReferences(ctx context.Context, lookup NeighborhoodLookup, e Scoped, refs ...Ref) ([]FieldError, error) {
	owner := e.TenantCityID()
	var out []FieldError

	if active, ok := tenant.CityIDFrom(ctx); ok {
		if owner != 0 && owner != active {
			out = append(out, FieldError{
				Field:   "city_id",
				Code:    CodeCrossTenant,
				Message: fmt.Sprintf("city %d is not the active city", owner),
			})
		}
		owner = active
	}
	if owner == 0 {
		return nil, ErrCityRequired
	}

	for _, ref := range refs {
		if ref.NeighborhoodID == 0 {
			continue
		}
		got, err := lookup.NeighborhoodCity(ctx, ref.NeighborhoodID)
		if errors.Is(err, city.ErrNotFound) {
			out = append(out, FieldError{
				Field:   ref.Field,
				Code:    "not_found",
				Message: fmt.Sprintf("bairro %d does not exist", ref.NeighborhoodID),
			})
			continue
		}
		if err != nil {
			return nil, err
		}
		if got != owner {
			out = append(out, FieldError{
				Field:   ref.Field,
				Code:    CodeCrossTenant,
				Message: fmt.Sprintf("bairro %d belongs to another city", ref.NeighborhoodID),
			})
		}
	}
	return out, nil
}
