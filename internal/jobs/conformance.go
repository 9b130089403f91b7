package jobs

import "fmt"

// Violation describes one job type with an unusable contract.
type Violation struct {
	Job    string
	Reason string
}

func (v Violation) String() string { return v.Job + ": " + v.Reason }

// Check validates the contract declared by j's type.  Tenant jobs are
// checked as prototypes, so an unset city id is expected here and is
// enforced on the worker instead.
func Check(j Job) error {
	name := j.Name()
	if name == "" {
		return fmt.Errorf("%w: %T has an empty name", ErrContractViolation, j)
	}
	switch c := j.Contract().(type) {
	case TenantContract:
		if _, ok := j.(stamper); !ok {
			return fmt.Errorf("%w: %s declares a tenant contract without embedding Tenancy", ErrContractViolation, name)
		}
	case GlobalContract:
		if c.Reason == "" {
			return fmt.Errorf("%w: %s is global without a reason", ErrContractViolation, name)
		}
	case nil:
		return fmt.Errorf("%w: %s declares no contract", ErrContractViolation, name)
	}
	return nil
}

// Conformance checks every registered type plus any extra prototypes
// (job types that are built but not yet registered).
func Conformance(r *Registry, extra ...Job) []Violation {
	var out []Violation
	for _, j := range append(r.Prototypes(), extra...) {
		if err := Check(j); err != nil {
			out = append(out, Violation{Job: fmt.Sprintf("%T", j), Reason: err.Error()})
		}
	}
	return out
}
