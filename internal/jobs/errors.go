package jobs

import "errors"

var (
	// ErrMissingCity: a tenant job reached a worker with no city id.
	ErrMissingCity = errors.New("tenant job has no city id")

	// ErrCityNotFound: a tenant job names a city that does not exist.
	ErrCityNotFound = errors.New("tenant job city not found")

	// ErrContractViolation: a job type declares no usable contract.
	ErrContractViolation = errors.New("job tenancy contract violation")

	// ErrUnknownJob: an envelope names a job type nobody registered.
	ErrUnknownJob = errors.New("unknown job")
)

// FatalError marks a failure that retrying cannot fix.  Queues drop (or
// terminate) fatal deliveries instead of redelivering them.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err.  Fatal(nil) is nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err wraps a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
