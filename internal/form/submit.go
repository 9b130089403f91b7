// internal/form/submit.go
//
// JSON payload decoding and validation.
//
// Context
//   Handlers want one call that reads the body, rejects unknown or
//   malformed JSON, runs the struct's `validate:"…"` tags, and hands back
//   either the filled struct or field-level errors the client can show.
//   HandleSubmit provides that so component code stays terse:
//
//	var in createRequest
//	if err := form.HandleSubmit(r, &in, validate); err != nil {
//		form.WriteError(w, err)
//		return
//	}
//
//   Field names in errors are the JSON names, not the Go names.
//
//------------------------------------------------------------------------------

package form

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yanizio/civitas/internal/guard"
	"github.com/yanizio/civitas/internal/httperr"
)

// MaxBody caps decoded request bodies.
const MaxBody = 1 << 20

// ErrMalformed marks a body that is not the expected JSON.
var ErrMalformed = errors.New("malformed request body")

// validationError wraps field errors and satisfies the error interface.
type validationError struct{ Fields []guard.FieldError }

func (validationError) Error() string { return "request validation failed" }

// Invalid wraps fields as a validation error, for checks made after
// HandleSubmit (reference checks, uniqueness).
func Invalid(fields []guard.FieldError) error { return validationError{Fields: fields} }

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// HandleSubmit decodes r's JSON body into dst and validates it with v.
func HandleSubmit(r *http.Request, dst any, v *validator.Validate) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBody))
	if err := dec.Decode(dst); err != nil {
		return errors.Join(ErrMalformed, err)
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return validationError{Fields: fieldErrors(verrs)}
		}
		return err
	}
	return nil
}

// IsValidationError reports whether err carries field errors, and returns
// them.
func IsValidationError(err error) ([]guard.FieldError, bool) {
	var ve validationError
	if errors.As(err, &ve) {
		return ve.Fields, true
	}
	return nil, false
}

// WriteError answers 422 with the field list for validation errors, 400
// for malformed bodies, and 500 otherwise.
func WriteError(w http.ResponseWriter, err error) {
	if fields, ok := IsValidationError(err); ok {
		httperr.WriteBody(w, http.StatusUnprocessableEntity, httperr.Body{
			Error: httperr.ValidationFailed, Fields: fields,
		})
		return
	}
	if errors.Is(err, ErrMalformed) {
		httperr.Write(w, http.StatusBadRequest, httperr.ValidationFailed)
		return
	}
	httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
}

func fieldErrors(verrs validator.ValidationErrors) []guard.FieldError {
	out := make([]guard.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, guard.FieldError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	}
	return fe.Field() + " is invalid"
}
