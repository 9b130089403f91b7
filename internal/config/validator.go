// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// loader.go calls validateStruct immediately after it unmarshals the merged
// Koanf tree.  Any validation error aborts startup, so the binary never
// runs with partial or malformed tenancy settings.
//
// Beyond the built-in rules we register `hostpattern`, which accepts a
// hostname optionally led by one `*.` wildcard label, and apply it to every
// entry of tenancy.trusted_hosts.

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("hostpattern", func(fl validator.FieldLevel) bool {
		return validHostPattern(fl.Field().String())
	})
	val.RegisterStructValidation(func(sl validator.StructLevel) {
		t := sl.Current().Interface().(Tenancy)
		for i, h := range t.TrustedHosts {
			if !validHostPattern(h) {
				sl.ReportError(t.TrustedHosts[i], "TrustedHosts", "trusted_hosts", "hostpattern", h)
			}
		}
	}, Tenancy{})
	return val
}

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}

func validHostPattern(h string) bool {
	h = strings.TrimPrefix(h, "*.")
	if h == "" || strings.ContainsAny(h, "*/ :") {
		return false
	}
	for _, label := range strings.Split(h, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
	}
	return true
}
