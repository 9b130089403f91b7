// Package httperr writes the JSON error envelope every civic endpoint
// shares:
//
//	{"success": false, "error": "TENANT_REQUIRED"}
//
// Codes are stable strings; mobile clients branch on them.
package httperr

import (
	"encoding/json"
	"net/http"
)

const (
	TenantRequired     = "TENANT_REQUIRED"
	TenantNotFound     = "TENANT_NOT_FOUND"
	TenantReadOnly     = "TENANT_READ_ONLY"
	TenantLookupFailed = "TENANT_LOOKUP_FAILED"
	ModuleDisabled     = "MODULE_DISABLED"
	ModuleCheckFailed  = "MODULE_CHECK_FAILED"
	ValidationFailed   = "VALIDATION_FAILED"
	Internal           = "INTERNAL_ERROR"
)

// Body is the error envelope.  Fields is only set for validation errors.
type Body struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Fields  any    `json:"fields,omitempty"`
}

// Write sends status with the envelope for code.
func Write(w http.ResponseWriter, status int, code string) {
	WriteBody(w, status, Body{Error: code})
}

// WriteBody sends status with a prepared envelope.
func WriteBody(w http.ResponseWriter, status int, b Body) {
	b.Success = false
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(b)
}

// JSON writes a success payload.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
