// internal/tenant/middleware.go
//
// HTTP tenant middleware.
//
// Context
// -------
// Handler gathers the resolution signals from the request, resolves, and
// binds the result into a fresh Slot on the request context.  It never
// rejects a request itself; guard middlewares further down decide:
//
//   • RequireTenant    – any bound city, else 400 TENANT_REQUIRED
//                        (503 TENANT_LOOKUP_FAILED on control-plane errors)
//   • RequireExplicit  – canonical routes; the fallback city is refused
//   • EnforceStatus    – hides draft/staging cities, makes paused
//                        cities read-only
//
// The slot is cleared when the handler chain returns, so nothing leaks
// into work that outlives the request.  Use Detached for that.
package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/httperr"
	"github.com/yanizio/civitas/internal/metrics"
)

// maxPeek bounds how much of a JSON body is inspected for city_slug.
const maxPeek = 64 << 10

// PathParam is the chi URL parameter carrying the city slug.
const PathParam = "city"

// Middleware resolves the tenant for each request.
type Middleware struct {
	res    *Resolver
	header string
	log    *zap.Logger
}

// NewMiddleware returns a Middleware reading the override header name
// from headerName.
func NewMiddleware(res *Resolver, headerName string, log *zap.Logger) *Middleware {
	if log == nil {
		log = zap.L()
	}
	return &Middleware{res: res, header: headerName, log: log}
}

type unresolvedKey struct{}

// Handler resolves and binds the tenant.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		in := Input{
			PathSlug: chi.URLParam(r, PathParam),
			Header:   r.Header.Get(m.header),
			Host:     r.Host,
		}
		in.PayloadSlug = peekPayloadSlug(r)

		slot := NewSlot()
		defer slot.Clear()
		ctx := WithSlot(r.Context(), slot)

		switch o := m.res.Resolve(ctx, in).(type) {
		case Resolved:
			slot.Bind(o)
			m.log.Debug("tenant resolved",
				zap.String("city_slug", o.City.Slug),
				zap.String("source", o.Source.String()),
				zap.String("path", r.URL.Path),
			)
		case Unresolved:
			ctx = context.WithValue(ctx, unresolvedKey{}, o)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// peekPayloadSlug reads "city_slug" from a JSON body and restores the
// body for the next handler.
func peekPayloadSlug(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return ""
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/json" {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxPeek))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	if err != nil {
		return ""
	}

	var probe struct {
		CitySlug string `json:"city_slug"`
	}
	if json.Unmarshal(buf, &probe) != nil {
		return ""
	}
	return probe.CitySlug
}

// writeUnbound answers a request that reached a guard with no city.
func writeUnbound(w http.ResponseWriter, r *http.Request) {
	if o, ok := r.Context().Value(unresolvedKey{}).(Unresolved); ok && errors.Is(o.Err, ErrLookupFailed) {
		httperr.Write(w, http.StatusServiceUnavailable, httperr.TenantLookupFailed)
		return
	}
	httperr.Write(w, http.StatusBadRequest, httperr.TenantRequired)
}

// RequireTenant rejects requests with no bound city.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			writeUnbound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireExplicit rejects requests with no bound city or whose city came
// from the fallback.
func RequireExplicit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := FromContext(r.Context())
		if !ok {
			writeUnbound(w, r)
			return
		}
		if !res.Source.Explicit() {
			metrics.TenantUnresolvedTotal.WithLabelValues("fallback_rejected").Inc()
			httperr.Write(w, http.StatusBadRequest, httperr.TenantRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EnforceStatus applies the city lifecycle.  Draft and staging cities are
// reachable only through the admin switcher; paused cities accept reads
// only.
func EnforceStatus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := FromContext(r.Context())
		if !ok {
			writeUnbound(w, r)
			return
		}
		st := res.City.Status
		if !st.Public() && res.Source != SourceAdminSwitcher {
			httperr.Write(w, http.StatusNotFound, httperr.TenantNotFound)
			return
		}
		if st == city.StatusPaused && !safeMethod(r.Method) {
			httperr.Write(w, http.StatusLocked, httperr.TenantReadOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}
