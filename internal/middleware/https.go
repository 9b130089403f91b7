// Package middleware holds small, composable HTTP wrappers.
package middleware

import (
	"context"
	"net/http"

	"github.com/yanizio/civitas/internal/tenant"
)

// KnownHosts reports whether a host is bound to a city.  *tenant.DomainMap
// satisfies it.
type KnownHosts interface {
	Known(ctx context.Context, host string) bool
}

// ForceHTTPS wraps h.  If the request is plain HTTP, the host is not
// "localhost", and hosts confirms a city owns it, the wrapper issues a
// 308 Permanent Redirect to the HTTPS version of the same URL.  Requests
// that a TLS-terminating proxy marks with X-Forwarded-Proto: https pass
// through.
func ForceHTTPS(hosts KnownHosts, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := tenant.CanonicalHost(r.Host)
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" || host == "localhost" {
			h.ServeHTTP(w, r)
			return
		}

		// Only redirect hosts a city owns.
		if hosts.Known(r.Context(), host) {
			target := "https://" + r.Host + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusPermanentRedirect)
			return
		}

		// Unknown host: keep normal flow.
		h.ServeHTTP(w, r)
	})
}
