// internal/middleware/security.go
//
// Security-header middleware.
//
// Sets security headers on every response:
//
//   - Strict-Transport-Security (2 years + preload)
//   - Content-Security-Policy   (nothing by default; the API serves JSON)
//   - X-Frame-Options
//   - X-Content-Type-Options
//   - Referrer-Policy
//   - Permissions-Policy        (geolocation allowed for report pins)
//
// Headers are written before next runs, since a handler that has
// written its body can no longer change them.  Handlers may still
// override any of them with Header().Set.

package middleware

import "net/http"

var securityHeaders = [...][2]string{
	{"Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"},
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "geolocation=(self), microphone=(), camera=()"},
}

// Security sets security headers for every response.
func Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			if h.Get(kv[0]) == "" {
				h.Set(kv[0], kv[1])
			}
		}
		next.ServeHTTP(w, r)
	})
}
