// internal/routing/alias.go
//
// Localized path rewriting.
//
// Context
// -------
// Canonical routes name the component in English:
//
//	/{region}/{city}/reports
//
// Citizens arrive with Portuguese links instead ("denuncias", "clima").
// Rewrite maps the third path segment through the module alias table and,
// when the alias names a module some component is mounted for, swaps the
// segment for that component's mount name before the router sees it:
//
//	/sp/santos/denuncias/42   →  /sp/santos/reports/42
//	/sp/santos/clima          →  /sp/santos/weather
//
// Segments that already name a mount, or that no alias covers, pass
// through untouched.  It must wrap the router, not run inside it.
package routing

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Normalizer folds a module alias to its canonical key.  *module.Aliases
// and *module.Resolver satisfy it.
type Normalizer interface {
	Normalize(key string) string
}

// Mounts maps a canonical module key to the name its component is
// mounted under.
type Mounts map[string]string

// Rewrite returns the rewriting middleware.
func Rewrite(n Normalizer, mounts Mounts, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.L()
	}
	names := make(map[string]struct{}, len(mounts))
	for _, name := range mounts {
		names[name] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// "", region, city, segment, rest
			parts := strings.SplitN(r.URL.Path, "/", 5)
			if len(parts) < 4 || parts[0] != "" || parts[3] == "" {
				next.ServeHTTP(w, r)
				return
			}
			seg := parts[3]
			if _, ok := names[seg]; ok {
				next.ServeHTTP(w, r)
				return
			}
			name, ok := mounts[n.Normalize(seg)]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			parts[3] = name
			target := strings.Join(parts, "/")
			log.Debug("alias rewrite", zap.String("from", r.URL.Path), zap.String("to", target))

			r2 := r.Clone(r.Context())
			r2.URL.Path = target
			r2.URL.RawPath = ""
			next.ServeHTTP(w, r2)
		})
	}
}
