// internal/server/router.go
//
// Route table.
//
//	/healthz                     liveness + control-plane ping
//	/metrics                     Prometheus
//	/api/tenant                  GET, any resolution source
//	/api/register                POST, payload slug allowed
//	/{region}/{city}/modules     GET, canonical routes only
//	/{region}/{city}/<component> mounted per component, gated by module;
//	                             localized aliases rewritten first
//	/admin/...                   admin role + CSRF
//
// Tenant resolution runs per group, never globally, so /healthz and
// /metrics do not touch the control plane's city tables.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/acl"
	"github.com/yanizio/civitas/internal/auth"
	"github.com/yanizio/civitas/internal/component"
	"github.com/yanizio/civitas/internal/config"
	"github.com/yanizio/civitas/internal/form"
	"github.com/yanizio/civitas/internal/httperr"
	"github.com/yanizio/civitas/internal/invalidation"
	"github.com/yanizio/civitas/internal/middleware"
	"github.com/yanizio/civitas/internal/module"
	"github.com/yanizio/civitas/internal/requestinfo"
	"github.com/yanizio/civitas/internal/routing"
	"github.com/yanizio/civitas/internal/session"
	"github.com/yanizio/civitas/internal/tenant"
)

// Deps are the collaborators the router mounts.  Sessions, ACL, Admin,
// CSRF and Bus are optional; without Sessions the /admin tree is absent.
type Deps struct {
	HTTP         config.HTTP
	TenantHeader string
	Tenants      *tenant.Middleware
	Domains      middleware.KnownHosts
	Modules      *module.Resolver
	Register     http.Handler

	Sessions *session.Manager
	ACL      *acl.Checker
	Admin    *tenant.Admin
	CSRF     *form.CSRF
	Bus      invalidation.Bus

	// Ping checks the control plane for /healthz.
	Ping func(context.Context) error
	Log  *zap.Logger
}

// Router builds the handler tree.  ctx bounds the rate limiter's sweeper.
func Router(ctx context.Context, d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.L()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Security)
	r.Use(requestinfo.Enrich)
	r.Use(auth.Load(d.Sessions))

	r.Get("/healthz", healthz(d.Ping))
	r.Handle("/metrics", promhttp.Handler())

	perCity := func(next http.Handler) http.Handler { return next }
	if d.HTTP.RateLimitRPS > 0 {
		perCity = middleware.RateLimitByCity(ctx, d.HTTP.RateLimitRPS, d.HTTP.RateLimitBurst)
	}
	switcher := func(next http.Handler) http.Handler { return next }
	if d.Admin != nil {
		switcher = d.Admin.Switch
	}

	r.Route("/api", func(r chi.Router) {
		if len(d.HTTP.CORSOrigins) > 0 {
			r.Use(corsFor(d.HTTP.CORSOrigins, d.TenantHeader))
		}
		r.Use(d.Tenants.Handler, switcher, tenant.RequireTenant, perCity)
		r.Get("/tenant", tenant.HandleCurrent)
		if d.Register != nil {
			r.With(tenant.EnforceStatus).Post("/register", d.Register.ServeHTTP)
		}
	})

	mounts := routing.Mounts{}
	r.Route("/{region}/{"+tenant.PathParam+"}", func(r chi.Router) {
		r.Use(d.Tenants.Handler, switcher, tenant.RequireExplicit, tenant.EnforceStatus, perCity)
		r.Get("/modules", d.Modules.HandleList)
		for _, c := range component.All() {
			if key := c.Module(); key != "" {
				r.With(d.Modules.Require(key)).Mount("/"+c.Name(), c.Routes())
				mounts[d.Modules.Normalize(key)] = c.Name()
			} else {
				r.Mount("/"+c.Name(), c.Routes())
			}
			d.Log.Debug("component mounted", zap.String("component", c.Name()), zap.String("module", c.Module()))
		}
	})

	if d.Sessions != nil && d.ACL != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(d.ACL.RequireRole(acl.RoleAdmin))
			r.Get("/debug", handleDebug)
			if d.CSRF != nil {
				r.Use(d.CSRF.Protect)
				r.Get("/csrf", d.CSRF.HandleToken)
			}
			if d.Admin != nil {
				r.Post("/tenant", d.Admin.HandleSwitch)
				r.Delete("/tenant", d.Admin.HandleClear)
			}
			if d.Bus != nil {
				r.Post("/invalidate", invalidation.Handler(d.Bus))
			}
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperr.Write(w, http.StatusNotFound, "NOT_FOUND")
	})

	h := routing.Rewrite(d.Modules, mounts, d.Log)(r)
	if d.HTTP.ForceHTTPS && d.Domains != nil {
		h = middleware.ForceHTTPS(d.Domains, h)
	}
	return h
}

// corsFor allows the configured origins and the tenant override header.
func corsFor(origins []string, tenantHeader string) func(http.Handler) http.Handler {
	headers := []string{"Accept", "Content-Type", "X-Request-ID"}
	if tenantHeader != "" {
		headers = append(headers, tenantHeader)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func healthz(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				httperr.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httperr.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
