// internal/module/resolver.go
//
// Per-city module state.
//
// Context
// -------
// States joins the module catalogue with a city's city_module rows and
// applies ResolveEnabledState to each module.  The result is cached in
// the city's own tenantcache namespace ("city:{id}:modules:status") for
// tenancy.module_status_ttl.  Forget evicts that one key, so editing one
// city's modules never disturbs another city's cached state.
package module

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/httperr"
	"github.com/yanizio/civitas/internal/metrics"
	"github.com/yanizio/civitas/internal/tenant"
	"github.com/yanizio/civitas/internal/tenantcache"
)

// StatusSuffix is the tenantcache suffix holding a city's module states.
const StatusSuffix = "modules:status"

// Catalogue is the subset of city.Store the resolver reads.
type Catalogue interface {
	Modules(ctx context.Context) ([]city.Module, error)
	Overrides(ctx context.Context, cityID uint64) ([]city.Override, error)
}

// State is one module's effective state for one city.
type State struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Core       bool   `json:"core"`
	Enabled    bool   `json:"enabled"`
	Overridden bool   `json:"overridden"`
	Version    int    `json:"version"`
}

// Resolver is safe for concurrent use.
type Resolver struct {
	src     Catalogue
	cache   *tenantcache.Cache
	ttl     time.Duration
	aliases *Aliases
	log     *zap.Logger
}

// NewResolver wires a resolver.
func NewResolver(src Catalogue, c *tenantcache.Cache, ttl time.Duration, aliases *Aliases, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.L()
	}
	return &Resolver{src: src, cache: c, ttl: ttl, aliases: aliases, log: log}
}

// Normalize exposes the alias table.
func (r *Resolver) Normalize(key string) string { return r.aliases.Normalize(key) }

// States returns every module's state for cityID in catalogue order.
func (r *Resolver) States(ctx context.Context, cityID uint64) ([]State, error) {
	return tenantcache.RememberForCity(ctx, r.cache, cityID, StatusSuffix, r.ttl,
		func(ctx context.Context) ([]State, error) { return r.compute(ctx, cityID) })
}

func (r *Resolver) compute(ctx context.Context, cityID uint64) ([]State, error) {
	mods, err := r.src.Modules(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.src.Overrides(ctx, cityID)
	if err != nil {
		return nil, err
	}

	overrides := make(map[uint64]city.Override, len(rows))
	for _, o := range rows {
		overrides[o.ModuleID] = o
	}

	out := make([]State, 0, len(mods))
	for _, m := range mods {
		st := State{Key: m.Key, Name: m.Name, Core: m.IsCore, Version: m.Version}
		var override *bool
		if o, ok := overrides[m.ID]; ok {
			enabled := o.Enabled
			override = &enabled
			st.Overridden = true
			if o.Version > 0 {
				st.Version = o.Version
			}
		}
		st.Enabled = ResolveEnabledState(override, m.IsCore)
		out = append(out, st)
	}
	r.log.Debug("module states computed", zap.Uint64("city_id", cityID), zap.Int("modules", len(out)))
	return out, nil
}

// EnabledSet returns the canonical keys enabled for cityID.
func (r *Resolver) EnabledSet(ctx context.Context, cityID uint64) (map[string]bool, error) {
	states, err := r.States(ctx, cityID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(states))
	for _, s := range states {
		if s.Enabled {
			set[s.Key] = true
		}
	}
	return set, nil
}

// Enabled reports whether key (alias or canonical) is on for cityID.
// Modules missing from the catalogue are off.
func (r *Resolver) Enabled(ctx context.Context, cityID uint64, key string) (bool, error) {
	set, err := r.EnabledSet(ctx, cityID)
	if err != nil {
		return false, err
	}
	return set[r.Normalize(key)], nil
}

// Forget evicts cityID's cached states.
func (r *Resolver) Forget(ctx context.Context, cityID uint64) error {
	return r.cache.ForgetForCity(ctx, cityID, StatusSuffix)
}

// Require gates a route on key being enabled for the bound city.
func (r *Resolver) Require(key string) func(http.Handler) http.Handler {
	key = r.Normalize(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			cityID, ok := tenant.CityIDFrom(req.Context())
			if !ok {
				httperr.Write(w, http.StatusBadRequest, httperr.TenantRequired)
				return
			}
			on, err := r.Enabled(req.Context(), cityID, key)
			if err != nil {
				r.log.Error("module check failed",
					zap.Uint64("city_id", cityID), zap.String("module", key), zap.Error(err))
				httperr.Write(w, http.StatusServiceUnavailable, httperr.ModuleCheckFailed)
				return
			}
			if !on {
				metrics.ModuleDeniedTotal.WithLabelValues(key).Inc()
				httperr.Write(w, http.StatusForbidden, httperr.ModuleDisabled)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// HandleList serves the bound city's module states.
func (r *Resolver) HandleList(w http.ResponseWriter, req *http.Request) {
	cityID, ok := tenant.CityIDFrom(req.Context())
	if !ok {
		httperr.Write(w, http.StatusBadRequest, httperr.TenantRequired)
		return
	}
	states, err := r.States(req.Context(), cityID)
	if err != nil {
		r.log.Error("module list failed", zap.Uint64("city_id", cityID), zap.Error(err))
		httperr.Write(w, http.StatusServiceUnavailable, httperr.ModuleCheckFailed)
		return
	}
	httperr.JSON(w, http.StatusOK, map[string]any{"success": true, "modules": states})
}
