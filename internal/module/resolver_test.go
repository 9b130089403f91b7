package module

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/cache"
	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/tenant"
	"github.com/yanizio/civitas/internal/tenantcache"
)

type fakeCatalogue struct {
	mu        sync.Mutex
	modules   []city.Module
	overrides map[uint64][]city.Override
	calls     map[uint64]int
	err       error
}

func newCatalogue() *fakeCatalogue {
	return &fakeCatalogue{
		modules: []city.Module{
			{ID: 1, Key: Forum, Name: "Fórum", IsCore: true, Version: 1},
			{ID: 2, Key: Reports, Name: "Denúncias", IsCore: true, Version: 3},
			{ID: 3, Key: Weather, Name: "Clima", IsCore: false, Version: 1},
		},
		overrides: map[uint64][]city.Override{
			1: {{CityID: 1, ModuleID: 3, ModuleKey: Weather, Enabled: true, Version: 2}},
			2: {{CityID: 2, ModuleID: 2, ModuleKey: Reports, Enabled: false}},
		},
		calls: map[uint64]int{},
	}
}

func (f *fakeCatalogue) Modules(context.Context) ([]city.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.modules, nil
}

func (f *fakeCatalogue) Overrides(_ context.Context, cityID uint64) ([]city.Override, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[cityID]++
	return f.overrides[cityID], nil
}

func (f *fakeCatalogue) setOverride(cityID uint64, o city.Override) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[cityID] = []city.Override{o}
}

func newResolver(cat Catalogue) *Resolver {
	tc := tenantcache.New(cache.NewMemory(100), zap.NewNop())
	return NewResolver(cat, tc, time.Minute, NewAliases(nil, zap.NewNop()), zap.NewNop())
}

func TestResolver_EnabledSet(t *testing.T) {
	r := newResolver(newCatalogue())
	ctx := context.Background()

	a, err := r.EnabledSet(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !a[Forum] || !a[Reports] || !a[Weather] {
		t.Errorf("city 1 set = %v", a)
	}

	b, _ := r.EnabledSet(ctx, 2)
	if !b[Forum] || b[Reports] || b[Weather] {
		t.Errorf("city 2 set = %v", b)
	}

	if on, _ := r.Enabled(ctx, 2, "clima"); on {
		t.Error("optional module without override reported on")
	}
	if on, _ := r.Enabled(ctx, 1, "clima"); !on {
		t.Error("alias lookup missed enabled module")
	}
	if on, _ := r.Enabled(ctx, 1, "voting"); on {
		t.Error("module absent from catalogue reported on")
	}
}

func TestResolver_ForgetIsolation(t *testing.T) {
	cat := newCatalogue()
	r := newResolver(cat)
	ctx := context.Background()

	_, _ = r.EnabledSet(ctx, 1)
	before, _ := r.States(ctx, 2)

	cat.setOverride(1, city.Override{CityID: 1, ModuleID: 3, ModuleKey: Weather, Enabled: false})
	cat.setOverride(2, city.Override{CityID: 2, ModuleID: 3, ModuleKey: Weather, Enabled: true})

	if err := r.Forget(ctx, 1); err != nil {
		t.Fatal(err)
	}

	if on, _ := r.Enabled(ctx, 1, Weather); on {
		t.Error("city 1 still serving stale state after Forget")
	}
	after, _ := r.States(ctx, 2)
	if len(after) != len(before) {
		t.Fatalf("city 2 states changed shape")
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("city 2 state %s changed: %+v → %+v", before[i].Key, before[i], after[i])
		}
	}
	if cat.calls[2] != 1 {
		t.Errorf("city 2 overrides loaded %d times, want 1 (cache survived)", cat.calls[2])
	}
	if cat.calls[1] != 2 {
		t.Errorf("city 1 overrides loaded %d times, want 2", cat.calls[1])
	}
}

func TestResolver_OverrideVersion(t *testing.T) {
	r := newResolver(newCatalogue())
	states, _ := r.States(context.Background(), 1)
	for _, s := range states {
		if s.Key == Weather && (s.Version != 2 || !s.Overridden) {
			t.Errorf("weather state = %+v", s)
		}
	}
}

func serveWithCity(h http.Handler, c *city.City) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if c != nil {
		req = req.WithContext(tenant.Detached(req.Context(), tenant.Resolved{City: c, Source: tenant.SourcePath}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequire(t *testing.T) {
	r := newResolver(newCatalogue())
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := r.Require("denuncias")(ok)

	if rec := serveWithCity(h, &city.City{ID: 1}); rec.Code != http.StatusNoContent {
		t.Errorf("enabled: code = %d", rec.Code)
	}

	rec := serveWithCity(h, &city.City{ID: 2})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("disabled: code = %d, want 403", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != "MODULE_DISABLED" {
		t.Errorf("error = %q", body.Error)
	}

	if rec := serveWithCity(h, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("no tenant: code = %d, want 400", rec.Code)
	}
}

func TestRequire_LookupFailure(t *testing.T) {
	cat := newCatalogue()
	cat.err = errors.New("db down")
	r := newResolver(cat)
	h := r.Require(Weather)(http.NotFoundHandler())

	if rec := serveWithCity(h, &city.City{ID: 1}); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", rec.Code)
	}
}
