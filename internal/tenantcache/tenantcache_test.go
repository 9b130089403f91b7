package tenantcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/cache"
	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/tenant"
)

var (
	cityA = &city.City{ID: 1, Slug: "santos", Status: city.StatusActive}
	cityB = &city.City{ID: 2, Slug: "campinas", Status: city.StatusActive}
)

func bound(c *city.City) context.Context {
	return tenant.Detached(context.Background(), tenant.Resolved{City: c, Source: tenant.SourcePath})
}

func counter(n *int, val string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*n++
		return val, nil
	}
}

func TestKey(t *testing.T) {
	if got := Key(context.Background(), "config"); got != "global:config" {
		t.Errorf("unbound Key = %q", got)
	}
	if got := Key(bound(cityA), "config"); got != "city:1:config" {
		t.Errorf("bound Key = %q", got)
	}
}

func TestRemember_NamespaceRoundTrip(t *testing.T) {
	c := New(cache.NewMemory(100), zap.NewNop())
	slot := tenant.NewSlot()
	ctx := tenant.WithSlot(context.Background(), slot)
	calls := 0

	var v string
	err := slot.Scoped(tenant.Resolved{City: cityA, Source: tenant.SourcePath}, func() (err error) {
		v, err = Remember(ctx, c, "config", time.Minute, counter(&calls, "A"))
		return err
	})
	if err != nil || v != "A" {
		t.Fatalf("A first = %q, %v", v, err)
	}

	_ = slot.Scoped(tenant.Resolved{City: cityB, Source: tenant.SourcePath}, func() (err error) {
		v, err = Remember(ctx, c, "config", time.Minute, counter(&calls, "B"))
		return err
	})
	if v != "B" || calls != 2 {
		t.Fatalf("B = %q after %d calls, want a miss", v, calls)
	}

	_ = slot.Scoped(tenant.Resolved{City: cityA, Source: tenant.SourcePath}, func() (err error) {
		v, err = Remember(ctx, c, "config", time.Minute, counter(&calls, "A2"))
		return err
	})
	if v != "A" || calls != 2 {
		t.Fatalf("A again = %q after %d calls, want original hit", v, calls)
	}

	v, _ = Remember(ctx, c, "config", time.Minute, counter(&calls, "G"))
	if v != "G" {
		t.Fatalf("global = %q, city value leaked into global namespace", v)
	}
}

func TestForgetCity_Isolation(t *testing.T) {
	c := New(cache.NewMemory(100), zap.NewNop())
	ctx := context.Background()
	calls := 0

	_, _ = RememberForCity(ctx, c, 1, "modules:status", time.Minute, counter(&calls, "a"))
	_, _ = RememberForCity(ctx, c, 2, "modules:status", time.Minute, counter(&calls, "b"))
	_, _ = RememberGlobal(ctx, c, "modules:catalogue", time.Minute, counter(&calls, "g"))

	if err := c.ForgetCity(ctx, 1); err != nil {
		t.Fatal(err)
	}

	v, _ := RememberForCity(ctx, c, 2, "modules:status", time.Minute, counter(&calls, "b2"))
	if v != "b" {
		t.Errorf("city 2 = %q, want surviving cached value", v)
	}
	v, _ = RememberGlobal(ctx, c, "modules:catalogue", time.Minute, counter(&calls, "g2"))
	if v != "g" {
		t.Errorf("global = %q, want surviving cached value", v)
	}
	v, _ = RememberForCity(ctx, c, 1, "modules:status", time.Minute, counter(&calls, "a2"))
	if v != "a2" {
		t.Errorf("city 1 = %q, want recomputed value", v)
	}
}

func TestForgetGlobal_KeepsCities(t *testing.T) {
	c := New(cache.NewMemory(100), zap.NewNop())
	ctx := context.Background()
	calls := 0

	_, _ = RememberForCity(ctx, c, 1, "modules:status", time.Minute, counter(&calls, "a"))
	_, _ = RememberGlobal(ctx, c, "modules:catalogue", time.Minute, counter(&calls, "g"))

	if err := c.ForgetGlobal(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _ := RememberGlobal(ctx, c, "modules:catalogue", time.Minute, counter(&calls, "g2")); v != "g2" {
		t.Errorf("global = %q, want recomputed value", v)
	}
	if v, _ := RememberForCity(ctx, c, 1, "modules:status", time.Minute, counter(&calls, "a2")); v != "a" {
		t.Errorf("city 1 = %q, want surviving cached value", v)
	}
}

func TestForgetCity_PrefixIsExact(t *testing.T) {
	c := New(cache.NewMemory(100), zap.NewNop())
	ctx := context.Background()
	calls := 0

	_, _ = RememberForCity(ctx, c, 10, "x", time.Minute, counter(&calls, "ten"))
	_ = c.ForgetCity(ctx, 1)
	if v, _ := RememberForCity(ctx, c, 10, "x", time.Minute, counter(&calls, "new")); v != "ten" {
		t.Fatalf("city 10 evicted by ForgetCity(1)")
	}
}

type brokenStore struct{ cache.Store }

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func TestRemember_ReadErrorFallsThrough(t *testing.T) {
	c := New(brokenStore{cache.NewMemory(10)}, zap.NewNop())
	calls := 0
	v, err := RememberGlobal(context.Background(), c, "k", time.Minute, counter(&calls, "fresh"))
	if err != nil || v != "fresh" || calls != 1 {
		t.Fatalf("got %q, %v after %d calls", v, err, calls)
	}
}

func TestRemember_ProducerErrorNotCached(t *testing.T) {
	c := New(cache.NewMemory(10), zap.NewNop())
	boom := errors.New("upstream down")
	_, err := RememberGlobal(context.Background(), c, "k", time.Minute,
		func(context.Context) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	v, err := RememberGlobal(context.Background(), c, "k", time.Minute,
		func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("second call = %d, %v", v, err)
	}
}

func TestRemember_StructValues(t *testing.T) {
	type snapshot struct {
		TempC float64 `json:"temp_c"`
		Cond  string  `json:"cond"`
	}
	c := New(cache.NewMemory(10), zap.NewNop())
	ctx := bound(cityA)
	produce := func(context.Context) (snapshot, error) { return snapshot{TempC: 24.5, Cond: "sunny"}, nil }

	_, _ = Remember(ctx, c, "weather", time.Minute, produce)
	got, err := Remember(ctx, c, "weather", time.Minute, func(context.Context) (snapshot, error) {
		return snapshot{}, errors.New("should not run")
	})
	if err != nil || got.TempC != 24.5 || got.Cond != "sunny" {
		t.Fatalf("got %#v, %v", got, err)
	}
}

func TestPutLookup_ScopedAndForgotten(t *testing.T) {
	c := New(cache.NewMemory(100), zap.NewNop())
	ctxA, ctxB := bound(cityA), bound(cityB)

	if err := Put(ctxA, c, "snapshot", []int{1, 2}, time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, ok := Lookup[[]int](ctxA, c, "snapshot"); !ok || len(v) != 2 {
		t.Fatalf("A lookup = %v, %v", v, ok)
	}
	if _, ok := Lookup[[]int](ctxB, c, "snapshot"); ok {
		t.Fatal("B saw A's value")
	}

	if err := c.ForgetCity(context.Background(), cityA.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := Lookup[[]int](ctxA, c, "snapshot"); ok {
		t.Fatal("value survived ForgetCity")
	}
}

func TestLookup_BrokenStoreIsMiss(t *testing.T) {
	c := New(brokenStore{cache.NewMemory(10)}, zap.NewNop())
	if _, ok := Lookup[string](bound(cityA), c, "x"); ok {
		t.Fatal("broken store reported a hit")
	}
}
