// internal/tenantcache/tenantcache.go
//
// Tenant-namespaced cache.
//
// Context
// -------
// Every key is prefixed with the namespace of the city bound on the
// context, or "global" when none is bound:
//
//	Key(ctx, "config")  →  "city:42:config"   (tenant bound)
//	                    →  "global:config"    (no tenant)
//
// Values are JSON-encoded into the underlying cache.Store.  The cache
// keeps an index of the keys it wrote per namespace so ForgetCity clears
// exactly one namespace; stores that can enumerate keys (Memory, Redis)
// are also asked to drop the prefix so keys written by other processes go
// too.
//
// A failing store read is logged and treated as a miss; the producer
// runs and the request carries on.
package tenantcache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/cache"
	"github.com/yanizio/civitas/internal/tenant"
)

const globalNamespace = "global"

// Cache is safe for concurrent use.
type Cache struct {
	store cache.Store
	log   *zap.Logger

	mu    sync.Mutex
	index map[string]map[string]struct{} // namespace → keys
}

// New wraps store.
func New(store cache.Store, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.L()
	}
	return &Cache{store: store, log: log, index: make(map[string]map[string]struct{})}
}

// CityNamespace returns "city:{id}".
func CityNamespace(cityID uint64) string {
	return "city:" + strconv.FormatUint(cityID, 10)
}

// CityKey returns "city:{id}:{suffix}".
func CityKey(cityID uint64, suffix string) string {
	return CityNamespace(cityID) + ":" + suffix
}

// GlobalKey returns "global:{suffix}".
func GlobalKey(suffix string) string {
	return globalNamespace + ":" + suffix
}

// Key namespaces suffix by the tenant bound on ctx.
func Key(ctx context.Context, suffix string) string {
	if id, ok := tenant.CityIDFrom(ctx); ok {
		return CityKey(id, suffix)
	}
	return GlobalKey(suffix)
}

func namespaceOf(ctx context.Context) string {
	if id, ok := tenant.CityIDFrom(ctx); ok {
		return CityNamespace(id)
	}
	return globalNamespace
}

// Remember returns the cached value for suffix in the current namespace,
// calling produce on a miss.
func Remember[T any](ctx context.Context, c *Cache, suffix string, ttl time.Duration,
	produce func(context.Context) (T, error)) (T, error) {
	return remember(ctx, c, namespaceOf(ctx), Key(ctx, suffix), ttl, produce)
}

// RememberForCity is Remember pinned to cityID regardless of ctx.
func RememberForCity[T any](ctx context.Context, c *Cache, cityID uint64, suffix string, ttl time.Duration,
	produce func(context.Context) (T, error)) (T, error) {
	return remember(ctx, c, CityNamespace(cityID), CityKey(cityID, suffix), ttl, produce)
}

// RememberGlobal is Remember pinned to the global namespace.
func RememberGlobal[T any](ctx context.Context, c *Cache, suffix string, ttl time.Duration,
	produce func(context.Context) (T, error)) (T, error) {
	return remember(ctx, c, globalNamespace, GlobalKey(suffix), ttl, produce)
}

func remember[T any](ctx context.Context, c *Cache, ns, key string, ttl time.Duration,
	produce func(context.Context) (T, error)) (T, error) {
	var zero T

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed, recomputing", zap.String("key", key), zap.Error(err))
	}
	if err == nil && ok {
		var v T
		if jerr := json.Unmarshal(raw, &v); jerr == nil {
			return v, nil
		}
		c.log.Warn("cache entry undecodable, recomputing", zap.String("key", key))
	}

	v, err := produce(ctx)
	if err != nil {
		return zero, err
	}

	raw, err = json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return v, nil
	}
	c.track(ns, key)
	return v, nil
}

// Lookup reads suffix from the current namespace without producing it.
// A failed read or an undecodable entry counts as a miss.
func Lookup[T any](ctx context.Context, c *Cache, suffix string) (T, bool) {
	var v T
	key := Key(ctx, suffix)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn("cache entry undecodable", zap.String("key", key))
		return v, false
	}
	return v, true
}

// Put writes v under suffix in the current namespace.
func Put[T any](ctx context.Context, c *Cache, suffix string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := Key(ctx, suffix)
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		return err
	}
	c.track(namespaceOf(ctx), key)
	return nil
}

func (c *Cache) track(ns, key string) {
	c.mu.Lock()
	keys, ok := c.index[ns]
	if !ok {
		keys = make(map[string]struct{})
		c.index[ns] = keys
	}
	keys[key] = struct{}{}
	c.mu.Unlock()
}

// Forget drops suffix from the current namespace.
func (c *Cache) Forget(ctx context.Context, suffix string) error {
	return c.forgetKey(ctx, namespaceOf(ctx), Key(ctx, suffix))
}

// ForgetForCity drops suffix from cityID's namespace.
func (c *Cache) ForgetForCity(ctx context.Context, cityID uint64, suffix string) error {
	return c.forgetKey(ctx, CityNamespace(cityID), CityKey(cityID, suffix))
}

func (c *Cache) forgetKey(ctx context.Context, ns, key string) error {
	c.mu.Lock()
	if keys, ok := c.index[ns]; ok {
		delete(keys, key)
	}
	c.mu.Unlock()
	return c.store.Delete(ctx, key)
}

// ForgetCity clears every key in cityID's namespace.
func (c *Cache) ForgetCity(ctx context.Context, cityID uint64) error {
	return c.forgetNamespace(ctx, CityNamespace(cityID))
}

// ForgetGlobal clears every key in the global namespace.
func (c *Cache) ForgetGlobal(ctx context.Context) error {
	return c.forgetNamespace(ctx, globalNamespace)
}

func (c *Cache) forgetNamespace(ctx context.Context, ns string) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.index[ns]))
	for k := range c.index[ns] {
		keys = append(keys, k)
	}
	delete(c.index, ns)
	c.mu.Unlock()

	var errs []error
	if len(keys) > 0 {
		errs = append(errs, c.store.Delete(ctx, keys...))
	}
	if pd, ok := c.store.(cache.PrefixDeleter); ok {
		errs = append(errs, pd.DeletePrefix(ctx, ns+":"))
	}
	return errors.Join(errs...)
}
