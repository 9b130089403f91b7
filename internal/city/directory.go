// internal/city/directory.go
//
// Cached city lookups.
//
// Context
// -------
// Directory lazily loads cities by slug or id, keeps them in two sync.Maps,
// and collapses concurrent cold loads for the same key with singleflight.
// Entries expire after `ttl` (tenancy.city_config_ttl).  A background loop
// drops entries that were not touched for `idleTTL` so paused or retired
// cities do not pin memory forever.
//
// Both maps point at the same *entry, so Forget(id) removes a city from
// the slug index as well.
package city

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/civitas/internal/metrics"
)

// Source is the subset of Store the directory needs.
type Source interface {
	BySlug(ctx context.Context, slug string) (*City, error)
	ByID(ctx context.Context, id uint64) (*City, error)
}

type entry struct {
	city     *City
	loadedAt int64 // UnixNano
	lastSeen int64 // UnixNano
}

// Directory is safe for concurrent use.
type Directory struct {
	src     Source
	ttl     time.Duration
	idleTTL time.Duration
	log     *zap.Logger

	sfg    singleflight.Group
	bySlug sync.Map // slug → *entry
	byID   sync.Map // id → *entry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewDirectory constructs a Directory.  When evictEvery > 0 a background
// evictor is started; call Close to stop it.
func NewDirectory(src Source, ttl, idleTTL, evictEvery time.Duration, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.L()
	}
	d := &Directory{
		src:     src,
		ttl:     ttl,
		idleTTL: idleTTL,
		log:     log,
		stop:    make(chan struct{}),
	}
	if evictEvery > 0 {
		go d.evictLoop(evictEvery)
	}
	return d
}

// BySlug returns the city for slug.
func (d *Directory) BySlug(ctx context.Context, slug string) (*City, error) {
	if !ValidSlug(slug) {
		return nil, ErrNotFound
	}
	if c, ok := d.fresh(&d.bySlug, slug); ok {
		return c, nil
	}
	return d.load(ctx, "slug:"+slug, func(ctx context.Context) (*City, error) {
		return d.src.BySlug(ctx, slug)
	})
}

// ByID returns the city for id.
func (d *Directory) ByID(ctx context.Context, id uint64) (*City, error) {
	if id == 0 {
		return nil, ErrNotFound
	}
	if c, ok := d.fresh(&d.byID, id); ok {
		return c, nil
	}
	return d.load(ctx, "id:"+strconv.FormatUint(id, 10), func(ctx context.Context) (*City, error) {
		return d.src.ByID(ctx, id)
	})
}

// Forget drops a city from both indexes.  Called when the admin panel
// edits the city row.
func (d *Directory) Forget(id uint64) {
	v, ok := d.byID.LoadAndDelete(id)
	if !ok {
		return
	}
	ent := v.(*entry)
	d.bySlug.CompareAndDelete(ent.city.Slug, ent)
	metrics.ActiveCities.Dec()
}

// Close stops the evictor.
func (d *Directory) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
}

func (d *Directory) fresh(m *sync.Map, key any) (*City, bool) {
	v, ok := m.Load(key)
	if !ok {
		return nil, false
	}
	ent := v.(*entry)
	now := time.Now().UnixNano()
	if d.ttl > 0 && time.Duration(now-ent.loadedAt) > d.ttl {
		return nil, false
	}
	atomic.StoreInt64(&ent.lastSeen, now)
	return ent.city, true
}

// loadTimeout bounds one cold load.
const loadTimeout = 5 * time.Second

func (d *Directory) load(ctx context.Context, key string, fn func(context.Context) (*City, error)) (*City, error) {
	v, err, _ := d.sfg.Do(key, func() (any, error) {
		// Detached: concurrent waiters share this load.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		c, err := fn(lctx)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				metrics.CityLoadErrorsTotal.Inc()
			}
			return nil, err
		}
		d.store(c)
		metrics.CityLoadTotal.Inc()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*City), nil
}

func (d *Directory) store(c *City) {
	now := time.Now().UnixNano()
	ent := &entry{city: c, loadedAt: now, lastSeen: now}
	if _, loaded := d.byID.Swap(c.ID, ent); !loaded {
		metrics.ActiveCities.Inc()
	}
	d.bySlug.Store(c.Slug, ent)
}

// evictLoop removes entries idle longer than idleTTL.
func (d *Directory) evictLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-t.C:
			d.evictIdle(time.Now())
		}
	}
}

func (d *Directory) evictIdle(now time.Time) {
	if d.idleTTL <= 0 {
		return
	}
	d.byID.Range(func(key, value any) bool {
		ent := value.(*entry)
		idle := time.Duration(now.UnixNano() - atomic.LoadInt64(&ent.lastSeen))
		if idle > d.idleTTL {
			d.byID.CompareAndDelete(key, ent)
			d.bySlug.CompareAndDelete(ent.city.Slug, ent)
			d.log.Debug("city evicted",
				zap.Uint64("city_id", ent.city.ID),
				zap.Duration("idle", idle.Truncate(time.Second)))
			metrics.CityEvictTotal.Inc()
			metrics.ActiveCities.Dec()
		}
		return true
	})
}
