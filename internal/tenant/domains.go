// internal/tenant/domains.go
//
// Host → city id map.
//
// Context
// -------
// The full city_domain table is small, so it is loaded as one snapshot
// and swapped atomically.  Readers never lock.  When the snapshot is
// older than tenancy.domain_map_ttl the next reader reloads it; parallel
// reloads collapse through singleflight.  If a reload fails and a stale
// snapshot exists, the stale snapshot keeps serving and the failure is
// logged.  Invalidate forces a reload on the next lookup.
//
// The reload runs detached from the caller's cancellation, so one
// abandoned request cannot fail the load for everyone waiting on it.
package tenant

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/metrics"
)

// loadTimeout bounds a shared reload.  The reload outlives the request
// that started it, since other requests wait on the same result.
const loadTimeout = 5 * time.Second

// DomainSource lists every configured domain.
type DomainSource interface {
	Domains(ctx context.Context) ([]city.Domain, error)
}

type domainSnapshot struct {
	hosts    map[string]uint64
	loadedAt time.Time
}

// DomainMap is safe for concurrent use.
type DomainMap struct {
	src DomainSource
	ttl time.Duration
	log *zap.Logger
	now func() time.Time

	sfg   singleflight.Group
	snap  atomic.Pointer[domainSnapshot]
	stale atomic.Bool
}

// NewDomainMap does not load anything until the first lookup.
func NewDomainMap(src DomainSource, ttl time.Duration, log *zap.Logger) *DomainMap {
	if log == nil {
		log = zap.L()
	}
	return &DomainMap{src: src, ttl: ttl, log: log, now: time.Now}
}

// CityID returns the city owning host.  ok is false for unknown hosts.
func (m *DomainMap) CityID(ctx context.Context, host string) (uint64, bool, error) {
	snap, err := m.snapshot(ctx)
	if err != nil {
		return 0, false, err
	}
	id, ok := snap.hosts[CanonicalHost(host)]
	return id, ok, nil
}

// Known reports whether host is mapped.  Lookup errors read as unknown.
func (m *DomainMap) Known(ctx context.Context, host string) bool {
	_, ok, err := m.CityID(ctx, host)
	return err == nil && ok
}

// Invalidate marks the snapshot stale.
func (m *DomainMap) Invalidate() {
	m.stale.Store(true)
}

func (m *DomainMap) snapshot(ctx context.Context) (*domainSnapshot, error) {
	cur := m.snap.Load()
	if cur != nil && !m.stale.Load() && m.now().Sub(cur.loadedAt) < m.ttl {
		return cur, nil
	}

	v, err, _ := m.sfg.Do("domains", func() (any, error) {
		// Clear before loading so an Invalidate racing the query triggers
		// another reload.
		m.stale.Store(false)
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		rows, err := m.src.Domains(lctx)
		if err != nil {
			m.stale.Store(true)
			return nil, err
		}
		hosts := make(map[string]uint64, len(rows))
		for _, d := range rows {
			hosts[CanonicalHost(d.Host)] = d.CityID
		}
		snap := &domainSnapshot{hosts: hosts, loadedAt: m.now()}
		m.snap.Store(snap)
		metrics.DomainMapLoadsTotal.Inc()
		m.log.Debug("domain map loaded", zap.Int("hosts", len(hosts)))
		return snap, nil
	})
	if err != nil {
		metrics.DomainMapLoadErrorsTotal.Inc()
		if cur != nil {
			m.log.Warn("domain map reload failed, serving stale snapshot", zap.Error(err))
			return cur, nil
		}
		m.log.Error("domain map load failed", zap.Error(err))
		return nil, err
	}
	return v.(*domainSnapshot), nil
}
