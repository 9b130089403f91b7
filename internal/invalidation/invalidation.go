// internal/invalidation/invalidation.go
//
// Cache invalidation fan-out.
//
// Context
// -------
// Admin tooling edits control-plane rows out of band.  After an edit it
// publishes an Event, and every node applies it to its own caches:
//
//	domains        → DomainMap.Invalidate()
//	modules{city}  → module status of that city dropped
//	city{city}     → directory entry and the whole city:{id} namespace dropped
//	global         → the global: namespace dropped
//
// LocalBus serves single-node deployments and tests; RedisBus fans out
// across nodes through Redis pub/sub.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Kind names what changed.
type Kind string

const (
	KindDomains Kind = "domains"
	KindModules Kind = "modules"
	KindCity    Kind = "city"
	KindGlobal  Kind = "global"
)

// ErrInvalidEvent is returned for unknown kinds or a missing city id.
var ErrInvalidEvent = errors.New("invalid invalidation event")

// Event is one change notice.
type Event struct {
	Kind   Kind   `json:"kind"`
	CityID uint64 `json:"city_id,omitempty"`
}

// Validate checks kind and city id.
func (e Event) Validate() error {
	switch e.Kind {
	case KindDomains, KindGlobal:
		return nil
	case KindModules, KindCity:
		if e.CityID == 0 {
			return fmt.Errorf("%w: %s requires city_id", ErrInvalidEvent, e.Kind)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
}

// Bus publishes and delivers events.  Subscribe blocks until ctx is done.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, fn func(context.Context, Event)) error
}

// LocalBus delivers synchronously to in-process subscribers.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[int]func(context.Context, Event)
	next int
}

// NewLocalBus returns an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]func(context.Context, Event))}
}

// Publish implements Bus.
func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	b.mu.RLock()
	fns := make([]func(context.Context, Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, e)
	}
	return nil
}

// Subscribe implements Bus.
func (b *LocalBus) Subscribe(ctx context.Context, fn func(context.Context, Event)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
	return ctx.Err()
}

// Domains is satisfied by *tenant.DomainMap.
type Domains interface{ Invalidate() }

// Modules is satisfied by *module.Resolver.
type Modules interface {
	Forget(ctx context.Context, cityID uint64) error
}

// Cities is satisfied by *city.Directory.
type Cities interface{ Forget(id uint64) }

// Namespaces is satisfied by *tenantcache.Cache.
type Namespaces interface {
	ForgetCity(ctx context.Context, cityID uint64) error
	ForgetGlobal(ctx context.Context) error
}

// Applier routes events to the local caches.  Nil targets are skipped.
type Applier struct {
	Domains    Domains
	Modules    Modules
	Cities     Cities
	Namespaces Namespaces
	Log        *zap.Logger
}

// Apply handles one event.  Failures are logged; the next TTL expiry
// repairs whatever was missed.
func (a *Applier) Apply(ctx context.Context, e Event) {
	log := a.Log
	if log == nil {
		log = zap.L()
	}
	if err := e.Validate(); err != nil {
		log.Warn("invalidation event dropped", zap.Error(err))
		return
	}

	var err error
	switch e.Kind {
	case KindDomains:
		if a.Domains != nil {
			a.Domains.Invalidate()
		}
	case KindModules:
		if a.Modules != nil {
			err = a.Modules.Forget(ctx, e.CityID)
		}
	case KindCity:
		if a.Cities != nil {
			a.Cities.Forget(e.CityID)
		}
		if a.Namespaces != nil {
			err = a.Namespaces.ForgetCity(ctx, e.CityID)
		}
	case KindGlobal:
		if a.Namespaces != nil {
			err = a.Namespaces.ForgetGlobal(ctx)
		}
	}
	if err != nil {
		log.Warn("invalidation apply failed",
			zap.String("kind", string(e.Kind)), zap.Uint64("city_id", e.CityID), zap.Error(err))
		return
	}
	log.Debug("invalidation applied", zap.String("kind", string(e.Kind)), zap.Uint64("city_id", e.CityID))
}
