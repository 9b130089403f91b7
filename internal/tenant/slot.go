// internal/tenant/slot.go
//
// Execution-local tenant holder.
//
// Context
// -------
// A Slot is created per request by the HTTP middleware and per worker by
// the job runner.  It is threaded through context.Context, never stored
// in a package variable, so concurrent requests and workers cannot see
// each other's tenant.
//
// Scoped binds a city for the duration of fn and restores the previous
// binding afterwards, whether fn returns, fails, or panics.
package tenant

import (
	"context"
	"sync"
)

// Slot holds at most one Resolved binding.
type Slot struct {
	mu  sync.RWMutex
	cur *Resolved
}

// NewSlot returns an empty slot.
func NewSlot() *Slot { return &Slot{} }

// Bind replaces the current binding.
func (s *Slot) Bind(r Resolved) {
	s.mu.Lock()
	s.cur = &r
	s.mu.Unlock()
}

// Clear drops the current binding.
func (s *Slot) Clear() {
	s.mu.Lock()
	s.cur = nil
	s.mu.Unlock()
}

// Current returns the binding, if any.
func (s *Slot) Current() (Resolved, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return Resolved{}, false
	}
	return *s.cur, true
}

// IsSet reports whether a city is bound.
func (s *Slot) IsSet() bool {
	_, ok := s.Current()
	return ok
}

// CityID returns the bound city id.
func (s *Slot) CityID() (uint64, bool) {
	r, ok := s.Current()
	if !ok {
		return 0, false
	}
	return r.City.ID, true
}

// Scoped runs fn with r bound and restores the previous binding.
func (s *Slot) Scoped(r Resolved, fn func() error) error {
	s.mu.Lock()
	prev := s.cur
	s.cur = &r
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cur = prev
		s.mu.Unlock()
	}()
	return fn()
}

/*──────────────────────────── context plumbing ────────────────────────────*/

type slotKey struct{}

// WithSlot attaches s to ctx.
func WithSlot(ctx context.Context, s *Slot) context.Context {
	return context.WithValue(ctx, slotKey{}, s)
}

// SlotFrom returns the slot on ctx, or nil.
func SlotFrom(ctx context.Context) *Slot {
	s, _ := ctx.Value(slotKey{}).(*Slot)
	return s
}

// FromContext returns the binding of the slot on ctx.
func FromContext(ctx context.Context) (Resolved, bool) {
	s := SlotFrom(ctx)
	if s == nil {
		return Resolved{}, false
	}
	return s.Current()
}

// CityIDFrom returns the bound city id on ctx.
func CityIDFrom(ctx context.Context) (uint64, bool) {
	r, ok := FromContext(ctx)
	if !ok {
		return 0, false
	}
	return r.City.ID, true
}

// Detached returns a fresh context carrying its own slot bound to r.  Use
// it when work outlives the request that resolved r.
func Detached(ctx context.Context, r Resolved) context.Context {
	s := NewSlot()
	s.Bind(r)
	return WithSlot(context.WithoutCancel(ctx), s)
}
