package cache

import (
	"context"
	"errors"
	"time"
)

// Tiered reads L1 first and falls back to L2, back-filling L1 on an L2
// hit.  Writes and deletes go to both tiers.  An L1 failure never hides
// an L2 value.
type Tiered struct {
	l1, l2 Store
	l1TTL  time.Duration
}

// NewTiered builds a two-level store.  l1TTL caps how long a back-filled
// value lives in L1 so nodes converge after another node writes L2.
func NewTiered(l1, l2 Store, l1TTL time.Duration) *Tiered {
	return &Tiered{l1: l1, l2: l2, l1TTL: l1TTL}
}

// Get implements Store.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := t.l1.Get(ctx, key); err == nil && ok {
		return val, true, nil
	}
	val, ok, err := t.l2.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = t.l1.Set(ctx, key, val, t.l1TTL)
	return val, true, nil
}

// Set implements Store.
func (t *Tiered) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	l1TTL := t.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	return errors.Join(t.l1.Set(ctx, key, val, l1TTL), t.l2.Set(ctx, key, val, ttl))
}

// Delete implements Store.
func (t *Tiered) Delete(ctx context.Context, keys ...string) error {
	return errors.Join(t.l1.Delete(ctx, keys...), t.l2.Delete(ctx, keys...))
}

// DeletePrefix forwards to each tier that supports it.
func (t *Tiered) DeletePrefix(ctx context.Context, prefix string) error {
	var errs []error
	for _, s := range []Store{t.l1, t.l2} {
		if pd, ok := s.(PrefixDeleter); ok {
			errs = append(errs, pd.DeletePrefix(ctx, prefix))
		}
	}
	return errors.Join(errs...)
}
