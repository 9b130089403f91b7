package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Ristretto wraps a ristretto cache as an in-process Store.
type Ristretto struct {
	c *ristretto.Cache[string, []byte]
}

// NewRistretto creates a ristretto-backed store.  maxCostBytes is the
// maximum total size of cached values in bytes.
func NewRistretto(maxCostBytes int64) (*Ristretto, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{c: c}, nil
}

// Get retrieves a value.
func (r *Ristretto) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := r.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value and waits for the write buffer to drain, so a Get on
// the same goroutine right after Set observes it.
func (r *Ristretto) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl > 0 {
		r.c.SetWithTTL(key, val, int64(len(val)), ttl)
	} else {
		r.c.Set(key, val, int64(len(val)))
	}
	r.c.Wait()
	return nil
}

// Delete removes keys.
func (r *Ristretto) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		r.c.Del(k)
	}
	return nil
}

// Close releases ristretto's goroutines.
func (r *Ristretto) Close() { r.c.Close() }
