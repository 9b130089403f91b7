// Package cache provides the byte stores behind tenantcache.
//
// Every store satisfies Store.  Keys arrive already namespaced
// ("city:42:weather", "global:config"); stores never interpret them.
//
//   - Memory     – mutex-guarded LRU with per-entry expiry.  Tests and dev.
//   - Ristretto  – dgraph-io/ristretto in-process cache.  Single node.
//   - Redis      – shared cache across web and worker processes.
//   - Tiered     – L1 in front of L2, read-through and write-through.
package cache

import (
	"context"
	"time"
)

// Store is a TTL-aware byte cache.  A miss is (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// PrefixDeleter is implemented by stores that can enumerate their keys.
// tenantcache uses it so a namespace flush also reaches keys written by
// other processes.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) error
}
