// internal/cache/memory.go
//
// Small LRU with per-entry expiry.  No external deps; good for a few
// thousand entries.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store.  Safe for concurrent use.
type Memory struct {
	mu   sync.Mutex
	cap  int
	ll   *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type pair struct {
	key string
	val []byte
	exp time.Time // zero = no expiry
}

// NewMemory returns a Memory store holding at most capacity entries.
// Panics on capacity < 1.
func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		panic("cache: capacity must be >= 1")
	}
	return &Memory{
		cap:  capacity,
		ll:   list.New(),
		dict: make(map[string]*list.Element, capacity),
		now:  time.Now,
	}
}

// Get returns a copy of the value and marks it most-recently used.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ele, hit := m.dict[key]
	if !hit {
		return nil, false, nil
	}
	p := ele.Value.(pair)
	if !p.exp.IsZero() && m.now().After(p.exp) {
		m.ll.Remove(ele)
		delete(m.dict, key)
		return nil, false, nil
	}
	m.ll.MoveToFront(ele)
	return append([]byte(nil), p.val...), true, nil
}

// Set inserts or replaces a value.  ttl <= 0 keeps it until evicted.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	p := pair{key: key, val: append([]byte(nil), val...)}
	if ttl > 0 {
		p.exp = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ele, hit := m.dict[key]; hit {
		ele.Value = p
		m.ll.MoveToFront(ele)
		return nil
	}
	m.dict[key] = m.ll.PushFront(p)
	if m.ll.Len() > m.cap {
		last := m.ll.Back()
		m.ll.Remove(last)
		delete(m.dict, last.Value.(pair).key)
	}
	return nil
}

// Delete removes keys; missing keys are ignored.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if ele, hit := m.dict[k]; hit {
			m.ll.Remove(ele)
			delete(m.dict, k)
		}
	}
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, ele := range m.dict {
		if strings.HasPrefix(k, prefix) {
			m.ll.Remove(ele)
			delete(m.dict, k)
		}
	}
	return nil
}

// Len reports current size, expired entries included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}
