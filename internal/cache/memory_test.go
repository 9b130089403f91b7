package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_LRUEviction(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	_ = m.Set(ctx, "a", []byte("1"), 0)
	_ = m.Set(ctx, "b", []byte("2"), 0)
	if _, ok, _ := m.Get(ctx, "a"); !ok { // a becomes MRU
		t.Fatal("a missing")
	}
	_ = m.Set(ctx, "c", []byte("3"), 0) // evicts b

	if _, ok, _ := m.Get(ctx, "b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok, _ := m.Get(ctx, "a"); !ok || string(v) != "1" {
		t.Errorf("a = %q, %v", v, ok)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory(8)
	m.now = func() time.Time { return now }

	_ = m.Set(ctx, "k", []byte("v"), time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatal("fresh entry missing")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expired entry still served")
	}
}

func TestMemory_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(8)
	buf := []byte("abc")
	_ = m.Set(ctx, "k", buf, 0)
	buf[0] = 'z'
	v, _, _ := m.Get(ctx, "k")
	if string(v) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %q", v)
	}
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(8)
	_ = m.Set(ctx, "a", []byte("1"), 0)
	_ = m.Set(ctx, "b", []byte("2"), 0)
	_ = m.Delete(ctx, "a", "missing")
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("a not deleted")
	}
	if _, ok, _ := m.Get(ctx, "b"); !ok {
		t.Error("b deleted by mistake")
	}
}

func TestMemory_DeletePrefix(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()
	_ = m.Set(ctx, "city:1:a", []byte("1"), 0)
	_ = m.Set(ctx, "city:1:b", []byte("2"), 0)
	_ = m.Set(ctx, "city:10:a", []byte("3"), 0)

	if err := m.DeletePrefix(ctx, "city:1:"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.Get(ctx, "city:1:a"); ok {
		t.Error("city:1:a survived")
	}
	if v, ok, _ := m.Get(ctx, "city:10:a"); !ok || string(v) != "3" {
		t.Error("city:10:a was removed by city:1: prefix")
	}
}
