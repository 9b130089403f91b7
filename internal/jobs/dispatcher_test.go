package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/tenant"
)

func TestEnqueue_StampsTenantAndTrace(t *testing.T) {
	q := NewMemoryQueue(4, 1, zap.NewNop())
	d := NewDispatcher(q, zap.NewNop())
	ctx := tenant.Detached(context.Background(), tenant.Resolved{City: cityB, Source: tenant.SourcePath})

	if err := d.Enqueue(ctx, &probeJob{Tenancy: Tenancy{ModuleKey: "weather"}}); err != nil {
		t.Fatal(err)
	}
	env := <-q.ch
	var got probeJob
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.CityID != cityB.ID || got.TraceID == "" || got.ModuleKey != "weather" {
		t.Fatalf("payload = %+v", got.Tenancy)
	}
	if env.ID == "" || env.Name != "test.probe" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestEnqueue_ExplicitCityWins(t *testing.T) {
	q := NewMemoryQueue(4, 1, zap.NewNop())
	d := NewDispatcher(q, zap.NewNop())
	ctx := tenant.Detached(context.Background(), tenant.Resolved{City: cityB, Source: tenant.SourcePath})

	_ = d.Enqueue(ctx, &probeJob{Tenancy: Tenancy{CityID: cityA.ID, TraceID: "keep"}})
	var got probeJob
	_ = json.Unmarshal((<-q.ch).Payload, &got)
	if got.CityID != cityA.ID || got.TraceID != "keep" {
		t.Fatalf("payload = %+v", got.Tenancy)
	}
}

func TestEnqueue_RefusesTenantJobWithoutCity(t *testing.T) {
	q := NewMemoryQueue(4, 1, zap.NewNop())
	d := NewDispatcher(q, zap.NewNop())
	if err := d.Enqueue(context.Background(), &probeJob{}); !errors.Is(err, ErrMissingCity) {
		t.Fatalf("err = %v, want ErrMissingCity", err)
	}
	if q.Len() != 0 {
		t.Fatal("refused job was published")
	}
	if err := d.Enqueue(context.Background(), &sweepJob{}); err != nil {
		t.Fatalf("global job: %v", err)
	}
}

func TestPool_MemoryEndToEnd(t *testing.T) {
	q := NewMemoryQueue(8, 3, zap.NewNop())
	reg := NewRegistry()
	MustRegister[probeJob](reg)
	d := NewDispatcher(q, zap.NewNop())

	var (
		mu   sync.Mutex
		seen = map[string]uint64{}
		done = make(chan struct{}, 2)
	)
	h := Chain(func(ctx context.Context, j Job) error {
		id, _ := tenant.CityIDFrom(ctx)
		mu.Lock()
		seen[j.(*probeJob).Label] = id
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, EnsureTenantContext(known, zap.NewNop()))

	for _, c := range []struct {
		label string
		id    uint64
	}{{"a", 1}, {"b", 2}} {
		if err := d.Enqueue(context.Background(), &probeJob{Tenancy: Tenancy{CityID: c.id}, Label: c.label}); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- NewPool(q, reg, h, 2, zap.NewNop()).Run(ctx) }()

	for range 2 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("pool: %v", err)
	}
	if seen["a"] != 1 || seen["b"] != 2 {
		t.Fatalf("seen = %v", seen)
	}
}

func TestMemoryQueue_RetriesThenDrops(t *testing.T) {
	q := NewMemoryQueue(4, 3, zap.NewNop())
	_ = q.Publish(context.Background(), Envelope{ID: "e1", Name: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var (
		mu       sync.Mutex
		attempts []int
	)
	go func() {
		_ = q.Subscribe(ctx, func(_ context.Context, env Envelope) error {
			mu.Lock()
			attempts = append(attempts, env.Attempt)
			mu.Unlock()
			return errors.New("transient")
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(attempts)
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 || attempts[2] != 2 {
		t.Fatalf("attempts = %v, want [0 1 2]", attempts)
	}
}

func TestMemoryQueue_FatalNotRetried(t *testing.T) {
	q := NewMemoryQueue(4, 5, zap.NewNop())
	_ = q.Publish(context.Background(), Envelope{ID: "e1", Name: "x"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	calls := 0
	_ = q.Subscribe(ctx, func(context.Context, Envelope) error {
		calls++
		return Fatal(ErrCityNotFound)
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
