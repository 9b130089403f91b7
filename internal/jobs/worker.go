// internal/jobs/worker.go
//
// Worker pool.
//
// Each Worker owns one tenant.Slot and processes one envelope at a time,
// so two jobs for different cities handled back to back by the same
// worker see only their own city.  The pool runs N workers against one
// Queue and stops when its context is cancelled.
package jobs

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/tenant"
)

// Worker decodes and runs envelopes.
type Worker struct {
	id      int
	reg     *Registry
	handler Handler
	slot    *tenant.Slot
	log     *zap.Logger
}

// NewWorker builds a worker running h for decoded jobs.
func NewWorker(id int, reg *Registry, h Handler, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.L()
	}
	return &Worker{id: id, reg: reg, handler: h, slot: tenant.NewSlot(), log: log}
}

// Slot exposes the worker's slot for tests and diagnostics.
func (w *Worker) Slot() *tenant.Slot { return w.slot }

// Process runs one envelope.
func (w *Worker) Process(ctx context.Context, env Envelope) error {
	j, err := w.reg.Decode(env)
	if err != nil {
		w.log.Error("job decode failed",
			zap.Int("worker", w.id), zap.String("job", env.Name), zap.String("envelope_id", env.ID), zap.Error(err))
		return Fatal(err)
	}

	err = w.handler(tenant.WithSlot(ctx, w.slot), j)
	if err != nil && !IsFatal(err) {
		w.log.Warn("job failed, will retry",
			zap.Int("worker", w.id), zap.String("job", env.Name),
			zap.Int("attempt", env.Attempt), zap.Error(err))
	}
	return err
}

// Pool runs workers against a queue.
type Pool struct {
	q       Queue
	reg     *Registry
	handler Handler
	size    int
	log     *zap.Logger
}

// NewPool builds a pool of size workers sharing handler.
func NewPool(q Queue, reg *Registry, handler Handler, size int, log *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = zap.L()
	}
	return &Pool{q: q, reg: reg, handler: handler, size: size, log: log}
}

// Run blocks until ctx is done and every worker has returned.
func (p *Pool) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := range p.size {
		w := NewWorker(i, p.reg, p.handler, p.log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.q.Subscribe(ctx, w.Process); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	p.log.Info("job workers started", zap.Int("workers", p.size))
	wg.Wait()
	p.log.Info("job workers stopped")
	return errors.Join(errs...)
}
