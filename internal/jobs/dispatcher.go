package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/tenant"
)

// Queue moves envelopes from the dispatcher to workers.
//
// Subscribe blocks until ctx is done.  handle's result decides the fate
// of a delivery: nil acknowledges it, a FatalError discards it, any other
// error asks for redelivery.
type Queue interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, handle func(context.Context, Envelope) error) error
}

// Dispatcher enqueues jobs.
type Dispatcher struct {
	q   Queue
	log *zap.Logger
}

// NewDispatcher wraps q.
func NewDispatcher(q Queue, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.L()
	}
	return &Dispatcher{q: q, log: log}
}

// Enqueue stamps tenant jobs with the city bound on ctx and a trace id
// (when the job does not carry its own) and publishes the job.  A tenant
// job enqueued with no city anywhere is refused here rather than failing
// later on a worker.
func (d *Dispatcher) Enqueue(ctx context.Context, j Job) error {
	if err := Check(j); err != nil {
		return err
	}
	if s, ok := j.(stamper); ok {
		cityID, _ := tenant.CityIDFrom(ctx)
		s.stamp(cityID, uuid.NewString())
	}
	if tc, ok := j.Contract().(TenantContract); ok && tc.CityID == 0 {
		d.log.Error("tenant job enqueued without city",
			zap.String("job", j.Name()), zap.String("trace_id", tc.TraceID))
		return fmt.Errorf("enqueue %s: %w", j.Name(), ErrMissingCity)
	}

	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode %s: %w", j.Name(), err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Name:       j.Name(),
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := d.q.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish %s: %w", j.Name(), err)
	}

	fields := []zap.Field{zap.String("job", env.Name), zap.String("envelope_id", env.ID)}
	if tc, ok := j.Contract().(TenantContract); ok {
		fields = append(fields, zap.Uint64("city_id", tc.CityID), zap.String("trace_id", tc.TraceID))
	}
	d.log.Debug("job enqueued", fields...)
	return nil
}
