// internal/jobs/middleware.go
//
// Worker middleware.
//
// Context
// -------
// A Handler runs one decoded job.  Middlewares wrap it the way chi
// middlewares wrap an http.Handler.  The worker chain is
//
//	Recover → Instrument → EnsureTenantContext → job.Handle
//
// EnsureTenantContext is the tenancy gate.  Global jobs pass straight
// through.  Tenant jobs must name an existing city; otherwise the job
// fails with a FatalError before its body runs and one structured error
// event is logged.  On success the city is bound with source queue_job
// for exactly the duration of the body, and whatever binding the slot
// held before is restored afterwards, on every exit path.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/metrics"
	"github.com/yanizio/civitas/internal/tenant"
)

// Handler runs one job.
type Handler func(ctx context.Context, j Job) error

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain applies mws so the first one is outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Run is the innermost handler.
func Run(ctx context.Context, j Job) error { return j.Handle(ctx) }

// CityLookup finds a city by id.  *city.Directory satisfies it.
type CityLookup interface {
	ByID(ctx context.Context, id uint64) (*city.City, error)
}

// EnsureTenantContext binds the job's city around the job body.
func EnsureTenantContext(lookup CityLookup, log *zap.Logger) Middleware {
	if log == nil {
		log = zap.L()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, j Job) error {
			tc, ok := j.Contract().(TenantContract)
			if !ok {
				return next(ctx, j)
			}

			fields := []zap.Field{
				zap.String("job", j.Name()),
				zap.String("module_key", tc.ModuleKey),
				zap.String("trace_id", tc.TraceID),
			}
			if tc.CityID == 0 {
				log.Error("tenant job missing city id", fields...)
				return Fatal(ErrMissingCity)
			}

			c, err := lookup.ByID(ctx, tc.CityID)
			if errors.Is(err, city.ErrNotFound) {
				log.Error("tenant job city not found", append(fields, zap.Uint64("city_id", tc.CityID))...)
				return Fatal(fmt.Errorf("%w: %d", ErrCityNotFound, tc.CityID))
			}
			if err != nil {
				return fmt.Errorf("tenant job city lookup %d: %w", tc.CityID, err)
			}

			slot := tenant.SlotFrom(ctx)
			if slot == nil {
				slot = tenant.NewSlot()
				ctx = tenant.WithSlot(ctx, slot)
			}
			return slot.Scoped(tenant.Resolved{City: c, Source: tenant.SourceQueueJob}, func() error {
				return next(ctx, j)
			})
		}
	}
}

// Recover turns a panicking job into a fatal error.
func Recover(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.L()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, j Job) (err error) {
			defer func() {
				if p := recover(); p != nil {
					log.Error("job panicked",
						zap.String("job", j.Name()),
						zap.Any("panic", p),
						zap.ByteString("stack", debug.Stack()),
					)
					err = Fatal(fmt.Errorf("panic: %v", p))
				}
			}()
			return next(ctx, j)
		}
	}
}

// Instrument counts outcomes and logs completion at debug level.
func Instrument(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.L()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, j Job) error {
			start := time.Now()
			err := next(ctx, j)

			outcome := "ok"
			switch {
			case IsFatal(err):
				outcome = "fatal"
			case err != nil:
				outcome = "retry"
			}
			metrics.JobsProcessedTotal.WithLabelValues(j.Name(), outcome).Inc()
			log.Debug("job finished",
				zap.String("job", j.Name()),
				zap.String("outcome", outcome),
				zap.Duration("took", time.Since(start)),
			)
			return err
		}
	}
}
