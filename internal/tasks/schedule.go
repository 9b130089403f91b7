package tasks

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/jobs"
	"github.com/yanizio/civitas/internal/module"
)

// Enqueuer is satisfied by *jobs.Dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, j jobs.Job) error
}

// CityLister is satisfied by *city.Store.
type CityLister interface {
	AllActive(ctx context.Context) ([]city.City, error)
}

// ModuleChecker is satisfied by *module.Resolver.
type ModuleChecker interface {
	Enabled(ctx context.Context, cityID uint64, key string) (bool, error)
}

// Intervals of the periodic jobs.  Zero disables one.
type Intervals struct {
	Weather time.Duration
	Digest  time.Duration
	Purge   time.Duration
}

// Scheduler enqueues the periodic jobs.  Tenant jobs are fanned out
// with an explicit city id per active city whose module is enabled.
type Scheduler struct {
	q       Enqueuer
	cities  CityLister
	modules ModuleChecker
	log     *zap.Logger
	now     func() time.Time
}

// NewScheduler returns a Scheduler.
func NewScheduler(q Enqueuer, cities CityLister, modules ModuleChecker, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.L()
	}
	return &Scheduler{q: q, cities: cities, modules: modules, log: log, now: time.Now}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context, iv Intervals) {
	tick := func(every time.Duration) <-chan time.Time {
		if every <= 0 {
			return nil
		}
		t := time.NewTicker(every)
		go func() { <-ctx.Done(); t.Stop() }()
		return t.C
	}
	weatherC, digestC, purgeC := tick(iv.Weather), tick(iv.Digest), tick(iv.Purge)

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-weatherC:
			err = s.EnqueueWeather(ctx)
		case <-digestC:
			err = s.EnqueueDigests(ctx, s.now().Add(-iv.Digest))
		case <-purgeC:
			err = s.q.Enqueue(ctx, NewPurgeExpiredOTP())
		}
		if err != nil {
			s.log.Error("scheduled enqueue failed", zap.Error(err))
		}
	}
}

// EnqueueWeather enqueues one WeatherRefresh per city with weather on.
func (s *Scheduler) EnqueueWeather(ctx context.Context) error {
	return s.fanOut(ctx, module.Weather, func(c city.City) jobs.Job {
		j := NewWeatherRefresh()
		j.CityID = c.ID
		return j
	})
}

// EnqueueDigests enqueues one ReportDigest per city with reports on.
func (s *Scheduler) EnqueueDigests(ctx context.Context, since time.Time) error {
	return s.fanOut(ctx, module.Reports, func(c city.City) jobs.Job {
		j := NewReportDigest(since)
		j.CityID = c.ID
		return j
	})
}

func (s *Scheduler) fanOut(ctx context.Context, key string, build func(city.City) jobs.Job) error {
	cities, err := s.cities.AllActive(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, c := range cities {
		on, err := s.modules.Enabled(ctx, c.ID, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !on {
			continue
		}
		if err := s.q.Enqueue(ctx, build(c)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
