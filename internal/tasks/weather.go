package tasks

import (
	"context"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/jobs"
	"github.com/yanizio/civitas/internal/module"
	"github.com/yanizio/civitas/internal/tenant"
	"github.com/yanizio/civitas/internal/tenantcache"
	"github.com/yanizio/civitas/internal/weather"
)

// WeatherRefresh fetches the bound city's forecast and stores the
// snapshot in the city's cache namespace.  Coastal cities also get
// marine conditions; a marine failure leaves them out of the snapshot
// rather than failing the job.
type WeatherRefresh struct {
	jobs.Tenancy
	deps *Deps
}

func weatherTenancy() jobs.Tenancy { return jobs.Tenancy{ModuleKey: module.Weather} }

// NewWeatherRefresh returns a job ready to enqueue.
func NewWeatherRefresh() *WeatherRefresh { return &WeatherRefresh{Tenancy: weatherTenancy()} }

func (*WeatherRefresh) Name() string { return NameWeatherRefresh }

func (j *WeatherRefresh) Handle(ctx context.Context) error {
	r, ok := tenant.FromContext(ctx)
	if !ok {
		return jobs.Fatal(jobs.ErrMissingCity)
	}
	c := r.City
	p := weather.Point{Latitude: c.Latitude, Longitude: c.Longitude, Timezone: c.Timezone}

	cur, days, err := j.deps.Weather.Forecast(ctx, p)
	if err != nil {
		return err
	}
	snap := weather.Snapshot{CityID: c.ID, Current: cur, Daily: days, FetchedAt: j.deps.Now().UTC()}

	if c.Coastal {
		m, err := j.deps.Weather.Marine(ctx, p)
		if err != nil {
			j.deps.Log.Warn("marine forecast failed",
				zap.Uint64("city_id", c.ID), zap.String("trace_id", j.TraceID), zap.Error(err))
		} else {
			snap.Marine = m
		}
	}

	return tenantcache.Put(ctx, j.deps.Cache, weather.SnapshotSuffix, snap, j.deps.WeatherTTL)
}
