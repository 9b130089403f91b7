// components/weather/weather.go
//
// Weather component: serves the city's cached forecast snapshot.
//
//	GET /{region}/{city}/weather
//
// Snapshots are written by the WeatherRefresh job.  On a miss the handler
// queues a refresh (at most one per city per PendingTTL) and answers 202
// so the client can poll.
package weather

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/component"
	"github.com/yanizio/civitas/internal/httperr"
	"github.com/yanizio/civitas/internal/jobs"
	"github.com/yanizio/civitas/internal/module"
	"github.com/yanizio/civitas/internal/tasks"
	"github.com/yanizio/civitas/internal/tenantcache"
	wx "github.com/yanizio/civitas/internal/weather"
)

var _ component.Component = (*Comp)(nil)

func init() { component.Register(&Comp{}) }

// PendingTTL bounds how often a miss may queue a refresh per city.
const PendingTTL = time.Minute

const pendingSuffix = "weather:pending"

// Comp implements component.Component.
type Comp struct {
	cache *tenantcache.Cache
	jobs  *jobs.Dispatcher
	log   *zap.Logger
}

func (c *Comp) Name() string   { return "weather" }
func (c *Comp) Module() string { return module.Weather }

func (c *Comp) Init(d component.Deps) error {
	if d.Cache == nil || d.Jobs == nil {
		return errors.New("weather needs the tenant cache and a job dispatcher")
	}
	c.cache, c.jobs, c.log = d.Cache, d.Jobs, d.Log
	if c.log == nil {
		c.log = zap.L()
	}
	return nil
}

func (c *Comp) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", c.show)
	return r
}

func (c *Comp) show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if snap, ok := tenantcache.Lookup[wx.Snapshot](ctx, c.cache, wx.SnapshotSuffix); ok {
		httperr.JSON(w, http.StatusOK, map[string]any{"success": true, "data": snap})
		return
	}

	if _, pending := tenantcache.Lookup[bool](ctx, c.cache, pendingSuffix); !pending {
		if err := c.jobs.Enqueue(ctx, tasks.NewWeatherRefresh()); err != nil {
			c.log.Error("weather refresh not queued", zap.Error(err))
			httperr.Write(w, http.StatusServiceUnavailable, httperr.Internal)
			return
		}
		if err := tenantcache.Put(ctx, c.cache, pendingSuffix, true, PendingTTL); err != nil {
			c.log.Warn("weather pending marker not stored", zap.Error(err))
		}
	}
	w.Header().Set("Retry-After", "5")
	httperr.JSON(w, http.StatusAccepted, map[string]any{"success": true, "status": "refreshing"})
}
