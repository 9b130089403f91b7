// Package tasks holds the background job types of the platform.
//
// Job values travel through the queue as JSON, so anything a job needs
// besides its payload (stores, clients, the tenant cache) is captured by
// the factory that Register installs.  Construct jobs for enqueueing with
// the New* helpers; those values carry no collaborators and are never
// run directly.
package tasks

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/jobs"
	"github.com/yanizio/civitas/internal/notify"
	"github.com/yanizio/civitas/internal/report"
	"github.com/yanizio/civitas/internal/tenantcache"
	"github.com/yanizio/civitas/internal/weather"
)

// Job names.
const (
	NameWeatherRefresh  = "weather.refresh"
	NameReportDigest    = "reports.digest"
	NameReportFiled     = "reports.filed"
	NamePurgeExpiredOTP = "otp.purge_expired"
)

// Reports is the slice of report.Store the tasks use.
type Reports interface {
	Summary(ctx context.Context, cityID uint64, since time.Time) ([]report.CategoryCount, error)
	DigestContacts(ctx context.Context, cityID uint64) ([]string, error)
	PurgeExpiredOTP(ctx context.Context, cutoff time.Time) (int64, error)
}

// Deps are the collaborators shared by every job instance.
type Deps struct {
	Cache      *tenantcache.Cache
	Weather    weather.Provider
	WeatherTTL time.Duration
	Reports    Reports
	Mailer     notify.Mailer
	Log        *zap.Logger
	Now        func() time.Time
}

func (d *Deps) defaults() {
	if d.WeatherTTL <= 0 {
		d.WeatherTTL = 30 * time.Minute
	}
	if d.Mailer == nil {
		d.Mailer = notify.LogMailer{Log: d.Log}
	}
	if d.Log == nil {
		d.Log = zap.L()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// Register installs every job type into reg.
func Register(reg *jobs.Registry, d *Deps) error {
	d.defaults()
	return errors.Join(
		reg.RegisterFactory(func() jobs.Job { return &WeatherRefresh{Tenancy: weatherTenancy(), deps: d} }),
		reg.RegisterFactory(func() jobs.Job { return &ReportDigest{Tenancy: reportsTenancy(), deps: d} }),
		reg.RegisterFactory(func() jobs.Job { return &ReportFiled{Tenancy: reportsTenancy(), deps: d} }),
		reg.RegisterFactory(func() jobs.Job { return &PurgeExpiredOTP{deps: d} }),
	)
}

// Prototypes returns one zero value per job type, registered or not.
// The conformance test walks this list.
func Prototypes() []jobs.Job {
	return []jobs.Job{NewWeatherRefresh(), NewReportDigest(time.Time{}), NewReportFiled(0, "", ""), NewPurgeExpiredOTP()}
}
