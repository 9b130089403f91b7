package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/cache"
	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/jobs"
	"github.com/yanizio/civitas/internal/notify"
	"github.com/yanizio/civitas/internal/report"
	"github.com/yanizio/civitas/internal/tenant"
	"github.com/yanizio/civitas/internal/tenantcache"
	"github.com/yanizio/civitas/internal/weather"
)

var (
	santos   = &city.City{ID: 1, Slug: "santos", Name: "Santos", Status: city.StatusActive, Latitude: -23.96, Longitude: -46.33, Timezone: "America/Sao_Paulo", Coastal: true}
	campinas = &city.City{ID: 2, Slug: "campinas", Name: "Campinas", Status: city.StatusActive, Latitude: -22.9, Longitude: -47.06, Timezone: "America/Sao_Paulo"}
)

type cityTable map[uint64]*city.City

func (c cityTable) ByID(_ context.Context, id uint64) (*city.City, error) {
	if v, ok := c[id]; ok {
		return v, nil
	}
	return nil, city.ErrNotFound
}

func (c cityTable) AllActive(context.Context) ([]city.City, error) {
	return []city.City{*santos, *campinas}, nil
}

type fakeProvider struct {
	marineErr error
	calls     []weather.Point
}

func (f *fakeProvider) Forecast(_ context.Context, p weather.Point) (weather.Current, []weather.Day, error) {
	f.calls = append(f.calls, p)
	return weather.Current{Temperature: p.Latitude}, []weather.Day{{Date: "2026-10-19"}}, nil
}

func (f *fakeProvider) Marine(context.Context, weather.Point) (*weather.Marine, error) {
	if f.marineErr != nil {
		return nil, f.marineErr
	}
	return &weather.Marine{WaveHeight: 1.2}, nil
}

type fakeReports struct {
	counts   []report.CategoryCount
	contacts []string
	purged   time.Time
}

func (f *fakeReports) Summary(context.Context, uint64, time.Time) ([]report.CategoryCount, error) {
	return f.counts, nil
}

func (f *fakeReports) DigestContacts(context.Context, uint64) ([]string, error) {
	return f.contacts, nil
}

func (f *fakeReports) PurgeExpiredOTP(_ context.Context, cutoff time.Time) (int64, error) {
	f.purged = cutoff
	return 3, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
	fail map[string]bool
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fixture struct {
	deps   *Deps
	worker *jobs.Worker
	disp   *jobs.Dispatcher
	queue  *jobs.MemoryQueue
}

var fixedNow = time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, p *fakeProvider, r *fakeReports, m notify.Mailer) *fixture {
	t.Helper()
	deps := &Deps{
		Cache:   tenantcache.New(cache.NewMemory(100), zap.NewNop()),
		Weather: p,
		Reports: r,
		Mailer:  m,
		Log:     zap.NewNop(),
		Now:     func() time.Time { return fixedNow },
	}
	reg := jobs.NewRegistry()
	if err := Register(reg, deps); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h := jobs.Chain(jobs.Run, jobs.EnsureTenantContext(cityTable{1: santos, 2: campinas}, zap.NewNop()))
	q := jobs.NewMemoryQueue(16, 1, zap.NewNop())
	return &fixture{
		deps:   deps,
		worker: jobs.NewWorker(1, reg, h, zap.NewNop()),
		disp:   jobs.NewDispatcher(q, zap.NewNop()),
		queue:  q,
	}
}

func envelope(t *testing.T, name, payload string) jobs.Envelope {
	t.Helper()
	return jobs.Envelope{ID: "e1", Name: name, Payload: []byte(payload)}
}

func boundTo(c *city.City) context.Context {
	return tenant.Detached(context.Background(), tenant.Resolved{City: c, Source: tenant.SourceQueueJob})
}

func TestConformance(t *testing.T) {
	reg := jobs.NewRegistry()
	if err := Register(reg, &Deps{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if v := jobs.Conformance(reg, Prototypes()...); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
	want := []string{NamePurgeExpiredOTP, NameReportDigest, NameReportFiled, NameWeatherRefresh}
	got := reg.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("names = %v, want %v", got, want)
	}
	for _, j := range Prototypes() {
		if tc, ok := j.Contract().(jobs.TenantContract); ok && tc.ModuleKey == "" {
			t.Errorf("%s: tenant job without module key", j.Name())
		}
	}
}

func TestWeatherRefresh_StoresSnapshotForCity(t *testing.T) {
	p := &fakeProvider{}
	f := newFixture(t, p, &fakeReports{}, &recordingMailer{})

	if err := f.worker.Process(context.Background(), envelope(t, NameWeatherRefresh, `{"city_id":1,"trace_id":"t1"}`)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	snap, ok := tenantcache.Lookup[weather.Snapshot](boundTo(santos), f.deps.Cache, weather.SnapshotSuffix)
	if !ok {
		t.Fatal("snapshot not cached for santos")
	}
	if snap.CityID != 1 || snap.Current.Temperature != santos.Latitude || snap.Marine == nil {
		t.Errorf("snapshot = %+v", snap)
	}
	if !snap.FetchedAt.Equal(fixedNow) {
		t.Errorf("fetched_at = %v", snap.FetchedAt)
	}
	if _, ok := tenantcache.Lookup[weather.Snapshot](boundTo(campinas), f.deps.Cache, weather.SnapshotSuffix); ok {
		t.Error("snapshot leaked into campinas")
	}
	if f.worker.Slot().IsSet() {
		t.Error("worker slot still bound after the job")
	}
}

func TestWeatherRefresh_MarineFailureTolerated(t *testing.T) {
	p := &fakeProvider{marineErr: errors.New("marine down")}
	f := newFixture(t, p, &fakeReports{}, &recordingMailer{})

	if err := f.worker.Process(context.Background(), envelope(t, NameWeatherRefresh, `{"city_id":1}`)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	snap, ok := tenantcache.Lookup[weather.Snapshot](boundTo(santos), f.deps.Cache, weather.SnapshotSuffix)
	if !ok || snap.Marine != nil {
		t.Fatalf("snapshot = %+v, %v", snap, ok)
	}
}

func TestWeatherRefresh_InlandSkipsMarine(t *testing.T) {
	p := &fakeProvider{marineErr: errors.New("must not be called")}
	f := newFixture(t, p, &fakeReports{}, &recordingMailer{})
	if err := f.worker.Process(context.Background(), envelope(t, NameWeatherRefresh, `{"city_id":2}`)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(p.calls) != 1 || p.calls[0].Latitude != campinas.Latitude {
		t.Errorf("provider calls = %+v", p.calls)
	}
}

func TestWeatherRefresh_MissingCityIsFatal(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, &fakeReports{}, &recordingMailer{})
	err := f.worker.Process(context.Background(), envelope(t, NameWeatherRefresh, `{}`))
	if !jobs.IsFatal(err) || !errors.Is(err, jobs.ErrMissingCity) {
		t.Fatalf("err = %v, want fatal ErrMissingCity", err)
	}
}

func TestReportDigest_MailsContacts(t *testing.T) {
	r := &fakeReports{
		counts:   []report.CategoryCount{{Category: "pothole", Count: 5}, {Category: "lighting", Count: 2}},
		contacts: []string{"ouvidoria@santos.example", "obras@santos.example"},
	}
	m := &recordingMailer{}
	f := newFixture(t, &fakeProvider{}, r, m)

	if err := f.worker.Process(context.Background(), envelope(t, NameReportDigest, `{"city_id":1}`)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(m.sent) != 2 {
		t.Fatalf("sent %d messages", len(m.sent))
	}
	if m.sent[0].To != "ouvidoria@santos.example" || m.sent[0].Subject != "Santos: 7 new reports" {
		t.Errorf("first message = %+v", m.sent[0])
	}
	if !strings.Contains(m.sent[1].Text, "pothole") {
		t.Errorf("body = %q", m.sent[1].Text)
	}
}

func TestReportDigest_PartialMailFailureNotRetried(t *testing.T) {
	r := &fakeReports{
		counts:   []report.CategoryCount{{Category: "pothole", Count: 1}},
		contacts: []string{"ouvidoria@santos.example", "obras@santos.example"},
	}
	m := &recordingMailer{fail: map[string]bool{"obras@santos.example": true}}
	f := newFixture(t, &fakeProvider{}, r, m)

	if err := f.worker.Process(context.Background(), envelope(t, NameReportDigest, `{"city_id":1}`)); err != nil {
		t.Fatalf("Process = %v, want nil so the delivered address is not mailed again", err)
	}
	if len(m.sent) != 1 || m.sent[0].To != "ouvidoria@santos.example" {
		t.Errorf("sent = %+v", m.sent)
	}
}

func TestReportFiled_AllMailFailedIsRetryable(t *testing.T) {
	m := &recordingMailer{fail: map[string]bool{"ouvidoria@santos.example": true}}
	f := newFixture(t, &fakeProvider{}, &fakeReports{contacts: []string{"ouvidoria@santos.example"}}, m)

	err := f.worker.Process(context.Background(), envelope(t, NameReportFiled, `{"city_id":1,"report_id":9,"category":"pothole"}`))
	if err == nil || jobs.IsFatal(err) {
		t.Fatalf("Process = %v, want a retryable error", err)
	}
}

func TestReportDigest_NothingToSend(t *testing.T) {
	m := &recordingMailer{}
	f := newFixture(t, &fakeProvider{}, &fakeReports{contacts: []string{"x@y.example"}}, m)
	if err := f.worker.Process(context.Background(), envelope(t, NameReportDigest, `{"city_id":1}`)); err != nil {
		t.Fatal(err)
	}
	if len(m.sent) != 0 {
		t.Errorf("sent %d messages for an empty digest", len(m.sent))
	}
}

func TestReportFiled_RoundTripsThroughQueue(t *testing.T) {
	m := &recordingMailer{}
	f := newFixture(t, &fakeProvider{}, &fakeReports{contacts: []string{"ouvidoria@santos.example"}}, m)

	ctx := boundTo(santos)
	if err := f.disp.Enqueue(ctx, NewReportFiled(42, "pothole", "Buraco na Av. Ana Costa")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- f.queue.Subscribe(runCtx, func(ctx context.Context, env jobs.Envelope) error {
			defer cancel()
			return f.worker.Process(ctx, env)
		})
	}()
	<-done

	if len(m.sent) != 1 || m.sent[0].Subject != "Santos: new report #42 (pothole)" {
		t.Fatalf("sent = %+v", m.sent)
	}
}

func TestNewReportFiled_TruncatesSummary(t *testing.T) {
	j := NewReportFiled(1, "x", strings.Repeat("á", 300))
	if n := len([]rune(j.Summary)); n != 281 {
		t.Errorf("summary runes = %d, want 281", n)
	}
}

func TestPurgeExpiredOTP_RunsWithoutTenant(t *testing.T) {
	r := &fakeReports{}
	f := newFixture(t, &fakeProvider{}, r, &recordingMailer{})
	if err := f.worker.Process(context.Background(), envelope(t, NamePurgeExpiredOTP, `{}`)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !r.purged.Equal(fixedNow) {
		t.Errorf("cutoff = %v", r.purged)
	}
}

type moduleTable map[uint64]bool

func (m moduleTable) Enabled(_ context.Context, cityID uint64, _ string) (bool, error) {
	return m[cityID], nil
}

type captureQueue struct{ envs []jobs.Envelope }

func (c *captureQueue) Publish(_ context.Context, env jobs.Envelope) error {
	c.envs = append(c.envs, env)
	return nil
}

func (c *captureQueue) Subscribe(ctx context.Context, _ func(context.Context, jobs.Envelope) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestScheduler_FansOutToEnabledCities(t *testing.T) {
	q := &captureQueue{}
	s := NewScheduler(jobs.NewDispatcher(q, zap.NewNop()), cityTable{}, moduleTable{1: true, 2: false}, zap.NewNop())

	if err := s.EnqueueWeather(context.Background()); err != nil {
		t.Fatalf("EnqueueWeather: %v", err)
	}
	if len(q.envs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.envs))
	}

	reg := jobs.NewRegistry()
	_ = Register(reg, &Deps{})
	j, err := reg.Decode(q.envs[0])
	if err != nil {
		t.Fatal(err)
	}
	tc := j.Contract().(jobs.TenantContract)
	if tc.CityID != 1 || tc.ModuleKey != "weather" || tc.TraceID == "" {
		t.Errorf("contract = %+v", tc)
	}
}
