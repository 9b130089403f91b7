// internal/tenant/anomaly.go
//
// Resolution anomaly tracking.
//
// Context
// -------
// Signals that disagree with the resolved city, unknown slugs, and hosts
// that pass the trusted-host check but map to no city are all recorded
// here.  Each record is logged (with client IP, country, and bot flag
// when requestinfo ran) and counted.  When the number of records inside
// the rolling window reaches the threshold the Alerter fires, at most
// once per window.
//
// A nil *Tracker is valid and records nothing.
package tenant

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/metrics"
	"github.com/yanizio/civitas/internal/requestinfo"
)

// Kind classifies an anomaly.
type Kind string

const (
	KindUnknownSlug    Kind = "unknown_slug"
	KindUnknownHost    Kind = "unknown_host"
	KindHeaderIgnored  Kind = "header_ignored"
	KindHeaderConflict Kind = "header_conflict"
	KindPayloadIgnored Kind = "payload_ignored"
)

// Anomaly is one recorded event.
type Anomaly struct {
	Kind     Kind
	Signal   string // "path", "header", "domain", "payload"
	Value    string
	Resolved string // slug of the city that won, if any
	At       time.Time
}

// Alert summarises a threshold crossing.
type Alert struct {
	Count  int
	Window time.Duration
	Last   Anomaly
}

// Alerter receives threshold crossings.
type Alerter interface {
	TenantAnomaly(ctx context.Context, a Alert)
}

// NopAlerter drops alerts.
type NopAlerter struct{}

func (NopAlerter) TenantAnomaly(context.Context, Alert) {}

// Tracker is safe for concurrent use.
type Tracker struct {
	threshold int
	window    time.Duration
	alerter   Alerter
	log       *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	events    []time.Time
	lastAlert time.Time
}

// NewTracker builds a tracker.  threshold <= 0 disables alerting but
// still logs and counts.
func NewTracker(threshold int, window time.Duration, alerter Alerter, log *zap.Logger) *Tracker {
	if alerter == nil {
		alerter = NopAlerter{}
	}
	if log == nil {
		log = zap.L()
	}
	return &Tracker{
		threshold: threshold,
		window:    window,
		alerter:   alerter,
		log:       log,
		now:       time.Now,
	}
}

// Record logs and counts a, and fires the alerter when due.
func (t *Tracker) Record(ctx context.Context, a Anomaly) {
	if t == nil {
		return
	}
	now := t.now()
	a.At = now
	metrics.TenantMismatchesTotal.WithLabelValues(string(a.Kind)).Inc()

	fields := []zap.Field{
		zap.String("kind", string(a.Kind)),
		zap.String("signal", a.Signal),
		zap.String("value", a.Value),
		zap.String("resolved", a.Resolved),
	}
	if info := requestinfo.FromContext(ctx); info != nil {
		fields = append(fields,
			zap.Stringer("ip", info.Geo.IP),
			zap.String("country", info.Geo.CountryISO),
			zap.Bool("bot", info.UA.IsBot),
		)
	}
	t.log.Info("tenant mismatch", fields...)

	if t.threshold <= 0 {
		return
	}

	t.mu.Lock()
	cutoff := now.Add(-t.window)
	keep := t.events[:0]
	for _, ts := range t.events {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	t.events = append(keep, now)
	count := len(t.events)
	due := count >= t.threshold &&
		(t.lastAlert.IsZero() || now.Sub(t.lastAlert) >= t.window)
	if due {
		t.lastAlert = now
	}
	t.mu.Unlock()

	if due {
		metrics.TenantAnomalyAlertsTotal.Inc()
		t.log.Warn("tenant mismatch threshold crossed",
			zap.Int("count", count),
			zap.Duration("window", t.window),
			zap.String("last_kind", string(a.Kind)),
		)
		t.alerter.TenantAnomaly(ctx, Alert{Count: count, Window: t.window, Last: a})
	}
}
