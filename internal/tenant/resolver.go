// internal/tenant/resolver.go
//
// Tenant resolver.
//
// Context
// -------
// Resolve walks the signals in a fixed order and stops at the first one
// that names a known city:
//
//  1. path slug      (canonical routes, /{region}/{city}/...)
//  2. header         (only when tenancy.allow_header_override is on)
//  3. request host   (only hosts matching tenancy.trusted_hosts)
//  4. payload slug   (JSON "city_slug")
//  5. default city   (disabled in strict mode)
//
// A signal that names an unknown city is skipped and recorded as an
// anomaly.  Signals that lose to a higher-priority signal but disagree
// with it are recorded too.  Control-plane errors abort resolution with
// ErrLookupFailed; they never silently degrade to the fallback.
package tenant

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/metrics"
)

// Directory looks cities up by slug or id.  *city.Directory satisfies it.
type Directory interface {
	BySlug(ctx context.Context, slug string) (*city.City, error)
	ByID(ctx context.Context, id uint64) (*city.City, error)
}

// Options mirror the tenancy config block.
type Options struct {
	Hosts               HostPolicy
	AllowHeaderOverride bool
	DefaultCitySlug     string
	Strict              bool
}

// Resolver is stateless apart from its collaborators and safe to share.
type Resolver struct {
	dir       Directory
	domains   *DomainMap
	opts      Options
	anomalies *Tracker
	log       *zap.Logger
}

// NewResolver wires a resolver.  domains and anomalies may be nil.  The
// default slug is normalized like every other slug signal.
func NewResolver(dir Directory, domains *DomainMap, opts Options, anomalies *Tracker, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.L()
	}
	opts.DefaultCitySlug = city.NormalizeSlug(opts.DefaultCitySlug)
	return &Resolver{dir: dir, domains: domains, opts: opts, anomalies: anomalies, log: log}
}

// Resolve returns Resolved or Unresolved; it never panics on bad input.
func (r *Resolver) Resolve(ctx context.Context, in Input) Outcome {
	out := r.resolve(ctx, in)
	switch o := out.(type) {
	case Resolved:
		metrics.TenantResolutionsTotal.WithLabelValues(o.Source.String()).Inc()
		r.checkLosers(ctx, in, o)
	case Unresolved:
		reason := "required"
		if errors.Is(o.Err, ErrLookupFailed) {
			reason = "lookup_failed"
		}
		metrics.TenantUnresolvedTotal.WithLabelValues(reason).Inc()
	}
	return out
}

func (r *Resolver) resolve(ctx context.Context, in Input) Outcome {
	if in.PathSlug != "" {
		c, err := r.bySlug(ctx, "path", in.PathSlug)
		if err != nil {
			return Unresolved{Err: err}
		}
		if c != nil {
			return Resolved{City: c, Source: SourcePath}
		}
	}

	if in.Header != "" && r.opts.AllowHeaderOverride {
		c, err := r.bySlug(ctx, "header", in.Header)
		if err != nil {
			return Unresolved{Err: err}
		}
		if c != nil {
			return Resolved{City: c, Source: SourceHeader}
		}
	}

	if host := CanonicalHost(in.Host); host != "" && r.domains != nil && r.opts.Hosts.Trusted(host) {
		c, err := r.byHost(ctx, host)
		if err != nil {
			return Unresolved{Err: err}
		}
		if c != nil {
			return Resolved{City: c, Source: SourceDomain}
		}
	}

	if in.PayloadSlug != "" {
		c, err := r.bySlug(ctx, "payload", in.PayloadSlug)
		if err != nil {
			return Unresolved{Err: err}
		}
		if c != nil {
			return Resolved{City: c, Source: SourcePayload}
		}
	}

	if r.opts.Strict || r.opts.DefaultCitySlug == "" {
		return Unresolved{Err: ErrTenantRequired}
	}
	c, err := r.dir.BySlug(ctx, r.opts.DefaultCitySlug)
	if err != nil {
		// A missing default city is a deployment error, not a reason to
		// guess another tenant.
		r.log.Error("default city unavailable",
			zap.String("city_slug", r.opts.DefaultCitySlug), zap.Error(err))
		return Unresolved{Err: ErrTenantRequired}
	}
	return Resolved{City: c, Source: SourceFallback}
}

// bySlug returns (nil, nil) when slug names no city.
func (r *Resolver) bySlug(ctx context.Context, signal, raw string) (*city.City, error) {
	slug := city.NormalizeSlug(raw)
	c, err := r.dir.BySlug(ctx, slug)
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, city.ErrNotFound):
		r.anomalies.Record(ctx, Anomaly{Kind: KindUnknownSlug, Signal: signal, Value: raw})
		return nil, nil
	default:
		r.log.Error("city lookup failed", zap.String("signal", signal), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
}

func (r *Resolver) byHost(ctx context.Context, host string) (*city.City, error) {
	id, ok, err := r.domains.CityID(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if !ok {
		r.anomalies.Record(ctx, Anomaly{Kind: KindUnknownHost, Signal: "domain", Value: host})
		return nil, nil
	}
	c, err := r.dir.ByID(ctx, id)
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, city.ErrNotFound):
		r.anomalies.Record(ctx, Anomaly{Kind: KindUnknownHost, Signal: "domain", Value: host})
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
}

// checkLosers records header and payload signals that were never tried
// because a higher-priority signal won, and that disagree with it.
// Signals that were tried and failed were already recorded as unknown.
func (r *Resolver) checkLosers(ctx context.Context, in Input, won Resolved) {
	headerSkipped := !r.opts.AllowHeaderOverride || won.Source == SourcePath
	if in.Header != "" && headerSkipped {
		if slug := city.NormalizeSlug(in.Header); slug != won.City.Slug {
			kind := KindHeaderIgnored
			if r.opts.AllowHeaderOverride {
				kind = KindHeaderConflict
			}
			r.anomalies.Record(ctx, Anomaly{
				Kind: kind, Signal: "header", Value: in.Header, Resolved: won.City.Slug,
			})
		}
	}
	payloadSkipped := won.Source != SourcePayload && won.Source != SourceFallback
	if in.PayloadSlug != "" && payloadSkipped {
		if slug := city.NormalizeSlug(in.PayloadSlug); slug != won.City.Slug {
			r.anomalies.Record(ctx, Anomaly{
				Kind: KindPayloadIgnored, Signal: "payload", Value: in.PayloadSlug, Resolved: won.City.Slug,
			})
		}
	}
}
