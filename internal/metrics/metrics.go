// Package metrics holds Prometheus instruments that are used across the
// platform.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveCities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "civitas_active_cities",
			Help: "Number of cities currently held in the directory cache.",
		})

	CityLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civitas_city_load_total",
			Help: "Cumulative number of cities loaded from the control plane.",
		})

	CityLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civitas_city_load_errors_total",
			Help: "Cumulative number of city load errors (not-found excluded).",
		})

	CityEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civitas_city_evict_total",
			Help: "Cumulative number of cities evicted from the directory cache.",
		})

	DomainMapLoadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civitas_domain_map_loads_total",
			Help: "Cumulative number of domain map reloads.",
		})

	DomainMapLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civitas_domain_map_load_errors_total",
			Help: "Cumulative number of failed domain map reloads.",
		})

	TenantResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civitas_tenant_resolutions_total",
			Help: "Successful tenant resolutions by source.",
		}, []string{"source"})

	TenantUnresolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civitas_tenant_unresolved_total",
			Help: "Requests rejected for lack of a trustworthy tenant, by reason.",
		}, []string{"reason"})

	TenantMismatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civitas_tenant_mismatches_total",
			Help: "Tenant resolution anomalies by kind.",
		}, []string{"kind"})

	TenantAnomalyAlertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civitas_tenant_anomaly_alerts_total",
			Help: "Times the mismatch threshold was crossed inside its window.",
		})

	ModuleDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civitas_module_denied_total",
			Help: "Requests refused because the module is disabled for the city.",
		}, []string{"module"})

	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civitas_jobs_processed_total",
			Help: "Background jobs processed by job name and outcome.",
		}, []string{"job", "outcome"})
)

func init() {
	prometheus.MustRegister(
		ActiveCities,
		CityLoadTotal,
		CityLoadErrorsTotal,
		CityEvictTotal,
		DomainMapLoadsTotal,
		DomainMapLoadErrorsTotal,
		TenantResolutionsTotal,
		TenantUnresolvedTotal,
		TenantMismatchesTotal,
		TenantAnomalyAlertsTotal,
		ModuleDeniedTotal,
		JobsProcessedTotal,
	)
}
