// Package metrics holds the Prometheus collectors of provisioning, migrations and
// connection pools. Commands are short lived, so the registry is flushed to a node
// exporter textfile rather than scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tansive/tenancy/internal/tenancy/naming"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	scopeSystem = "system"
	scopeTenant = "tenant"
)

// Metrics is a set of collectors registered on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	ProvisioningTotal    *prometheus.CounterVec
	ProvisioningDuration *prometheus.HistogramVec
	RollbacksTotal       *prometheus.CounterVec
	MigrationsApplied    *prometheus.CounterVec
	MigrationFailures    *prometheus.CounterVec
	MigrationDuration    *prometheus.HistogramVec
}

// New creates the collectors under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ProvisioningTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provisioning_runs_total",
				Help:      "Tenant provisioning runs by result",
			},
			[]string{"result"},
		),
		ProvisioningDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provisioning_duration_seconds",
				Help:      "Duration of tenant provisioning runs",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		RollbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provisioning_rollbacks_total",
				Help:      "Compensating actions run after failed provisioning, by result",
			},
			[]string{"result"},
		),
		MigrationsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migrations_applied_total",
				Help:      "Migrations applied by database scope",
			},
			[]string{"scope"},
		),
		MigrationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migration_failures_total",
				Help:      "Failed migrations by database scope",
			},
			[]string{"scope"},
		),
		MigrationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "migration_duration_seconds",
				Help:      "Duration of single migrations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackPools exposes the number of open tenant pools through open.
func (m *Metrics) TrackPools(namespace string, open func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tenant_pools_open",
		Help:      "Open tenant database pools",
	}, func() float64 { return float64(open()) })
}

// ProvisioningFinished records one provisioning run.
func (m *Metrics) ProvisioningFinished(err error, elapsed time.Duration) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.ProvisioningTotal.WithLabelValues(result).Inc()
	m.ProvisioningDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// RollbackFinished records one compensating action.
func (m *Metrics) RollbackFinished(err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.RollbacksTotal.WithLabelValues(result).Inc()
}

// MigrationApplied implements migrator.Observer.
func (m *Metrics) MigrationApplied(database, _ string, elapsed time.Duration) {
	m.MigrationsApplied.WithLabelValues(scope(database)).Inc()
	m.MigrationDuration.WithLabelValues(scope(database)).Observe(elapsed.Seconds())
}

// MigrationFailed implements migrator.Observer.
func (m *Metrics) MigrationFailed(database, _ string) {
	m.MigrationFailures.WithLabelValues(scope(database)).Inc()
}

// WriteTextfile writes every collector to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func scope(database string) string {
	if database == naming.SystemDatabaseAlias {
		return scopeSystem
	}
	return scopeTenant
}
