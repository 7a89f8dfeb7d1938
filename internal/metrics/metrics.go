// Package metrics provides Prometheus metrics for phymv.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry for all phymv metrics.
var Registry = prometheus.NewRegistry()

func init() {
	// Register standard Go metrics
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

var (
	defaultOnce     sync.Once
	defaultInstance *Metrics
)

// Operation results used as label values.
const (
	ResultSuccess   = "success"
	ResultPartial   = "partial"
	ResultFailure   = "failure"
	ResultReconcile = "reconcile"
)

// Metrics holds all Prometheus metrics for relocation and registration.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec   // phymv_operations_total{operation,result}
	OperationDuration *prometheus.HistogramVec // phymv_operation_duration_seconds{operation}
	BytesTransferred  prometheus.Counter       // phymv_bytes_transferred_total
	ReplicasInflight  prometheus.Gauge         // phymv_replicas_inflight
	CatalogRetries    prometheus.Counter       // phymv_catalog_retries_total
}

// New registers a fresh set of metrics with registry.
func New(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		OperationsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "phymv_operations_total",
			Help: "Relocation and registration operations by result",
		}, []string{"operation", "result"}),

		OperationDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phymv_operation_duration_seconds",
			Help:    "Operation duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"operation"}),

		BytesTransferred: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "phymv_bytes_transferred_total",
			Help: "Total replica bytes copied between resources",
		}),

		ReplicasInflight: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "phymv_replicas_inflight",
			Help: "Replicas currently held in intermediate state by this process",
		}),

		CatalogRetries: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "phymv_catalog_retries_total",
			Help: "Catalog writes retried after a lost compare-and-swap",
		}),
	}
}

// Default returns the process-wide metrics registered with Registry.
// Metrics are only registered once; subsequent calls return the same instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultInstance = New(Registry)
	})
	return defaultInstance
}

// Handler returns an HTTP handler exposing Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordOperation records one finished operation.
func (m *Metrics) RecordOperation(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// AddBytes records bytes copied by a successful transfer.
func (m *Metrics) AddBytes(n int64) {
	if m == nil {
		return
	}
	m.BytesTransferred.Add(float64(n))
}

// LockAcquired tracks a replica entering intermediate state.
func (m *Metrics) LockAcquired() {
	if m == nil {
		return
	}
	m.ReplicasInflight.Inc()
}

// LockReleased tracks a replica leaving intermediate state.
func (m *Metrics) LockReleased() {
	if m == nil {
		return
	}
	m.ReplicasInflight.Dec()
}

// CatalogRetry records one retried catalog write.
func (m *Metrics) CatalogRetry() {
	if m == nil {
		return
	}
	m.CatalogRetries.Inc()
}
