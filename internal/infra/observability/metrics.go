package observability

import (
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const (
	metricOperations  = "mazebank_money_operations_total"
	metricRejections  = "mazebank_rejections_total"
	metricStoreErrors = "mazebank_store_errors_total"
)

// Outcomes recorded for money operations.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics for the bank.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	operations        *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	storeErrors       *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mazebank_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricOperations,
				Help: "Money operations by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricRejections,
				Help: "Rejected money operations by reason.",
			},
			[]string{"reason"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricStoreErrors,
				Help: "Persistence failures by operation.",
			},
			[]string{"op"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mazebank_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mazebank_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrOperation counts a money operation with its outcome.
func (m *Metrics) IncrOperation(txType domain.TransactionType, outcome string) {
	m.operations.WithLabelValues(string(txType), outcome).Inc()
}

// IncrRejection counts a business-rule rejection.
func (m *Metrics) IncrRejection(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

// IncrStoreError counts a persistence failure.
func (m *Metrics) IncrStoreError(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// Snapshot reads the current counter values for GET /v1/admin/stats.
func (m *Metrics) Snapshot() (*domain.OperationStats, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}

	stats := &domain.OperationStats{
		Operations:  map[string]float64{},
		Rejections:  map[string]float64{},
		StoreErrors: map[string]float64{},
	}
	for _, mf := range families {
		switch mf.GetName() {
		case metricOperations:
			for _, metric := range mf.GetMetric() {
				key := labelValue(metric, "type") + "/" + labelValue(metric, "outcome")
				stats.Operations[key] = metric.GetCounter().GetValue()
			}
		case metricRejections:
			collect(stats.Rejections, mf, "reason")
		case metricStoreErrors:
			collect(stats.StoreErrors, mf, "op")
		}
	}

	hits := counterValue(m.cacheHits, "actor")
	misses := counterValue(m.cacheMisses, "actor")
	if hits+misses > 0 {
		stats.CacheHitRate = hits / (hits + misses)
	}
	return stats, nil
}

func collect(dst map[string]float64, mf *dto.MetricFamily, label string) {
	for _, metric := range mf.GetMetric() {
		dst[labelValue(metric, label)] = metric.GetCounter().GetValue()
	}
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// counterValue extracts the current float64 value from a CounterVec for a given label.
func counterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
