package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NamazuStudios/elements-sub015/core/invoke"
	"github.com/NamazuStudios/elements-sub015/core/metrics"
)

// dispatchMetrics implements invoke.DispatchMetrics using Prometheus.
type dispatchMetrics struct {
	duration    *prometheus.HistogramVec
	completed   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec
	cacheEvict  prometheus.Counter
}

func NewDispatchMetrics(reg prometheus.Registerer) invoke.DispatchMetrics {
	m := &dispatchMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clstr_dispatch_duration_seconds",
			Help:    "Time from receiving an invocation to its last delivery",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_dispatch_completed_total",
			Help: "Total number of dispatched invocations",
		}, []string{"method", "success"}),

		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_dispatch_deliveries_dropped_total",
			Help: "Late or duplicate result deliveries that were dropped",
		}, []string{"channel"}),

		cacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_method_cache_lookups_total",
			Help: "Method cache lookups",
		}, []string{"hit"}),

		cacheEvict: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clstr_method_cache_evictions_total",
			Help: "Method processors evicted from the cache for capacity",
		}),
	}

	reg.MustRegister(m.duration, m.completed, m.dropped, m.cacheLookup, m.cacheEvict)
	return m
}

func (m *dispatchMetrics) DispatchDuration(method string) metrics.Timer {
	return newTimer(m.duration.WithLabelValues(method))
}

func (m *dispatchMetrics) DispatchCompleted(method string, success bool) {
	m.completed.WithLabelValues(method, boolToStr(success)).Inc()
}

func (m *dispatchMetrics) DeliveryDropped(channel string) {
	m.dropped.WithLabelValues(channel).Inc()
}

func (m *dispatchMetrics) MethodCacheLookup(hit bool) {
	m.cacheLookup.WithLabelValues(boolToStr(hit)).Inc()
}

func (m *dispatchMetrics) MethodCacheEvicted() {
	m.cacheEvict.Inc()
}

var _ invoke.DispatchMetrics = (*dispatchMetrics)(nil)
