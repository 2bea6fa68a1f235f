package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NamazuStudios/elements-sub015/core/worker"
)

// workerMetrics implements worker.WorkerMetrics using Prometheus.
type workerMetrics struct {
	started   *prometheus.CounterVec
	stopped   *prometheus.CounterVec
	commits   *prometheus.CounterVec
	restarts  *prometheus.CounterVec
	nodeCount prometheus.Gauge
}

func NewWorkerMetrics(reg prometheus.Registerer) worker.WorkerMetrics {
	m := &workerMetrics{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_worker_node_starts_total",
			Help: "Node startup attempts",
		}, []string{"application", "success"}),

		stopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_worker_node_stops_total",
			Help: "Node shutdowns",
		}, []string{"application", "success"}),

		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_worker_commits_total",
			Help: "Committed mutations",
		}, []string{"success"}),

		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_worker_node_restarts_total",
			Help: "Node restarts",
		}, []string{"application"}),

		nodeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clstr_worker_nodes",
			Help: "Published application nodes",
		}),
	}

	reg.MustRegister(m.started, m.stopped, m.commits, m.restarts, m.nodeCount)
	return m
}

func (m *workerMetrics) NodeStarted(app string, ok bool) {
	m.started.WithLabelValues(app, boolToStr(ok)).Inc()
}

func (m *workerMetrics) NodeStopped(app string, ok bool) {
	m.stopped.WithLabelValues(app, boolToStr(ok)).Inc()
}

func (m *workerMetrics) Committed(ok bool)    { m.commits.WithLabelValues(boolToStr(ok)).Inc() }
func (m *workerMetrics) Restarted(app string) { m.restarts.WithLabelValues(app).Inc() }
func (m *workerMetrics) Nodes(count int)      { m.nodeCount.Set(float64(count)) }

var _ worker.WorkerMetrics = (*workerMetrics)(nil)
