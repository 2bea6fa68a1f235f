package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NamazuStudios/elements-sub015/core/node"
)

// nodeMetrics implements node.NodeMetrics using Prometheus.
type nodeMetrics struct {
	received *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	replies  *prometheus.CounterVec
	unsent   *prometheus.CounterVec
	inflight *prometheus.GaugeVec
	panics   *prometheus.CounterVec
}

func NewNodeMetrics(reg prometheus.Registerer) node.NodeMetrics {
	m := &nodeMetrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_node_requests_total",
			Help: "Requests read by the node proxy",
		}, []string{"node"}),

		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_node_requests_dropped_total",
			Help: "Requests that were not dispatched",
		}, []string{"node", "reason"}),

		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_node_replies_total",
			Help: "Replies queued by dispatch tasks",
		}, []string{"node", "type"}),

		unsent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_node_replies_dropped_total",
			Help: "Replies dropped because the caller's queue was full",
		}, []string{"node"}),

		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clstr_node_dispatch_inflight",
			Help: "Dispatches in progress",
		}, []string{"node"}),

		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_node_dispatch_panics_total",
			Help: "Dispatch tasks that panicked",
		}, []string{"node"}),
	}

	reg.MustRegister(m.received, m.dropped, m.replies, m.unsent, m.inflight, m.panics)
	return m
}

func (m *nodeMetrics) RequestReceived(n string) { m.received.WithLabelValues(n).Inc() }

func (m *nodeMetrics) RequestDropped(n, reason string) {
	m.dropped.WithLabelValues(n, reason).Inc()
}

func (m *nodeMetrics) ReplySent(n, typ string) { m.replies.WithLabelValues(n, typ).Inc() }

func (m *nodeMetrics) ReplyDropped(n string) { m.unsent.WithLabelValues(n).Inc() }

func (m *nodeMetrics) DispatchInflight(n string, count int) {
	m.inflight.WithLabelValues(n).Set(float64(count))
}

func (m *nodeMetrics) DispatchPanic(n string) { m.panics.WithLabelValues(n).Inc() }

var _ node.NodeMetrics = (*nodeMetrics)(nil)
