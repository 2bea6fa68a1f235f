package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NamazuStudios/elements-sub015/core/demux"
)

// demuxMetrics implements demux.DemuxMetrics using Prometheus.
type demuxMetrics struct {
	routed    *prometheus.CounterVec
	dead      prometheus.Counter
	malformed *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	opened    prometheus.Counter
	closed    *prometheus.CounterVec
	backends  prometheus.Gauge
}

func NewDemuxMetrics(reg prometheus.Registerer) demux.DemuxMetrics {
	m := &demuxMetrics{
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_demux_frames_routed_total",
			Help: "Frames forwarded by the demultiplexer",
		}, []string{"direction"}),

		dead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clstr_demux_dead_replies_total",
			Help: "Requests answered with a DEAD routing header",
		}),

		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_demux_malformed_frames_total",
			Help: "Malformed frames, each costing its peer the connection",
		}, []string{"side"}),

		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_demux_frames_dropped_total",
			Help: "Frames dropped because the receiving peer's queue was full",
		}, []string{"direction"}),

		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clstr_demux_backends_opened_total",
			Help: "Backend sockets opened",
		}),

		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clstr_demux_backends_closed_total",
			Help: "Backend sockets torn down",
		}, []string{"reason"}),

		backends: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clstr_demux_backends",
			Help: "Open backend sockets",
		}),
	}

	reg.MustRegister(m.routed, m.dead, m.malformed, m.dropped, m.opened, m.closed, m.backends)
	return m
}

func (m *demuxMetrics) FrameRouted(direction string)  { m.routed.WithLabelValues(direction).Inc() }
func (m *demuxMetrics) DeadReply()                    { m.dead.Inc() }
func (m *demuxMetrics) MalformedFrame(side string)    { m.malformed.WithLabelValues(side).Inc() }
func (m *demuxMetrics) DroppedFrame(direction string) { m.dropped.WithLabelValues(direction).Inc() }
func (m *demuxMetrics) BackendOpened()                { m.opened.Inc() }
func (m *demuxMetrics) BackendClosed(reason string)   { m.closed.WithLabelValues(reason).Inc() }
func (m *demuxMetrics) Backends(count int)            { m.backends.Set(float64(count)) }

var _ demux.DemuxMetrics = (*demuxMetrics)(nil)
