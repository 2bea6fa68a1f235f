// Package prometheus provides Prometheus implementations of the metrics
// interfaces of the dispatcher, nodes, the demultiplexer and the worker.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NamazuStudios/elements-sub015/core/metrics"
)

func newTimer(h prometheus.Observer) metrics.Timer {
	return metrics.NewTimer(func(d time.Duration) { h.Observe(d.Seconds()) })
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// AllMetrics holds the Prometheus implementations for every component.
type AllMetrics struct {
	Dispatch *dispatchMetrics
	Node     *nodeMetrics
	Demux    *demuxMetrics
	Worker   *workerMetrics
}

// NewAllMetrics registers the metrics of every component with reg.
func NewAllMetrics(reg prometheus.Registerer) *AllMetrics {
	return &AllMetrics{
		Dispatch: NewDispatchMetrics(reg).(*dispatchMetrics),
		Node:     NewNodeMetrics(reg).(*nodeMetrics),
		Demux:    NewDemuxMetrics(reg).(*demuxMetrics),
		Worker:   NewWorkerMetrics(reg).(*workerMetrics),
	}
}
