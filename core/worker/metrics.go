package worker

// WorkerMetrics instruments node lifecycle work. All methods are
// thread-safe.
type WorkerMetrics interface {
	// NodeStarted counts startup attempts per application.
	NodeStarted(app string, ok bool)
	NodeStopped(app string, ok bool)
	Committed(ok bool)
	Restarted(app string)
	Nodes(count int)
}

type nopWorkerMetrics struct{}

func (nopWorkerMetrics) NodeStarted(string, bool) {}
func (nopWorkerMetrics) NodeStopped(string, bool) {}
func (nopWorkerMetrics) Committed(bool)           {}
func (nopWorkerMetrics) Restarted(string)         {}
func (nopWorkerMetrics) Nodes(int)                {}

func NopWorkerMetrics() WorkerMetrics { return nopWorkerMetrics{} }
