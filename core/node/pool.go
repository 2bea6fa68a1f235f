package node

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// pool runs dispatch tasks, one goroutine per in-flight call, so the proxy
// loop never blocks on application code.
type pool struct {
	log      *slog.Logger
	node     string
	metrics  NodeMetrics
	inflight atomic.Int32
	wg       sync.WaitGroup
}

func newPool(log *slog.Logger, node string, metrics NodeMetrics) *pool {
	return &pool{log: log, node: node, metrics: metrics}
}

func (p *pool) Go(f func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.metrics.DispatchInflight(p.node, int(p.inflight.Add(1)))
		defer func() {
			p.metrics.DispatchInflight(p.node, int(p.inflight.Add(-1)))
		}()
		p.run(f)
	}()
}

func (p *pool) run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.DispatchPanic(p.node)
			p.log.Error("dispatch task panicked", slog.Any("recovered", r))
		}
	}()
	f()
}

func (p *pool) Inflight() int { return int(p.inflight.Load()) }

// Drain waits for all tasks to finish, at most timeout.
func (p *pool) Drain(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return ErrDrainTimeout
	}
}
