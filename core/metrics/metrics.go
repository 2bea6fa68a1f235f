// Package metrics holds the backend-neutral pieces shared by the per-component
// metric interfaces (dispatch, node, demux, worker). Concrete backends live
// under adapters/.
package metrics

import "time"

// Timer measures one operation; ObserveDuration records the time elapsed
// since the timer was created.
type Timer interface {
	ObserveDuration()
}

type funcTimer struct {
	start   time.Time
	observe func(time.Duration)
}

func (t funcTimer) ObserveDuration() { t.observe(time.Since(t.start)) }

// NewTimer starts a Timer that hands the elapsed duration to observe.
//
//	defer metrics.NewTimer(func(d time.Duration) { h.Observe(d.Seconds()) }).ObserveDuration()
func NewTimer(observe func(time.Duration)) Timer {
	return funcTimer{start: time.Now(), observe: observe}
}
