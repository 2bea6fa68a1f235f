package invoke

import "github.com/NamazuStudios/elements-sub015/core/metrics"

// DispatchMetrics instruments method resolution and dispatch.
// All methods are thread-safe.
type DispatchMetrics interface {
	DispatchDuration(method string) metrics.Timer
	DispatchCompleted(method string, success bool)
	// DeliveryDropped counts late or duplicate deliveries; channel is
	// "sync" or "async".
	DeliveryDropped(channel string)
	MethodCacheLookup(hit bool)
	// MethodCacheEvicted counts processors dropped for capacity.
	MethodCacheEvicted()
}

type nopDispatchMetrics struct{}

func (nopDispatchMetrics) DispatchDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopDispatchMetrics) DispatchCompleted(string, bool)        {}
func (nopDispatchMetrics) DeliveryDropped(string)                {}
func (nopDispatchMetrics) MethodCacheLookup(bool)                {}
func (nopDispatchMetrics) MethodCacheEvicted()                   {}

func NopDispatchMetrics() DispatchMetrics { return nopDispatchMetrics{} }
