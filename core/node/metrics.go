package node

// NodeMetrics instruments the proxy loop. All methods are thread-safe.
type NodeMetrics interface {
	RequestReceived(node string)
	// RequestDropped counts inbound messages that were not dispatched;
	// reason is "malformed", "bad_payload" or "not_accepting".
	RequestDropped(node, reason string)
	ReplySent(node, responseType string)
	// ReplyDropped counts replies the router could not queue for their
	// caller.
	ReplyDropped(node string)
	DispatchInflight(node string, count int)
	DispatchPanic(node string)
}

type nopNodeMetrics struct{}

func (nopNodeMetrics) RequestReceived(string)        {}
func (nopNodeMetrics) RequestDropped(string, string) {}
func (nopNodeMetrics) ReplySent(string, string)      {}
func (nopNodeMetrics) ReplyDropped(string)           {}
func (nopNodeMetrics) DispatchInflight(string, int)  {}
func (nopNodeMetrics) DispatchPanic(string)          {}

func NopNodeMetrics() NodeMetrics { return nopNodeMetrics{} }
