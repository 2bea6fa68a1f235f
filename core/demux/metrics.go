package demux

// DemuxMetrics instruments the routing loop. All methods are thread-safe.
type DemuxMetrics interface {
	// FrameRouted counts forwarded frames; direction is "inbound" (caller to
	// node) or "outbound".
	FrameRouted(direction string)
	DeadReply()
	// MalformedFrame counts frames that cost their peer its connection;
	// side is "frontend" or "backend".
	MalformedFrame(side string)
	// DroppedFrame counts frames dropped because the receiving peer's queue
	// was full; direction is "inbound", "outbound" or "dead".
	DroppedFrame(direction string)
	BackendOpened()
	BackendClosed(reason string)
	Backends(count int)
}

type nopDemuxMetrics struct{}

func (nopDemuxMetrics) FrameRouted(string)    {}
func (nopDemuxMetrics) DeadReply()            {}
func (nopDemuxMetrics) MalformedFrame(string) {}
func (nopDemuxMetrics) DroppedFrame(string)   {}
func (nopDemuxMetrics) BackendOpened()        {}
func (nopDemuxMetrics) BackendClosed(string)  {}
func (nopDemuxMetrics) Backends(int)          {}

func NopDemuxMetrics() DemuxMetrics { return nopDemuxMetrics{} }
