// Package node runs the per-application unit of a worker.
//
// A [Node] moves through its phases via a [Startup] handle
// (PreStart, Start, PostStart, or Cancel) and a [Shutdown] handle (PreStop,
// Stop, PostStop). While started it serves a [Binding] with a [Proxy]:
//
//	request: [caller..., "", RequestHeader, Invocation]
//	reply:   [caller..., "", ResponseHeader, payload]
//
// Each request is dispatched on its own goroutine; replies funnel back
// through the proxy loop, which alone writes to the router. [Client] is the
// calling side, used directly against a node or through a demultiplexer.
package node
