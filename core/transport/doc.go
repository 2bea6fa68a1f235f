// Package transport is the connection port of the node runtime.
//
// The runtime only assumes framed, identity-addressed, multi-part messages:
//
//   - [Router]: a bound socket; inbound messages carry the peer identity as
//     their first frame, outbound messages name the target peer the same way.
//   - [Socket]: a dialed connection to a router.
//   - [Network]: binds routers and dials sockets.
//   - [Poller]: fans many sockets into one event stream for a single
//     reactor goroutine.
//
// [MemoryNetwork] is the in-process implementation used by tests and
// single-process deployments. The adapters/tcp and adapters/nats packages
// provide networked implementations.
package transport
