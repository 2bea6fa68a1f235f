// Package demux implements the connection demultiplexer: the single entry
// point that routes remote invocations to the nodes of a cluster.
//
// Frontend frames carry a [wire.RoutingHeader] naming the destination node.
// The demultiplexer strips it, resolves the destination through a
// [directory.Directory], opens a backend socket on first use and forwards
// the remaining frames unmodified. Replies travel back with a fresh routing
// header carrying the demultiplexer's own identity.
//
// All sockets are owned by one loop goroutine; a [transport.Poller] fans
// their inbound traffic into it.
package demux
