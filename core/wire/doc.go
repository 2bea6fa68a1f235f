// Package wire defines the binary records exchanged between callers,
// demultiplexers and nodes.
//
// # Headers
//
// Three fixed-size headers travel as individual frames of a multi-part
// [Message]:
//
//   - [RoutingHeader]: {status, destination}. Only present on the
//     demultiplexer hop; stripped on ingress and rebuilt on egress.
//   - [RequestHeader]: {additional parts}. How many asynchronous replies
//     the caller is prepared to receive besides the synchronous one.
//   - [ResponseHeader]: {type, part}. Part 0 is the synchronous reply.
//
// All integers are big endian. Headers never go through a general purpose
// serializer; each exposes Size, Append and the encoding.BinaryMarshaler
// pair.
//
// # Framing
//
// Request: [identity..., "", RoutingHeader?, RequestHeader, payload]
//
// Reply: [identity..., "", RoutingHeader?, ResponseHeader, payload]
//
// Stream transports (TCP, NATS) encode a whole Message with [Encode] /
// [ReadMessage]; in-memory transports pass Message values directly.
package wire
