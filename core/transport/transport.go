package transport

import (
	"context"

	"github.com/NamazuStudios/elements-sub015/core/wire"
)

// Socket is a framed, bidirectional message channel.
//
// Messages received from Recv are owned by the receiver. Done is closed
// once the socket is closed locally or fails; Err then reports why.
//
// Send waits for room in the peer's queue until ctx is done. TrySend never
// waits: when the queue is full the message is dropped and
// ErrHighWaterMark returned.
type Socket interface {
	Send(ctx context.Context, msg wire.Message) error
	TrySend(msg wire.Message) error
	Recv() <-chan wire.Message
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Router is a bound socket serving many peers.
//
// Every inbound message is prefixed with the sending peer's identity frame.
// Outbound messages must start with the identity of the target peer; the
// router strips it and delivers the rest to that peer.
type Router interface {
	Socket
	// Addr is the address dialers use to reach this router.
	Addr() string
	// Disconnect drops the peer with the given identity.
	Disconnect(identity []byte) error
}

// Network binds routers and dials sockets.
type Network interface {
	Bind(ctx context.Context, addr string) (Router, error)
	Dial(ctx context.Context, addr string) (Socket, error)
}
