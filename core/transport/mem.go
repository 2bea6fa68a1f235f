package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/NamazuStudios/elements-sub015/core/wire"
)

const memQueueSize = 256

// MemoryNetwork is an in-process [Network]. Addresses are arbitrary
// strings; binding "" picks a fresh "mem://" address.
type MemoryNetwork struct {
	mu  sync.RWMutex
	log *slog.Logger

	closed  bool
	routers map[string]*memRouter

	dials atomic.Int64
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		log:     slog.New(slog.DiscardHandler),
		routers: make(map[string]*memRouter),
	}
}

func (n *MemoryNetwork) WithLog(log *slog.Logger) *MemoryNetwork {
	n.log = log.With(slog.String("transport", "mem"))
	return n
}

// Dials returns how many Dial calls were made, successful or not.
func (n *MemoryNetwork) Dials() int64 { return n.dials.Load() }

func (n *MemoryNetwork) Bind(_ context.Context, addr string) (Router, error) {
	if addr == "" {
		addr = "mem://" + gonanoid.Must(10)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}
	if _, ok := n.routers[addr]; ok {
		return nil, fmt.Errorf("bind %s: %w", addr, ErrAddressInUse)
	}

	r := &memRouter{
		net:   n,
		log:   n.log.With(slog.String("addr", addr)),
		addr:  addr,
		in:    make(chan wire.Message, memQueueSize),
		peers: make(map[string]*memConn),
		life:  NewLifecycle(),
	}
	n.routers[addr] = r
	r.log.Debug("bound")
	return r, nil
}

func (n *MemoryNetwork) Dial(_ context.Context, addr string) (Socket, error) {
	n.dials.Add(1)

	n.mu.RLock()
	r := n.routers[addr]
	closed := n.closed
	n.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if r == nil {
		return nil, fmt.Errorf("dial %s: %w", addr, ErrConnectionRefused)
	}
	return r.accept()
}

// Close closes every bound router.
func (n *MemoryNetwork) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	routers := make([]*memRouter, 0, len(n.routers))
	for _, r := range n.routers {
		routers = append(routers, r)
	}
	n.mu.Unlock()

	for _, r := range routers {
		_ = r.Close()
	}
	n.log.Debug("closed")
	return nil
}

func (n *MemoryNetwork) unbind(r *memRouter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.routers[r.addr] == r {
		delete(n.routers, r.addr)
	}
}

/* ---------------------- router ---------------------- */

type memRouter struct {
	net  *MemoryNetwork
	log  *slog.Logger
	addr string
	in   chan wire.Message
	life *Lifecycle

	mu    sync.Mutex
	peers map[string]*memConn
}

func (r *memRouter) accept() (*memConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.life.Closed() {
		return nil, fmt.Errorf("dial %s: %w", r.addr, ErrConnectionRefused)
	}
	c := &memConn{
		id:     []byte(gonanoid.Must(12)),
		router: r,
		in:     make(chan wire.Message, memQueueSize),
		life:   NewLifecycle(),
	}
	r.peers[string(c.id)] = c
	r.log.Debug("peer connected", slog.String("peer", string(c.id)))
	return c, nil
}

func (r *memRouter) Addr() string              { return r.addr }
func (r *memRouter) Recv() <-chan wire.Message { return r.in }
func (r *memRouter) Done() <-chan struct{}     { return r.life.Done() }
func (r *memRouter) Err() error                { return r.life.Err() }

func (r *memRouter) Send(ctx context.Context, msg wire.Message) error {
	if r.life.Closed() {
		return ErrClosed
	}
	if len(msg) < 1 {
		return ErrNoIdentity
	}
	r.mu.Lock()
	peer := r.peers[string(msg[0])]
	r.mu.Unlock()
	if peer == nil {
		return fmt.Errorf("%w: %q", ErrPeerNotFound, msg[0])
	}
	return peer.deliver(ctx, msg[1:].Clone())
}

func (r *memRouter) TrySend(msg wire.Message) error {
	if r.life.Closed() {
		return ErrClosed
	}
	if len(msg) < 1 {
		return ErrNoIdentity
	}
	r.mu.Lock()
	peer := r.peers[string(msg[0])]
	r.mu.Unlock()
	if peer == nil {
		return fmt.Errorf("%w: %q", ErrPeerNotFound, msg[0])
	}
	return peer.tryDeliver(msg[1:].Clone())
}

func (r *memRouter) Disconnect(identity []byte) error {
	r.mu.Lock()
	peer := r.peers[string(identity)]
	delete(r.peers, string(identity))
	r.mu.Unlock()
	if peer == nil {
		return fmt.Errorf("%w: %q", ErrPeerNotFound, identity)
	}
	peer.life.Shutdown(ErrDisconnected)
	r.log.Debug("peer disconnected", slog.String("peer", string(identity)))
	return nil
}

func (r *memRouter) Close() error {
	if !r.life.Shutdown(nil) {
		return nil
	}
	r.net.unbind(r)

	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[string]*memConn)
	r.mu.Unlock()

	for _, p := range peers {
		p.life.Shutdown(ErrConnectionReset)
	}
	r.log.Debug("closed")
	return nil
}

func (r *memRouter) deliver(ctx context.Context, msg wire.Message) error {
	select {
	case <-r.life.Done():
		return ErrConnectionReset
	case <-ctx.Done():
		return ctx.Err()
	case r.in <- msg:
		return nil
	}
}

func (r *memRouter) tryDeliver(msg wire.Message) error {
	select {
	case <-r.life.Done():
		return ErrConnectionReset
	default:
	}
	select {
	case r.in <- msg:
		return nil
	default:
		return ErrHighWaterMark
	}
}

func (r *memRouter) removePeer(c *memConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.peers[string(c.id)] == c {
		delete(r.peers, string(c.id))
	}
}

/* ---------------------- dialed socket ---------------------- */

type memConn struct {
	id     []byte
	router *memRouter
	in     chan wire.Message
	life   *Lifecycle
}

func (c *memConn) Recv() <-chan wire.Message { return c.in }
func (c *memConn) Done() <-chan struct{}     { return c.life.Done() }
func (c *memConn) Err() error                { return c.life.Err() }

func (c *memConn) Send(ctx context.Context, msg wire.Message) error {
	if err := c.life.Err(); err != nil {
		return err
	}
	return c.router.deliver(ctx, msg.Clone().Prepend(c.id))
}

func (c *memConn) TrySend(msg wire.Message) error {
	if err := c.life.Err(); err != nil {
		return err
	}
	return c.router.tryDeliver(msg.Clone().Prepend(c.id))
}

func (c *memConn) Close() error {
	if c.life.Shutdown(nil) {
		c.router.removePeer(c)
	}
	return nil
}

func (c *memConn) deliver(ctx context.Context, msg wire.Message) error {
	select {
	case <-c.life.Done():
		return fmt.Errorf("%w: %v", ErrPeerNotFound, c.life.Err())
	case <-ctx.Done():
		return ctx.Err()
	case c.in <- msg:
		return nil
	}
}

func (c *memConn) tryDeliver(msg wire.Message) error {
	select {
	case <-c.life.Done():
		return fmt.Errorf("%w: %v", ErrPeerNotFound, c.life.Err())
	default:
	}
	select {
	case c.in <- msg:
		return nil
	default:
		return ErrHighWaterMark
	}
}

var (
	_ Network = (*MemoryNetwork)(nil)
	_ Router  = (*memRouter)(nil)
	_ Socket  = (*memConn)(nil)
)
