// Package tcp is a [transport.Network] over TCP. Messages travel in the
// stream encoding of package wire.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/core/wire"
)

const (
	queueSize          = 256
	defaultDialTimeout = 5 * time.Second
)

type Options struct {
	Log         *slog.Logger
	DialTimeout time.Duration
}

type Network struct {
	log    *slog.Logger
	dialer net.Dialer
}

func NewNetwork(opts Options) *Network {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	return &Network{
		log:    opts.Log.With(slog.String("transport", "tcp")),
		dialer: net.Dialer{Timeout: opts.DialTimeout},
	}
}

// Bind listens on addr ("host:port"). An empty addr listens on a random
// loopback port.
func (n *Network) Bind(ctx context.Context, addr string) (transport.Router, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: bind %s: %w", addr, err)
	}
	r := &router{
		log:   n.log.With(slog.String("addr", ln.Addr().String())),
		ln:    ln,
		in:    make(chan wire.Message, queueSize),
		life:  transport.NewLifecycle(),
		peers: make(map[string]*conn),
	}
	go r.accept()
	r.log.Debug("bound")
	return r, nil
}

func (n *Network) Dial(ctx context.Context, addr string) (transport.Socket, error) {
	nc, err := n.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w: %w", addr, transport.ErrConnectionRefused, err)
	}
	c := newConn(nc)
	go c.read(func(msg wire.Message) {
		deliver(c.in, c.life.Done(), msg)
	})
	return c, nil
}

func deliver(ch chan<- wire.Message, done <-chan struct{}, msg wire.Message) {
	select {
	case ch <- msg:
	case <-done:
	}
}

// conn is one TCP connection; as a dialed socket it is used directly.
// Outbound messages queue for a writer goroutine, which flushes whenever
// the queue runs empty.
type conn struct {
	nc   net.Conn
	w    *bufio.Writer
	in   chan wire.Message
	out  chan wire.Message
	life *transport.Lifecycle
}

func newConn(nc net.Conn) *conn {
	c := &conn{
		nc:   nc,
		w:    bufio.NewWriter(nc),
		in:   make(chan wire.Message, queueSize),
		out:  make(chan wire.Message, queueSize),
		life: transport.NewLifecycle(),
	}
	go c.write()
	return c
}

func (c *conn) read(handle func(wire.Message)) {
	r := bufio.NewReader(c.nc)
	for {
		msg, err := wire.ReadMessage(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = transport.ErrConnectionReset
			}
			c.shutdown(err)
			return
		}
		handle(msg)
	}
}

func (c *conn) write() {
	for {
		select {
		case <-c.life.Done():
			return
		case msg := <-c.out:
			err := wire.WriteMessage(c.w, msg)
			if err == nil && len(c.out) == 0 {
				err = c.w.Flush()
			}
			if err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}

func (c *conn) shutdown(cause error) {
	if c.life.Shutdown(cause) {
		_ = c.nc.Close()
	}
}

func (c *conn) Send(ctx context.Context, msg wire.Message) error {
	if err := c.life.Err(); err != nil {
		return err
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.life.Done():
		return c.life.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) TrySend(msg wire.Message) error {
	if err := c.life.Err(); err != nil {
		return err
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return transport.ErrHighWaterMark
	}
}

func (c *conn) Recv() <-chan wire.Message { return c.in }
func (c *conn) Done() <-chan struct{}     { return c.life.Done() }
func (c *conn) Err() error                { return c.life.Err() }

func (c *conn) Close() error {
	c.shutdown(nil)
	return nil
}

type router struct {
	log  *slog.Logger
	ln   net.Listener
	in   chan wire.Message
	life *transport.Lifecycle

	mu    sync.Mutex
	peers map[string]*conn
}

func (r *router) accept() {
	for {
		nc, err := r.ln.Accept()
		if err != nil {
			if !r.life.Closed() {
				r.log.Error("accept failed", slog.Any("error", err))
				r.shutdown(err)
			}
			return
		}
		id := gonanoid.Must(12)
		c := newConn(nc)

		r.mu.Lock()
		r.peers[id] = c
		r.mu.Unlock()
		r.log.Debug("peer connected", slog.String("peer", id), slog.String("remote", nc.RemoteAddr().String()))

		go func() {
			c.read(func(msg wire.Message) {
				deliver(r.in, r.life.Done(), msg.Prepend([]byte(id)))
			})
			r.mu.Lock()
			if r.peers[id] == c {
				delete(r.peers, id)
			}
			r.mu.Unlock()
		}()
	}
}

func (r *router) Addr() string              { return r.ln.Addr().String() }
func (r *router) Recv() <-chan wire.Message { return r.in }
func (r *router) Done() <-chan struct{}     { return r.life.Done() }
func (r *router) Err() error                { return r.life.Err() }

func (r *router) peer(identity []byte) (*conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.peers[string(identity)]
	if c == nil {
		return nil, fmt.Errorf("%w: %q", transport.ErrPeerNotFound, identity)
	}
	return c, nil
}

func (r *router) Send(ctx context.Context, msg wire.Message) error {
	if r.life.Closed() {
		return transport.ErrClosed
	}
	if len(msg) < 1 {
		return transport.ErrNoIdentity
	}
	c, err := r.peer(msg[0])
	if err != nil {
		return err
	}
	return c.Send(ctx, msg[1:])
}

func (r *router) TrySend(msg wire.Message) error {
	if r.life.Closed() {
		return transport.ErrClosed
	}
	if len(msg) < 1 {
		return transport.ErrNoIdentity
	}
	c, err := r.peer(msg[0])
	if err != nil {
		return err
	}
	return c.TrySend(msg[1:])
}

func (r *router) Disconnect(identity []byte) error {
	c, err := r.peer(identity)
	if err != nil {
		return err
	}
	c.shutdown(transport.ErrDisconnected)
	return nil
}

func (r *router) shutdown(cause error) bool {
	if !r.life.Shutdown(cause) {
		return false
	}
	_ = r.ln.Close()

	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[string]*conn)
	r.mu.Unlock()
	for _, c := range peers {
		c.shutdown(transport.ErrConnectionReset)
	}
	return true
}

func (r *router) Close() error {
	if r.shutdown(nil) {
		r.log.Debug("closed")
	}
	return nil
}

var (
	_ transport.Network = (*Network)(nil)
	_ transport.Router  = (*router)(nil)
	_ transport.Socket  = (*conn)(nil)
)
