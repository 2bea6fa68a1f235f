package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	natsgo "github.com/nats-io/nats.go"

	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/core/wire"
)

const (
	controlHeader     = "Clstr-Control"
	controlDisconnect = "disconnect"
	queueSize         = 256

	// set by the server on a message whose subject has no subscribers
	statusHeader       = "Status"
	statusNoResponders = "503"

	peerIdle   = 10 * time.Minute
	goneExpiry = time.Minute
	pruneEvery = time.Minute
)

type NetworkConfig struct {
	Connect Connector // Connect creates the underlying connection. If nil, ConnectDefault() is used.
	Log     *slog.Logger
	// SubjectPrefix scopes router subjects: <prefix>.router.<id> for
	// generated addresses and <prefix>.node.<name> from NodeSubject.
	SubjectPrefix string
}

// Network carries framed messages over NATS subjects. A router subscribes
// to its address subject; a dialed socket owns a reply inbox, which is the
// identity the router sees and answers to.
//
// Closing a router tells the peers it served to disconnect. A socket whose
// router is gone without notice learns it from the server's no-responders
// status on its next send.
type Network struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	prefix  string
}

func NewNetwork(cfg NetworkConfig) (*Network, error) {
	if cfg.Connect == nil {
		cfg.Connect = ConnectDefault()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "clstr"
	}
	nc, closeNc, err := cfg.Connect()
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	return &Network{
		nc:      nc,
		closeNc: closeNc,
		log:     cfg.Log.With(slog.String("transport", "nats")),
		prefix:  cfg.SubjectPrefix,
	}, nil
}

// Close drains the connection. Routers and sockets stop receiving.
func (n *Network) Close() error {
	err := n.nc.Drain()
	n.closeNc()
	return err
}

// NodeSubject is a stable router address for name, so a node that is
// restarted under the same name is reachable at the same subject.
func (n *Network) NodeSubject(name string) string {
	return n.prefix + ".node." + name
}

// Bind subscribes a router. An empty addr picks a fresh subject.
func (n *Network) Bind(_ context.Context, addr string) (transport.Router, error) {
	if addr == "" {
		addr = n.prefix + ".router." + gonanoid.Must(12)
	}
	r := &router{
		n:      n,
		log:    n.log.With(slog.String("addr", addr)),
		addr:   addr,
		in:     make(chan wire.Message, queueSize),
		life:   transport.NewLifecycle(),
		peers:  make(map[string]time.Time),
		gone:   make(map[string]time.Time),
		pruned: time.Now(),
	}
	sub, err := n.nc.Subscribe(addr, r.receive)
	if err != nil {
		return nil, fmt.Errorf("nats: bind %s: %w", addr, err)
	}
	r.sub = sub
	r.log.Debug("bound")
	return r, nil
}

func (n *Network) Dial(_ context.Context, addr string) (transport.Socket, error) {
	if addr == "" || strings.ContainsAny(addr, " \t*>") {
		return nil, fmt.Errorf("nats: dial %q: %w", addr, transport.ErrConnectionRefused)
	}
	s := &socket{
		n:     n,
		addr:  addr,
		inbox: natsgo.NewInbox(),
		in:    make(chan wire.Message, queueSize),
		life:  transport.NewLifecycle(),
	}
	sub, err := n.nc.Subscribe(s.inbox, s.receive)
	if err != nil {
		return nil, fmt.Errorf("nats: dial %s: %w", addr, err)
	}
	s.sub = sub
	return s, nil
}

func deliver(ch chan<- wire.Message, done <-chan struct{}, msg wire.Message) {
	select {
	case ch <- msg:
	case <-done:
	}
}

type router struct {
	n    *Network
	log  *slog.Logger
	addr string
	sub  *natsgo.Subscription
	in   chan wire.Message
	life *transport.Lifecycle

	mu sync.Mutex
	// reply inboxes served, by last message time
	peers map[string]time.Time
	// disconnected inboxes, by disconnect time
	gone   map[string]time.Time
	pruned time.Time
}

func (r *router) receive(m *natsgo.Msg) {
	if m.Reply == "" {
		r.log.Debug("message without reply inbox dropped")
		return
	}
	if !r.seen(m.Reply, time.Now()) {
		return
	}
	msg, err := wire.Decode(m.Data)
	if err != nil {
		r.log.Warn("undecodable message dropped", slog.Any("error", err))
		return
	}
	deliver(r.in, r.life.Done(), msg.Prepend([]byte(m.Reply)))
}

// seen records a message from peer and reports whether it is still served.
func (r *router) seen(peer string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, gone := r.gone[peer]; gone {
		return false
	}
	r.prune(now)
	r.peers[peer] = now
	return true
}

// prune forgets idle peers and expired disconnects, at most once per
// pruneEvery. Callers hold r.mu.
func (r *router) prune(now time.Time) {
	if now.Sub(r.pruned) < pruneEvery {
		return
	}
	for p, last := range r.peers {
		if now.Sub(last) > peerIdle {
			delete(r.peers, p)
		}
	}
	for p, at := range r.gone {
		if now.Sub(at) > goneExpiry {
			delete(r.gone, p)
		}
	}
	r.pruned = now
}

func (r *router) Addr() string              { return r.addr }
func (r *router) Recv() <-chan wire.Message { return r.in }
func (r *router) Done() <-chan struct{}     { return r.life.Done() }
func (r *router) Err() error                { return r.life.Err() }

func (r *router) Send(_ context.Context, msg wire.Message) error {
	return r.TrySend(msg)
}

// TrySend publishes without waiting; the client buffers outbound data.
func (r *router) TrySend(msg wire.Message) error {
	if r.life.Closed() {
		return transport.ErrClosed
	}
	if len(msg) < 1 {
		return transport.ErrNoIdentity
	}
	data, err := wire.Encode(msg[1:])
	if err != nil {
		return err
	}
	return r.n.nc.Publish(string(msg[0]), data)
}

// Disconnect tells the peer to close and ignores it from now on.
func (r *router) Disconnect(identity []byte) error {
	now := time.Now()
	r.mu.Lock()
	delete(r.peers, string(identity))
	r.gone[string(identity)] = now
	r.prune(now)
	r.mu.Unlock()
	return r.disconnect(string(identity))
}

func (r *router) disconnect(peer string) error {
	m := natsgo.NewMsg(peer)
	m.Header.Set(controlHeader, controlDisconnect)
	return r.n.nc.PublishMsg(m)
}

// Close unsubscribes and disconnects every peer served so far.
func (r *router) Close() error {
	if !r.life.Shutdown(nil) {
		return nil
	}
	err := r.sub.Unsubscribe()

	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[string]time.Time)
	r.mu.Unlock()
	for p := range peers {
		if perr := r.disconnect(p); perr != nil {
			r.log.Debug("disconnect peer", slog.String("peer", p), slog.Any("error", perr))
		}
	}
	r.log.Debug("closed", slog.Int("peers", len(peers)))
	return err
}

type socket struct {
	n     *Network
	addr  string
	inbox string
	sub   *natsgo.Subscription
	in    chan wire.Message
	life  *transport.Lifecycle
}

func (s *socket) receive(m *natsgo.Msg) {
	if m.Header.Get(controlHeader) == controlDisconnect {
		s.shutdown(transport.ErrDisconnected)
		return
	}
	if len(m.Data) == 0 && m.Header.Get(statusHeader) == statusNoResponders {
		s.shutdown(transport.ErrConnectionReset)
		return
	}
	msg, err := wire.Decode(m.Data)
	if err != nil {
		s.n.log.Warn("undecodable reply dropped", slog.Any("error", err))
		return
	}
	deliver(s.in, s.life.Done(), msg)
}

func (s *socket) Recv() <-chan wire.Message { return s.in }
func (s *socket) Done() <-chan struct{}     { return s.life.Done() }
func (s *socket) Err() error                { return s.life.Err() }

func (s *socket) Send(_ context.Context, msg wire.Message) error {
	return s.TrySend(msg)
}

func (s *socket) TrySend(msg wire.Message) error {
	if err := s.life.Err(); err != nil {
		return err
	}
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return s.n.nc.PublishMsg(&natsgo.Msg{Subject: s.addr, Reply: s.inbox, Data: data})
}

func (s *socket) Close() error {
	return s.shutdown(nil)
}

func (s *socket) shutdown(cause error) error {
	if !s.life.Shutdown(cause) {
		return nil
	}
	// the subscription callback may be the caller
	go func() { _ = s.sub.Unsubscribe() }()
	return nil
}

var (
	_ transport.Network = (*Network)(nil)
	_ transport.Router  = (*router)(nil)
	_ transport.Socket  = (*socket)(nil)
)
