package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/multierr"

	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/ports/directory"
)

// Binding is the open router a node serves on. The node owns it between
// Start and Stop; Close releases the address.
type Binding struct {
	NodeID  ids.NodeID
	Address string
	Router  transport.Router

	release func(ctx context.Context) error
	refresh func(ctx context.Context) error

	mu     sync.Mutex
	closed bool
	err    error
}

// NewBinding wraps r. release, if set, runs once after the router closed.
func NewBinding(id ids.NodeID, r transport.Router, release func(ctx context.Context) error) *Binding {
	return &Binding{NodeID: id, Address: r.Addr(), Router: r, release: release}
}

// Refresh renews the published address of an open binding, so it outlives
// a directory TTL. It does nothing once the binding is closed.
func (b *Binding) Refresh(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.refresh == nil {
		return nil
	}
	return b.refresh(ctx)
}

func (b *Binding) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return b.err
	}
	b.closed = true
	b.err = b.Router.Close()
	if b.release != nil {
		b.err = multierr.Append(b.err, b.release(ctx))
	}
	return b.err
}

// BindingService allocates bindings for nodes.
type BindingService interface {
	Bind(ctx context.Context, id ids.NodeID) (*Binding, error)
}

type NetworkBindingServiceOpts struct {
	Log       *slog.Logger
	Network   transport.Network
	Directory directory.Directory
	// AddressFor picks the bind address of a node. The default binds ""
	// and lets the network choose.
	AddressFor func(id ids.NodeID) string
}

// NetworkBindingService binds a router per node on a network and
// publishes its address in a directory.
type NetworkBindingService struct {
	log        *slog.Logger
	network    transport.Network
	directory  directory.Directory
	addressFor func(ids.NodeID) string
}

func NewNetworkBindingService(opts NetworkBindingServiceOpts) *NetworkBindingService {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Network == nil {
		opts.Network = transport.NewMemoryNetwork()
	}
	if opts.Directory == nil {
		opts.Directory = directory.NewMemory()
	}
	if opts.AddressFor == nil {
		opts.AddressFor = func(ids.NodeID) string { return "" }
	}
	return &NetworkBindingService{
		log:        opts.Log,
		network:    opts.Network,
		directory:  opts.Directory,
		addressFor: opts.AddressFor,
	}
}

func (s *NetworkBindingService) Directory() directory.Directory { return s.directory }

func (s *NetworkBindingService) Bind(ctx context.Context, id ids.NodeID) (*Binding, error) {
	r, err := s.network.Bind(ctx, s.addressFor(id))
	if err != nil {
		return nil, fmt.Errorf("bind node %s: %w", id, err)
	}
	if err := s.directory.Register(ctx, id, r.Addr()); err != nil {
		return nil, multierr.Append(fmt.Errorf("bind node %s: %w", id, err), r.Close())
	}
	s.log.Debug("node bound", slog.String("node", id.String()), slog.String("addr", r.Addr()))
	b := NewBinding(id, r, func(ctx context.Context) error {
		return s.directory.Deregister(ctx, id)
	})
	b.refresh = func(ctx context.Context) error {
		return s.directory.Register(ctx, id, b.Address)
	}
	return b, nil
}

var _ BindingService = (*NetworkBindingService)(nil)
