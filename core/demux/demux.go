package demux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/core/wire"
	"github.com/NamazuStudios/elements-sub015/ports/directory"
)

const DefaultPollInterval = 100 * time.Millisecond

type Options struct {
	Log       *slog.Logger
	Network   transport.Network
	Directory directory.Directory
	// Identity goes into the routing header of every reply. Defaults to a
	// random UUID.
	Identity uuid.UUID
	// Address is the frontend bind address; "" lets the network choose.
	Address string
	// PollInterval bounds how long the loop waits for socket events before
	// checking for shutdown.
	PollInterval time.Duration
	Metrics      DemuxMetrics
}

// Demultiplexer routes framed requests from one frontend router to the
// nodes named in their routing headers, opening one backend socket per
// destination on first use, and routes the replies back.
//
// Callers send [RoutingHeader, RequestHeader, payload] and receive
// [RoutingHeader, ResponseHeader, payload]. A destination missing from the
// directory is answered with a DEAD routing header and no socket is opened.
//
// The loop never waits on a peer: a frame for a peer whose queue is full
// is dropped and counted.
type Demultiplexer struct {
	log          *slog.Logger
	network      transport.Network
	directory    directory.Directory
	identity     uuid.UUID
	address      string
	pollInterval time.Duration
	metrics      DemuxMetrics

	mu       sync.Mutex
	started  bool
	frontend transport.Router
	poller   *transport.Poller
	arena    *backendArena
	cancel   context.CancelFunc
	done     chan struct{}
	err      error

	closeOnce sync.Once
	closeErr  error
}

func New(opts Options) *Demultiplexer {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Network == nil {
		opts.Network = transport.NewMemoryNetwork()
	}
	if opts.Directory == nil {
		opts.Directory = directory.NewMemory()
	}
	if opts.Identity == uuid.Nil {
		opts.Identity = uuid.New()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Metrics == nil {
		opts.Metrics = NopDemuxMetrics()
	}
	return &Demultiplexer{
		log:          opts.Log.With(slog.String("demux", opts.Identity.String())),
		network:      opts.Network,
		directory:    opts.Directory,
		identity:     opts.Identity,
		address:      opts.Address,
		pollInterval: opts.PollInterval,
		metrics:      opts.Metrics,
		done:         make(chan struct{}),
	}
}

func (d *Demultiplexer) Identity() uuid.UUID { return d.identity }

// Addr returns the frontend address, or "" before Start.
func (d *Demultiplexer) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frontend == nil {
		return ""
	}
	return d.frontend.Addr()
}

// Start binds the frontend and runs the routing loop in the background
// until Close or until ctx is done.
func (d *Demultiplexer) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrAlreadyStarted
	}

	front, err := d.network.Bind(ctx, d.address)
	if err != nil {
		return fmt.Errorf("bind demux frontend: %w", err)
	}
	d.started = true
	d.frontend = front
	d.poller = transport.NewPoller()
	d.arena = newBackendArena(d.poller)

	ctx, d.cancel = context.WithCancel(ctx)
	frontSlot := d.poller.Register(front)
	go d.run(ctx, frontSlot)

	d.log.Info("demux started", slog.String("addr", front.Addr()))
	return nil
}

// Run starts the demultiplexer and blocks until its loop ends. It returns
// nil when ctx is done and ErrFrontendFailed when the frontend broke.
func (d *Demultiplexer) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-d.done
	return multierr.Append(d.Err(), d.Close())
}

func (d *Demultiplexer) Done() <-chan struct{} { return d.done }

// Err reports why the loop ended. It is nil while running and after a
// regular shutdown.
func (d *Demultiplexer) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close stops the loop, waits for it and closes the frontend and every
// backend socket. Close errors are aggregated.
func (d *Demultiplexer) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		started, cancel := d.started, d.cancel
		d.mu.Unlock()
		if !started {
			d.closeErr = ErrNotStarted
			return
		}

		cancel()
		<-d.done

		d.poller.Close()
		d.closeErr = multierr.Combine(d.arena.closeAll(), d.frontend.Close())
		d.metrics.Backends(0)
		d.log.Info("demux closed")
	})
	return d.closeErr
}

func (d *Demultiplexer) run(ctx context.Context, frontSlot int) {
	defer close(d.done)
	for {
		ev, err := d.poller.Poll(ctx, d.pollInterval)
		switch {
		case errors.Is(err, transport.ErrPollTimeout):
			continue
		case err != nil:
			return
		}

		if ev.Slot == frontSlot {
			if ev.Err != nil {
				d.mu.Lock()
				d.err = fmt.Errorf("%w: %w", ErrFrontendFailed, ev.Err)
				d.mu.Unlock()
				d.log.Error("demux frontend failed", slog.Any("error", ev.Err))
				return
			}
			d.handleFrontend(ctx, ev.Msg)
			continue
		}

		b, ok := d.arena.bySlot(ev.Slot)
		if !ok {
			continue
		}
		if ev.Err != nil {
			d.log.Warn("backend failed", slog.String("dest", b.dest.String()), slog.Any("error", ev.Err))
			d.dropBackend(b, "error")
			continue
		}
		d.handleBackend(b, ev.Msg)
	}
}

// handleFrontend routes [caller, "", RoutingHeader, rest...] to the
// backend of the destination as [caller, "", rest...].
func (d *Demultiplexer) handleFrontend(ctx context.Context, msg wire.Message) {
	envelope, body, err := msg.Split()
	if err != nil || len(envelope) == 0 || len(body) < 2 {
		d.malformedCaller(msg, fmt.Errorf("%w: %d frames", ErrMalformedFrame, len(msg)))
		return
	}
	var rh wire.RoutingHeader
	if err := rh.UnmarshalBinary(body[0]); err != nil {
		d.malformedCaller(msg, err)
		return
	}
	if rh.Status != wire.StatusContinue {
		d.malformedCaller(msg, fmt.Errorf("%w: status %s from caller", ErrMalformedFrame, rh.Status))
		return
	}

	b, ok := d.arena.byDest(rh.Destination)
	if !ok {
		if b, ok = d.connect(ctx, rh.Destination); !ok {
			d.replyDead(envelope, rh.Destination)
			return
		}
	}

	err = b.sock.TrySend(wire.Join(envelope, body[1:]...))
	switch {
	case errors.Is(err, transport.ErrHighWaterMark):
		d.dropped("inbound", slog.String("dest", b.dest.String()))
	case err != nil:
		d.log.Warn("forward to backend failed", slog.String("dest", b.dest.String()), slog.Any("error", err))
		d.dropBackend(b, "send")
		d.replyDead(envelope, rh.Destination)
	default:
		d.metrics.FrameRouted("inbound")
	}
}

// handleBackend returns [caller, "", rest...] from a node to the caller as
// [caller, "", RoutingHeader{Continue, identity}, rest...].
func (d *Demultiplexer) handleBackend(b *backend, msg wire.Message) {
	envelope, body, err := msg.Split()
	if err != nil || len(envelope) == 0 || len(body) == 0 {
		d.metrics.MalformedFrame("backend")
		d.log.Warn("malformed backend frame",
			slog.String("dest", b.dest.String()),
			slog.Int("frames", len(msg)),
		)
		d.dropBackend(b, "malformed")
		return
	}

	rh := wire.RoutingHeader{Status: wire.StatusContinue, Destination: d.identity}
	out := wire.Join(envelope, append([][]byte{rh.Append(nil)}, body...)...)
	err = d.frontend.TrySend(out)
	switch {
	case errors.Is(err, transport.ErrHighWaterMark):
		d.dropped("outbound", slog.String("dest", b.dest.String()))
	case err != nil:
		d.log.Debug("reply not delivered", slog.String("dest", b.dest.String()), slog.Any("error", err))
	default:
		d.metrics.FrameRouted("outbound")
	}
}

// connect opens the backend for dest if the directory knows it.
func (d *Demultiplexer) connect(ctx context.Context, dest uuid.UUID) (*backend, bool) {
	log := d.log.With(slog.String("dest", dest.String()))

	addr, err := d.directory.Lookup(ctx, ids.NodeID(dest))
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			log.Warn("directory lookup failed", slog.Any("error", err))
		}
		return nil, false
	}
	sock, err := d.network.Dial(ctx, addr)
	if err != nil {
		log.Warn("backend unreachable", slog.String("addr", addr), slog.Any("error", err))
		return nil, false
	}

	slot := d.arena.insert(dest, sock)
	d.metrics.BackendOpened()
	d.metrics.Backends(d.arena.len())
	log.Debug("backend connected", slog.String("addr", addr), slog.Int("slot", slot))

	b, _ := d.arena.bySlot(slot)
	return b, true
}

func (d *Demultiplexer) dropBackend(b *backend, reason string) {
	if err := d.arena.remove(b.slot); err != nil {
		d.log.Debug("close backend", slog.String("dest", b.dest.String()), slog.Any("error", err))
	}
	d.metrics.BackendClosed(reason)
	d.metrics.Backends(d.arena.len())
}

func (d *Demultiplexer) replyDead(envelope wire.Message, dest uuid.UUID) {
	rh := wire.RoutingHeader{Status: wire.StatusDead, Destination: dest}
	err := d.frontend.TrySend(wire.Join(envelope, rh.Append(nil)))
	if errors.Is(err, transport.ErrHighWaterMark) {
		d.dropped("dead")
		return
	}
	if err != nil {
		d.log.Debug("dead reply not delivered", slog.Any("error", err))
		return
	}
	d.metrics.DeadReply()
	d.log.Debug("dead destination", slog.String("dest", dest.String()))
}

func (d *Demultiplexer) dropped(direction string, attrs ...any) {
	d.metrics.DroppedFrame(direction)
	d.log.Debug("peer queue full, frame dropped", append([]any{slog.String("direction", direction)}, attrs...)...)
}

// malformedCaller disconnects the peer that sent msg.
func (d *Demultiplexer) malformedCaller(msg wire.Message, cause error) {
	d.metrics.MalformedFrame("frontend")
	d.log.Warn("malformed frontend frame", slog.Any("error", cause))
	if len(msg) == 0 {
		return
	}
	if err := d.frontend.Disconnect(msg[0]); err != nil {
		d.log.Debug("disconnect caller", slog.Any("error", err))
	}
}
