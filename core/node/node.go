package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/multierr"

	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/invoke"
)

// Hook runs at a lifecycle step. An error from PreStart aborts the startup.
type Hook func(ctx context.Context, n *Node) error

type Hooks struct {
	PreStart  Hook
	PostStart Hook
	PreStop   Hook
	PostStop  Hook
}

func (h Hook) run(ctx context.Context, n *Node) error {
	if h == nil {
		return nil
	}
	return h(ctx, n)
}

type Options struct {
	Log         *slog.Logger
	Name        string
	Instance    ids.InstanceID
	Application ids.ApplicationID

	// Registry is the method table; Container holds the targets.
	Registry  *invoke.Registry
	Container *invoke.Container
	Codec     invoke.Codec
	// CacheSize bounds the method cache; negative disables it. CacheTTL
	// expires cached methods.
	CacheSize int
	CacheTTL  time.Duration

	DrainTimeout    time.Duration
	Metrics         NodeMetrics
	DispatchMetrics invoke.DispatchMetrics
	Hooks           Hooks
}

// Node hosts one application's targets inside a worker.
type Node struct {
	log   *slog.Logger
	name  string
	id    ids.NodeID
	app   ids.ApplicationID
	hooks Hooks

	container    *invoke.Container
	dispatcher   *invoke.Dispatcher
	drainTimeout time.Duration
	metrics      NodeMetrics

	mu       sync.Mutex
	phase    Phase
	accepted bool
	binding  *Binding
	proxy    *Proxy
}

func New(opts Options) *Node {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Name == "" {
		if opts.Application.IsMaster() {
			opts.Name = "master"
		} else {
			opts.Name = fmt.Sprintf("node-%s", gonanoid.Must(6))
		}
	}
	if opts.Container == nil {
		opts.Container = invoke.NewContainer()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopNodeMetrics()
	}

	id := ids.NodeFor(opts.Instance, opts.Application)
	log := opts.Log.With(slog.String("node", opts.Name), slog.String("node_id", id.String()))

	return &Node{
		log:       log,
		name:      opts.Name,
		id:        id,
		app:       opts.Application,
		hooks:     opts.Hooks,
		container: opts.Container,
		dispatcher: invoke.NewDispatcher(invoke.DispatcherOptions{
			Log:      log,
			Resolver: opts.Container,
			Methods: invoke.NewMethodCache(invoke.MethodCacheOpts{
				Registry: opts.Registry,
				Size:     opts.CacheSize,
				TTL:      opts.CacheTTL,
				Metrics:  opts.DispatchMetrics,
			}),
			Codec:   opts.Codec,
			Metrics: opts.DispatchMetrics,
		}),
		drainTimeout: opts.DrainTimeout,
		metrics:      opts.Metrics,
	}
}

func (n *Node) Name() string                   { return n.name }
func (n *Node) ID() ids.NodeID                 { return n.id }
func (n *Node) Application() ids.ApplicationID { return n.app }
func (n *Node) Container() *invoke.Container   { return n.container }
func (n *Node) Dispatcher() *invoke.Dispatcher { return n.dispatcher }
func (n *Node) Log() *slog.Logger              { return n.log }
func (n *Node) String() string                 { return n.name + "/" + n.id.String() }

func (n *Node) Phase() Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phase
}

// Binding returns the node's binding while it is started, else nil.
func (n *Node) Binding() *Binding {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.binding
}

// State classifies the node's health. An accepting node is unhealthy when
// its proxy loop ended on its own or a target health check fails; a
// cancelled node is unhealthy; any other phase is unknown.
func (n *Node) State(ctx context.Context) State {
	n.mu.Lock()
	phase, proxy := n.phase, n.proxy
	n.mu.Unlock()

	switch phase {
	case PhaseCancelled:
		return StateUnhealthy
	case PhaseAccepting:
	default:
		return StateUnknown
	}
	if proxy == nil {
		return StateUnhealthy
	}
	if !proxy.Alive() {
		n.log.Warn("proxy loop is not running", slog.Any("error", proxy.Err()))
		return StateUnhealthy
	}
	if err := n.container.CheckHealth(ctx); err != nil {
		n.log.Warn("health check failed", slog.Any("error", err))
		return StateUnhealthy
	}
	return StateHealthy
}

// step moves the node from one of from to to, running fn in between. The
// lock is not held while fn runs. An error from fn keeps the phase unless
// always is set.
func (n *Node) step(to Phase, always bool, fn func() error, from ...Phase) error {
	n.mu.Lock()
	cur, ok := n.phaseIsLocked(from...)
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidPhase, n.name, to, cur)
	}
	var err error
	if fn != nil {
		err = fn()
	}
	if err != nil && !always {
		return err
	}
	n.mu.Lock()
	n.setPhaseLocked(to)
	n.mu.Unlock()
	return err
}

func (n *Node) setPhaseLocked(p Phase) {
	n.phase = p
	n.log.Debug("phase", slog.String("phase", p.String()))
}

func (n *Node) phaseIsLocked(ps ...Phase) (Phase, bool) {
	for _, p := range ps {
		if n.phase == p {
			return n.phase, true
		}
	}
	return n.phase, false
}

// BeginStartup returns the handle driving a created node to Accepting.
func (n *Node) BeginStartup() (*Startup, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.phase != PhaseCreated {
		return nil, fmt.Errorf("%w: begin startup of %s in %s", ErrInvalidPhase, n.name, n.phase)
	}
	return &Startup{n: n}, nil
}

// BeginShutdown returns the handle driving the node to Terminated. A node
// that never started (or whose startup was cancelled) only passes through
// the phases.
func (n *Node) BeginShutdown() (*Shutdown, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.phase {
	case PhaseTerminated, PhasePreStopped, PhaseStopped:
		return nil, fmt.Errorf("%w: begin shutdown of %s in %s", ErrInvalidPhase, n.name, n.phase)
	}
	return &Shutdown{n: n}, nil
}

// halt stops the proxy and closes the binding, whichever exist.
func (n *Node) halt(ctx context.Context) error {
	n.mu.Lock()
	proxy, binding := n.proxy, n.binding
	n.proxy, n.binding = nil, nil
	n.mu.Unlock()

	var err error
	if proxy != nil {
		err = multierr.Append(err, proxy.Stop(ctx))
	}
	if binding != nil {
		err = multierr.Append(err, binding.Close(ctx))
	}
	return err
}

// Startup drives Created → PreStarted → Started → Accepting.
type Startup struct {
	n *Node
}

func (s *Startup) PreStart(ctx context.Context) error {
	n := s.n
	return n.step(PhasePreStarted, false, func() error {
		return n.hooks.PreStart.run(ctx, n)
	}, PhaseCreated)
}

// Start serves b. The node owns b from here on and closes it on Stop or
// Cancel.
func (s *Startup) Start(ctx context.Context, b *Binding) error {
	n := s.n
	if b == nil {
		return ErrNoBinding
	}
	return n.step(PhaseStarted, false, func() error {
		p := NewProxy(ProxyOptions{
			Log:          n.log,
			Name:         n.name,
			Router:       b.Router,
			Dispatcher:   n.dispatcher,
			DrainTimeout: n.drainTimeout,
			Metrics:      n.metrics,
		})
		n.mu.Lock()
		n.binding, n.proxy = b, p
		n.mu.Unlock()
		p.Start(ctx)
		return nil
	}, PhasePreStarted)
}

func (s *Startup) PostStart(ctx context.Context) error {
	n := s.n
	err := n.step(PhaseAccepting, false, func() error {
		return n.hooks.PostStart.run(ctx, n)
	}, PhaseStarted)
	if err == nil {
		n.mu.Lock()
		n.accepted = true
		n.mu.Unlock()
		n.log.Info("node accepting", slog.String("addr", n.Binding().Address))
	}
	return err
}

// Cancel abandons the startup: the proxy is stopped, the binding closed and
// the node ends in Cancelled. Cancelling twice is a no-op.
func (s *Startup) Cancel(ctx context.Context) error {
	n := s.n
	n.mu.Lock()
	switch n.phase {
	case PhaseCancelled:
		n.mu.Unlock()
		return nil
	case PhaseCreated, PhasePreStarted, PhaseStarted:
	default:
		phase := n.phase
		n.mu.Unlock()
		return fmt.Errorf("%w: cancel %s in %s", ErrInvalidPhase, n.name, phase)
	}
	n.setPhaseLocked(PhaseCancelled)
	n.mu.Unlock()

	n.log.Warn("node startup cancelled")
	return n.halt(ctx)
}

// Shutdown drives a node to PreStopped → Stopped → Terminated.
type Shutdown struct {
	n *Node
}

func (s *Shutdown) PreStop(ctx context.Context) error {
	n := s.n
	return n.step(PhasePreStopped, true, func() error {
		if !n.wasAccepting() {
			return nil
		}
		return n.hooks.PreStop.run(ctx, n)
	}, PhaseCreated, PhasePreStarted, PhaseStarted, PhaseAccepting, PhaseCancelled)
}

// Stop stops accepting, ends the proxy loop, drains in-flight calls and
// closes the binding.
func (s *Shutdown) Stop(ctx context.Context) error {
	n := s.n
	return n.step(PhaseStopped, true, func() error {
		return n.halt(ctx)
	}, PhasePreStopped)
}

func (s *Shutdown) PostStop(ctx context.Context) error {
	n := s.n
	err := n.step(PhaseTerminated, true, func() error {
		if !n.wasAccepting() {
			return nil
		}
		return n.hooks.PostStop.run(ctx, n)
	}, PhaseStopped)
	n.log.Info("node terminated")
	return err
}

func (n *Node) wasAccepting() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.accepted
}

// Start runs a full startup on b, cancelling the node on failure.
func (n *Node) Start(ctx context.Context, b *Binding) error {
	s, err := n.BeginStartup()
	if err != nil {
		return err
	}
	if err := s.PreStart(ctx); err != nil {
		return multierr.Append(err, s.Cancel(ctx))
	}
	if err := s.Start(ctx, b); err != nil {
		return multierr.Append(err, s.Cancel(ctx))
	}
	if err := s.PostStart(ctx); err != nil {
		return multierr.Append(err, s.Cancel(ctx))
	}
	return nil
}

// Stop runs a full shutdown. Shutdown steps always advance the phase, so
// every step runs and their errors are combined.
func (n *Node) Stop(ctx context.Context) error {
	s, err := n.BeginShutdown()
	if err != nil {
		return err
	}
	return multierr.Combine(s.PreStop(ctx), s.Stop(ctx), s.PostStop(ctx))
}
