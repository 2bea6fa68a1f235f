package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/invoke"
	"github.com/NamazuStudios/elements-sub015/core/node"
)

// NodeFactory creates the (unstarted) node of an application.
type NodeFactory func(ctx context.Context, app ids.ApplicationID) (*node.Node, error)

type Options struct {
	Log      *slog.Logger
	Instance ids.InstanceID
	// Applications are the nodes created up front and started by PostStart.
	Applications []ids.ApplicationID
	Factory      NodeFactory
	Bindings     node.BindingService

	// Master overrides the default master node, which serves the instance
	// service.
	Master          *node.Node
	NodeMetrics     node.NodeMetrics
	DispatchMetrics invoke.DispatchMetrics
	Metrics         WorkerMetrics
}

// Worker owns the nodes of one instance: a master node and a set of
// application nodes.
//
// The application set is read through an [Accessor] and changed through a
// [Mutator]. Accessors share the worker's lock, a Mutator holds it
// exclusively.
type Worker struct {
	log      *slog.Logger
	instance ids.InstanceID
	factory  NodeFactory
	bindings node.BindingService
	metrics  WorkerMetrics

	lock   sync.RWMutex
	master *node.Node
	nodes  atomic.Pointer[nodeSet]
}

func New(ctx context.Context, opts Options) (*Worker, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Instance == (ids.InstanceID{}) {
		opts.Instance = ids.NewInstanceID()
	}
	if opts.Bindings == nil {
		opts.Bindings = node.NewNetworkBindingService(node.NetworkBindingServiceOpts{Log: opts.Log})
	}
	if opts.Metrics == nil {
		opts.Metrics = NopWorkerMetrics()
	}
	if opts.Factory == nil && len(opts.Applications) > 0 {
		return nil, ErrNoFactory
	}

	w := &Worker{
		log:      opts.Log.With(slog.String("instance", opts.Instance.String())),
		instance: opts.Instance,
		factory:  opts.Factory,
		bindings: opts.Bindings,
		metrics:  opts.Metrics,
	}

	w.master = opts.Master
	if w.master == nil {
		w.master = node.New(node.Options{
			Log:             opts.Log,
			Name:            "master",
			Instance:        opts.Instance,
			Application:     ids.MasterApplication,
			Registry:        InstanceRegistry(),
			Container:       invoke.NewContainer().Bind(InstanceServiceType, "", NewInstanceService(w)),
			Metrics:         opts.NodeMetrics,
			DispatchMetrics: opts.DispatchMetrics,
		})
	}

	set := newNodeSet()
	for _, app := range opts.Applications {
		if _, ok := set.get(app); ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeExists, app)
		}
		n, err := w.factory(ctx, app)
		if err != nil {
			return nil, fmt.Errorf("create node for %s: %w", app, err)
		}
		set.put(n)
	}
	w.nodes.Store(set)
	w.metrics.Nodes(set.len())
	return w, nil
}

func (w *Worker) Instance() ids.InstanceID { return w.instance }
func (w *Worker) Master() *node.Node       { return w.master }

// PostStart binds and starts the master and then every application node.
// A node that fails is cancelled and the others still start; the failures
// come back as a *MultiError.
func (w *Worker) PostStart(ctx context.Context) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	errs := []error{w.startNode(ctx, w.master)}
	for _, n := range w.nodes.Load().list() {
		errs = append(errs, w.startNode(ctx, n))
	}
	err := collect(errs...)
	if err != nil {
		w.log.Warn("worker started with failures", slog.Any("error", err))
	} else {
		w.log.Info("worker started", slog.Int("nodes", w.nodes.Load().len()))
	}
	return err
}

// PreClose stops the application nodes in reverse start order and then the
// master, collecting failures.
func (w *Worker) PreClose(ctx context.Context) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	nodes := w.nodes.Load().list()
	slices.Reverse(nodes)

	var errs []error
	for _, n := range nodes {
		errs = append(errs, w.stopNode(ctx, n))
	}
	errs = append(errs, w.stopNode(ctx, w.master))

	err := collect(errs...)
	if err != nil {
		w.log.Warn("worker closed with failures", slog.Any("error", err))
	} else {
		w.log.Info("worker closed")
	}
	return err
}

// Run starts the worker, runs a watchdog every interval until ctx is done
// and closes the worker. A zero interval disables the watchdog.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	startErr := w.PostStart(ctx)
	if interval > 0 {
		NewWatchdog(WatchdogOptions{Log: w.log, Worker: w}).Run(ctx, interval)
	} else {
		<-ctx.Done()
	}
	closeErr := w.PreClose(context.WithoutCancel(ctx))
	return collect(startErr, closeErr)
}

// startNode runs the startup phases of n, binding it between PreStart and
// Start. Any failure cancels the node.
func (w *Worker) startNode(ctx context.Context, n *node.Node) (err error) {
	app := n.Application().String()
	defer func() { w.metrics.NodeStarted(app, err == nil) }()

	s, err := n.BeginStartup()
	if err != nil {
		return fmt.Errorf("start %s: %w", n, err)
	}
	fail := func(step string, cause error) error {
		w.log.Warn("node startup failed",
			slog.String("node", n.String()),
			slog.String("step", step),
			slog.Any("error", cause),
		)
		return fmt.Errorf("start %s: %s: %w", n, step, multierr.Append(cause, s.Cancel(ctx)))
	}

	if err := s.PreStart(ctx); err != nil {
		return fail("pre-start", err)
	}
	b, err := w.bindings.Bind(ctx, n.ID())
	if err != nil {
		return fail("bind", err)
	}
	if err := s.Start(ctx, b); err != nil {
		return fail("start", multierr.Append(err, b.Close(ctx)))
	}
	if err := s.PostStart(ctx); err != nil {
		return fail("post-start", err)
	}
	return nil
}

func (w *Worker) stopNode(ctx context.Context, n *node.Node) error {
	err := n.Stop(ctx)
	w.metrics.NodeStopped(n.Application().String(), err == nil)
	if err != nil {
		w.log.Warn("node shutdown failed", slog.String("node", n.String()), slog.Any("error", err))
		return fmt.Errorf("stop %s: %w", n, err)
	}
	return nil
}
