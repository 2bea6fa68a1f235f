package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	promadapter "github.com/NamazuStudios/elements-sub015/adapters/prometheus"
	"github.com/NamazuStudios/elements-sub015/core/demux"
	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/node"
	"github.com/NamazuStudios/elements-sub015/core/worker"
	"github.com/NamazuStudios/elements-sub015/internal/config"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker instance",
	Long: `Run a worker instance: a master node serving the instance service plus
one node per configured application. Nodes bind on the configured network
and register in the directory; a watchdog restarts unhealthy nodes.

Examples:
  # Single process on the in-memory network with an embedded demux
  CLSTR_DEMUX_EMBEDDED=true clstr-worker worker

  # TCP nodes registered in redis
  clstr-worker worker --config worker.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runWorker(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// process is a worker plus the components running beside it.
type process struct {
	stack   *stack
	metrics *promadapter.AllMetrics
	worker  *worker.Worker
	demux   *demux.Demultiplexer
	ops     *opsHandler
}

func newProcess(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*process, error) {
	instance := ids.NewInstanceID()
	if cfg.Worker.Instance != "" {
		id, err := ids.ParseInstanceID(cfg.Worker.Instance)
		if err != nil {
			return nil, fmt.Errorf("%w: worker.instance: %w", config.ErrInvalid, err)
		}
		instance = id
	}

	s, err := newStack(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	m := promadapter.NewAllMetrics(reg)

	bindings := node.NewNetworkBindingService(node.NetworkBindingServiceOpts{
		Log:        log,
		Network:    s.network,
		Directory:  s.directory,
		AddressFor: s.addressFor,
	})
	apps := newApplications(cfg.Worker.Applications, node.Options{
		Log:             log,
		Instance:        instance,
		CacheSize:       cfg.Worker.CacheSize,
		CacheTTL:        cfg.Worker.CacheTTL,
		DrainTimeout:    cfg.Worker.DrainTimeout,
		Metrics:         m.Node,
		DispatchMetrics: m.Dispatch,
	})
	w, err := worker.New(ctx, worker.Options{
		Log:             log,
		Instance:        instance,
		Applications:    apps.IDs(cfg.Worker.Applications),
		Factory:         apps.Factory,
		Bindings:        bindings,
		NodeMetrics:     m.Node,
		DispatchMetrics: m.Dispatch,
		Metrics:         m.Worker,
	})
	if err != nil {
		return nil, multierr.Append(err, s.Close())
	}

	p := &process{
		stack:   s,
		metrics: m,
		worker:  w,
		ops:     &opsHandler{log: log, instance: worker.NewInstanceService(w), gatherer: reg},
	}
	if cfg.Demux.Embedded {
		p.demux, err = newDemux(cfg, log, s, m)
		if err != nil {
			return nil, multierr.Append(err, s.Close())
		}
	}
	return p, nil
}

func newDemux(cfg *config.Config, log *slog.Logger, s *stack, m *promadapter.AllMetrics) (*demux.Demultiplexer, error) {
	identity := uuid.Nil
	if cfg.Demux.Identity != "" {
		id, err := uuid.Parse(cfg.Demux.Identity)
		if err != nil {
			return nil, fmt.Errorf("%w: demux.identity: %w", config.ErrInvalid, err)
		}
		identity = id
	}
	return demux.New(demux.Options{
		Log:          log,
		Network:      s.network,
		Directory:    s.directory,
		Identity:     identity,
		Address:      cfg.Demux.Address,
		PollInterval: cfg.Demux.PollInterval,
		Metrics:      m.Demux,
	}), nil
}

// run blocks until ctx is done or a component fails, then shuts the worker
// down and releases the stack.
func (p *process) run(ctx context.Context, cfg *config.Config) error {
	defer func() {
		if err := p.stack.Close(); err != nil {
			p.ops.log.Warn("stack close failed", slog.Any("error", err))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.worker.Run(ctx, cfg.Worker.WatchdogInterval) })
	if p.demux != nil {
		g.Go(func() error { return p.demux.Run(ctx) })
	}
	if cfg.Ops.Addr != "" {
		g.Go(func() error { return serveOps(ctx, cfg.Ops.Addr, p.ops) })
	}
	return g.Wait()
}

func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	p, err := newProcess(ctx, cfg, log, newRegistry())
	if err != nil {
		return err
	}
	log.Info("worker running",
		slog.String("instance", p.worker.Instance().String()),
		slog.Int("applications", len(cfg.Worker.Applications)),
		slog.Bool("embedded_demux", p.demux != nil),
	)
	return p.run(ctx, cfg)
}
