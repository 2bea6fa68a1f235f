package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/node"
)

type WatchdogOptions struct {
	Log    *slog.Logger
	Worker *Worker
}

// Watchdog restarts unhealthy application nodes and renews the directory
// entries of the healthy ones.
type Watchdog struct {
	log *slog.Logger
	w   *Worker
}

func NewWatchdog(opts WatchdogOptions) *Watchdog {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Watchdog{log: opts.Log.With(slog.String("component", "watchdog")), w: opts.Worker}
}

// Check refreshes the bindings of healthy nodes and restarts every
// application node that reports itself unhealthy. The node states are read
// under an Accessor, which is closed before the Mutator is acquired.
func (d *Watchdog) Check(ctx context.Context) error {
	unhealthy, refreshErr := d.scan(ctx)
	if len(unhealthy) == 0 {
		return refreshErr
	}

	m := d.w.Mutator()
	defer m.Close()

	errs := []error{refreshErr}
	for _, app := range unhealthy {
		d.log.Warn("restarting unhealthy node", slog.String("application", app.String()))
		if err := m.RestartNode(app); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, m.Commit(ctx))
	return collect(errs...)
}

func (d *Watchdog) scan(ctx context.Context) (unhealthy []ids.ApplicationID, err error) {
	a := d.w.Accessor()
	defer a.Close()

	var errs []error
	if a.Master().State(ctx) == node.StateUnhealthy {
		d.log.Error("master node is unhealthy", slog.String("node", a.Master().String()))
	} else {
		errs = append(errs, d.refresh(ctx, a.Master()))
	}

	for _, n := range a.Nodes() {
		if n.State(ctx) == node.StateUnhealthy {
			unhealthy = append(unhealthy, n.Application())
			continue
		}
		errs = append(errs, d.refresh(ctx, n))
	}
	return unhealthy, collect(errs...)
}

func (d *Watchdog) refresh(ctx context.Context, n *node.Node) error {
	b := n.Binding()
	if b == nil {
		return nil
	}
	if err := b.Refresh(ctx); err != nil {
		d.log.Warn("binding refresh failed", slog.String("node", n.String()), slog.Any("error", err))
		return fmt.Errorf("refresh %s: %w", n, err)
	}
	return nil
}

// Run calls Check every interval until ctx is done. Errors are logged.
func (d *Watchdog) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := d.Check(ctx); err != nil {
				d.log.Error("watchdog check failed", slog.Any("error", err))
			}
		}
	}
}
