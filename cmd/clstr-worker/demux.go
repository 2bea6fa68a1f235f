package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	promadapter "github.com/NamazuStudios/elements-sub015/adapters/prometheus"
	"github.com/NamazuStudios/elements-sub015/internal/config"
)

var demuxCmd = &cobra.Command{
	Use:   "demux",
	Short: "Run a demultiplexer",
	Long: `Run a demultiplexer that accepts framed requests on its frontend address
and routes each one to the node named in its routing header, looking node
addresses up in the directory.

Examples:
  clstr-worker demux --config demux.yaml
  CLSTR_NETWORK_KIND=tcp CLSTR_DIRECTORY_KIND=redis clstr-worker demux`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runDemux(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(demuxCmd)
}

func runDemux(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	s, err := newStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("stack close failed", slog.Any("error", err))
		}
	}()

	reg := newRegistry()
	d, err := newDemux(cfg, log, s, promadapter.NewAllMetrics(reg))
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}
	log.Info("demux running",
		slog.String("addr", d.Addr()),
		slog.String("identity", d.Identity().String()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-d.Done():
		}
		return multierr.Append(d.Err(), d.Close())
	})
	if cfg.Ops.Addr != "" {
		g.Go(func() error {
			r := chi.NewRouter()
			r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			return serveHTTP(ctx, log, cfg.Ops.Addr, r)
		})
	}
	return g.Wait()
}
