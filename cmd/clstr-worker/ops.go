package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NamazuStudios/elements-sub015/core/node"
	"github.com/NamazuStudios/elements-sub015/core/worker"
)

// opsHandler serves the ops endpoints of a worker process.
type opsHandler struct {
	log      *slog.Logger
	instance *worker.InstanceService
	gatherer prometheus.Gatherer
}

func (h *opsHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Get("/healthz", h.healthz)
		r.Get("/nodes", h.nodes)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// healthz answers 200 while the master and every application node are
// healthy and 503 otherwise, listing the nodes that are not.
func (h *opsHandler) healthz(w http.ResponseWriter, r *http.Request) {
	info, err := h.instance.Describe(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	var unhealthy []string
	for _, n := range append([]worker.NodeInfo{info.Master}, info.Nodes...) {
		if n.State != node.StateHealthy.String() {
			unhealthy = append(unhealthy, n.Name)
		}
	}
	if len(unhealthy) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "nodes": unhealthy})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *opsHandler) nodes(w http.ResponseWriter, r *http.Request) {
	info, err := h.instance.Describe(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// serveOps runs the ops server on addr until ctx is done.
func serveOps(ctx context.Context, addr string, h *opsHandler) error {
	r := chi.NewRouter()
	h.Register(r)
	return serveHTTP(ctx, h.log, addr, r)
}

func serveHTTP(ctx context.Context, log *slog.Logger, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("ops server listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
