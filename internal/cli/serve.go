package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stealth-startup/openexchange/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Replay blocks continuously and expose status and metrics",
		Long: `Poll the chain every serve.poll_interval and process blocks until the tip.
Unavailable collaborators are retried on the next tick; a consistency
violation stops the loop.

HTTP endpoints on serve.listen:
  /healthz  liveness
  /status   current height, hash and run id
  /metrics  Prometheus metrics (metrics.path)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, needs{assets: true, chain: true}, runServe)
		},
	}
}

func runServe(parent context.Context, a *app, f *OutputFormatter) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := &http.Server{
		Addr:              a.cfg.Serve.Listen,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return replayLoop(gctx, a)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fail(f, "serve stopped", err)
	}
	a.logger.Info("serve stopped gracefully")
	return nil
}

// replayLoop processes blocks up to the tip on every tick.
func replayLoop(ctx context.Context, a *app) error {
	ticker := time.NewTicker(a.cfg.Serve.PollInterval.Duration)
	defer ticker.Stop()
	for {
		if err := catchUp(ctx, a.svc); err != nil {
			if !server.IsUnavailable(err) {
				return err
			}
			a.logger.Warn("replay unavailable, will retry", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func catchUp(ctx context.Context, svc *server.Service) error {
	for ctx.Err() == nil {
		res, err := svc.ProcessNextBlock(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if res == server.ResultNoNewBlock {
			return nil
		}
	}
	return nil
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	RunID  string `json:"run_id"`
	Height int64  `json:"height"`
	Hash   string `json:"hash"`
	State  string `json:"state"`
	Assets int    `json:"assets"`
}

func newRouter(a *app) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		st := a.svc.Snapshot()
		if st == nil {
			http.Error(w, server.ErrNotInitialized.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(StatusResponse{
			RunID:  a.svc.RunID(),
			Height: st.Height(),
			Hash:   st.Hash(),
			State:  string(st.Exchange.State),
			Assets: len(st.Exchange.Assets),
		})
	})
	if a.cfg.Metrics.On() {
		r.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}
	return r
}
