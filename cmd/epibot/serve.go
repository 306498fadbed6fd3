package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"epibot/internal/core"
	"epibot/internal/logging"
	"epibot/internal/transport/console"
	"epibot/pkg/domain"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(state *cliState) *cobra.Command {
	var (
		user      int64
		prompt    string
		traceFile string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Talk to the bot on this terminal",
		Long: `Serves one conversation over stdin/stdout. Commands: /menu, /form,
/search, /quit. Press a button with #<number> or #<action-id>.

When metrics.addr is set, Prometheus metrics are served on /metrics and
expvar counters on /debug/vars.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, state, domain.UserID(user), prompt, traceFile)
		},
	}
	cmd.Flags().Int64Var(&user, "user", 1, "user id of the terminal conversation")
	cmd.Flags().StringVar(&prompt, "prompt", "> ", "input prompt, empty to disable")
	cmd.Flags().StringVar(&traceFile, "trace-file", "", "append one JSON span per handled action to this file")
	return cmd
}

func serve(cmd *cobra.Command, state *cliState, user domain.UserID, prompt, traceFile string) (err error) {
	cfg := state.cfg
	logger := state.logger

	var (
		opts    []core.Option
		handler http.Handler
	)
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return err
		}
		opts = append(opts, core.WithMetricsRecorder(core.MultiMetricsRecorder{
			prom,
			core.NewExpvarMetricsRecorder(cfg.Metrics.ExpvarName),
		}))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		mux.Handle("/debug/vars", expvar.Handler())
		handler = mux
	}
	if traceFile != "" {
		f, err := os.OpenFile(traceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer f.Close()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f, 0)))
	}

	a, err := newApp(cmd.Context(), cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer closeInto(a, &err)

	var ln net.Listener
	if handler != nil {
		ln, err = net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Metrics.Addr, err)
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		tr := console.New(a.svc, cmd.InOrStdin(), cmd.OutOrStdout(),
			console.WithUser(user),
			console.WithPrompt(prompt),
			console.WithLogger(logging.Wrap(logger).Named("console")),
		)
		if err := tr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.sessions.Run(ctx, cfg.GetSweepInterval())
	})
	if ln != nil {
		srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
		logger.Info("metrics listening", zap.String("addr", ln.Addr().String()))
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("epibot serving",
		zap.String("storage", cfg.Storage.Driver),
		zap.Int64("user_id", int64(user)),
		zap.Duration("idle_ttl", cfg.GetIdleTTL()))
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("epibot stopped")
	return nil
}
