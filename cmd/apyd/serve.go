package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"apyd/internal/config"
	"apyd/internal/httpapi"
	"apyd/internal/manager"
	"apyd/internal/registry"
	"apyd/internal/telemetry"
)

const (
	defaultAddr     = ":2737"
	shutdownTimeout = 10 * time.Second
)

// serveOptions are the serve-only flags; each overrides the config file
// when set.
type serveOptions struct {
	addr             string
	maxPipesPerPair  int
	minPipesPerPair  int
	maxUsersPerPipe  int
	maxIdleSecs      int
	restartPipeAfter int64
	timeoutSecs      int
	maxBodyBytes     int64
	watch            bool
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	sopts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, opts, sopts)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&sopts.addr, "addr", "a", defaultAddr, "HTTP listen address (env APYD_ADDR)")
	f.IntVar(&sopts.maxPipesPerPair, "max-pipes-per-pair", 0, "Pipelines per pair ceiling (default 1)")
	f.IntVar(&sopts.minPipesPerPair, "min-pipes-per-pair", 0, "Pipelines per pair kept through idle sweeps")
	f.IntVar(&sopts.maxUsersPerPipe, "max-users-per-pipe", 0, "Callers on the least-loaded pipeline before the pool grows (default 5)")
	f.IntVar(&sopts.maxIdleSecs, "max-idle-secs", 0, "Retire pipelines idle longer than this (0 disables)")
	f.Int64Var(&sopts.restartPipeAfter, "restart-pipe-after", 0, "Retire a pipeline after this many requests (default 1000)")
	f.IntVar(&sopts.timeoutSecs, "timeout-secs", 0, "Per-exchange timeout in seconds (default 10)")
	f.Int64Var(&sopts.maxBodyBytes, "max-body-bytes", 0, "POST body limit in bytes (default 1 MiB)")
	f.BoolVar(&sopts.watch, "watch", false, "Rescan the modes directories when they change")
	return cmd
}

// loadServeConfig layers the serve flags over loadConfig.
func loadServeConfig(cmd *cobra.Command, opts *rootOptions, sopts *serveOptions) (config.Config, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if v := os.Getenv("APYD_ADDR"); v != "" && cfg.Addr == "" {
		cfg.Addr = v
	}
	if flags.Changed("addr") || cfg.Addr == "" {
		cfg.Addr = sopts.addr
	}
	if flags.Changed("max-pipes-per-pair") {
		cfg.MaxPipesPerPair = sopts.maxPipesPerPair
	}
	if flags.Changed("min-pipes-per-pair") {
		cfg.MinPipesPerPair = sopts.minPipesPerPair
	}
	if flags.Changed("max-users-per-pipe") {
		cfg.MaxUsersPerPipe = sopts.maxUsersPerPipe
	}
	if flags.Changed("max-idle-secs") {
		cfg.MaxIdleSecs = sopts.maxIdleSecs
	}
	if flags.Changed("restart-pipe-after") {
		cfg.RestartPipeAfter = sopts.restartPipeAfter
	}
	if flags.Changed("timeout-secs") {
		cfg.TimeoutSecs = sopts.timeoutSecs
	}
	if flags.Changed("max-body-bytes") {
		cfg.MaxBodyBytes = sopts.maxBodyBytes
	}
	if flags.Changed("watch") {
		cfg.Watch = sopts.watch
	}
	return cfg, cfg.Validate()
}

func runServe(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log := telemetry.SetupLogger(telemetry.LogConfig{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.TraceConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	mgr, dirs, err := buildManager(cfg, log)
	if err != nil {
		if manager.IsEmptyServerConfiguration(err) {
			log.Error().Strs("modes_dirs", dirs).Msg("no pairs or modes installed; refusing to start")
		}
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn().Err(err).Msg("manager close")
		}
	}()

	if cfg.Watch {
		w, err := registry.NewWatcher(registry.WatchConfig{
			Dirs:     dirs,
			Logger:   log.With().Str("component", "registry").Logger(),
			OnChange: mgr.SetRegistry,
		})
		if err != nil {
			return err
		}
		defer w.Close()
		go w.Run(ctx)
	}
	if cfg.MaxIdleSecs > 0 {
		go sweepLoop(ctx, mgr, cfg.MaxIdle()/2)
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(httpapi.NewMux(mgr), "apyd"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serveUntilDone(ctx, srv, log, dirs)
}

// serveUntilDone runs srv until ctx is canceled or the listener fails, then
// drains in-flight requests.
func serveUntilDone(ctx context.Context, srv *http.Server, log zerolog.Logger, dirs []string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Strs("modes_dirs", dirs).Msg("apyd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// sweepLoop retires idle pipelines between requests.
func sweepLoop(ctx context.Context, mgr *manager.Manager, every time.Duration) {
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			mgr.Sweep()
		}
	}
}
