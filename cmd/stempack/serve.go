package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stempack/internal/api"
	"stempack/internal/config"
	fileutil "stempack/internal/file"
	"stempack/internal/run"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service that runs packaging in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	if err := fileutil.EnsureDir(cfg.Server.StateDir); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}
	if cfg.Level() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter()
	runManager := buildRunManager(cfg)
	wireAPI(router, runManager)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	runManager.SetBaseContext(baseCtx)

	srv := newHTTPServer(cfg.Server.Port, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("state_dir", cfg.Server.StateDir).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		baseCancel()
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	}

	gracefulShutdown(srv, baseCancel, runManager, shutdownTimeout)
	return nil
}

func setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestLogger(log.Logger))
	return r
}

func buildRunManager(cfg config.Config) *run.Manager {
	m := run.NewManager(run.Options{
		StateDir:          cfg.Server.StateDir,
		Base:              cfg.PackOptions(),
		MaxConcurrentRuns: cfg.Server.MaxConcurrentRuns,
		RunTimeout:        cfg.RunTimeout(),
	})
	if err := m.LoadFromDisk(); err != nil {
		log.Warn().Err(err).Msg("failed to load previous runs")
	}
	return m
}

func wireAPI(router *gin.Engine, m *run.Manager) {
	apiHandler := api.NewAPI(m)
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, m *run.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !m.WaitAll(ctx) {
		log.Warn().Msg("background runs did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
