package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortuna/vetoscope/internal/api/rest"
	"github.com/fortuna/vetoscope/internal/api/websocket"
	"github.com/fortuna/vetoscope/internal/cache"
	"github.com/fortuna/vetoscope/internal/runs"
)

var (
	servePort    string
	serveWorkers int
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and the websocket progress feed",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default $REST_PORT)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 1, "runs executed concurrently")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allowed-origin", nil, "websocket origins to accept (default any)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.RESTPort
	if servePort != "" {
		port = servePort
	}

	orch, err := a.newOrchestrator(ctx)
	if err != nil {
		return err
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(a.logger)
	go hub.Run(hubCtx)

	opts := []runs.Option{runs.WithBroadcaster(hub)}
	checks := map[string]rest.HealthChecker{}

	db, err := a.openStore(ctx)
	if err != nil {
		a.logger.Warn("run history disabled", "error", err)
	} else {
		opts = append(opts, runs.WithStore(db))
		checks["store"] = db
	}
	if pub := a.newPublisher(ctx); pub != nil {
		opts = append(opts, runs.WithPublisher(pub))
	}
	if a.redis != nil {
		checks["redis"] = cache.NewRedisCacheFromClient(a.redis, a.cfg.CacheTTL)
	}

	manager, err := runs.NewManager(orch, runs.Config{Workers: serveWorkers}, a.logger, opts...)
	if err != nil {
		return err
	}

	server := rest.NewServer(port,
		rest.NewHandler(manager, checks, a.logger),
		a.logger,
		websocket.NewServer(hub, serveOrigins, a.logger),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	a.logger.Info("vetoscope listening",
		"rest", "http://0.0.0.0:"+port+"/api/v1",
		"websocket", "ws://0.0.0.0:"+port+"/ws/runs")

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("run manager shutdown failed", "error", err)
	}
	stopHub()
	return nil
}
