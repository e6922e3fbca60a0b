package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"sagemaker-orchestrator/api/rest/routes"
	"sagemaker-orchestrator/core/monitoring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and advance polling runs in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			log := logger()

			ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := monitoring.RegisterRunCollector(a.store); err != nil {
				log.Warnf("Run gauges disabled: %v", err)
			}

			// Advance polling runs without waiting for a client to do it
			runMonitor := monitoring.NewRunMonitor(a.orch, cfg.MonitorInterval)
			go runMonitor.Start(ctx)

			r := mux.NewRouter()
			routes.SetupRoutes(r, a.orch, a.artifacts)

			server := &http.Server{
				Addr:              ":" + cfg.ServerPort,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infof("Starting server on port %s (compute=%s, store=%s)", cfg.ServerPort, cfg.Compute, cfg.Store)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			log.Info("Shutting down server...")
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			log.Info("Server exited")
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the run store schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		// newApp migrates the Postgres store on open
		return withApp(cmd, func(ctx context.Context, a *app) error {
			logger().Infof("Run store %s is up to date", cfg.Store)
			return nil
		})
	},
}
