package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sagemaker-orchestrator/api/inference"
	"sagemaker-orchestrator/config"
	"sagemaker-orchestrator/core/logging"
)

var (
	port    string
	command string
)

var rootCmd = &cobra.Command{
	Use:          "predictor",
	Short:        "Serve /ping and /invocations for batch transform jobs",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		defer logging.Setup(cfg.LogLevel)()
		log := zap.S().Named("predictor")

		if !cmd.Flags().Changed("port") {
			port = cfg.PredictorPort
		}
		if !cmd.Flags().Changed("command") {
			command = cfg.PredictorCommand
		}
		predictor, err := inference.NewCommandPredictor(command)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		server := &http.Server{
			Addr:              ":" + port,
			Handler:           inference.NewRouter(predictor),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			_ = server.Shutdown(shutdownCtx)
		}()

		log.Infof("Serving predictions from %q on port %s", command, port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&port, "port", "8080", "Port to listen on (overrides PREDICTOR_PORT)")
	rootCmd.Flags().StringVar(&command, "command", "", "Prediction command reading JSON Lines on stdin (overrides PREDICTOR_COMMAND)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
