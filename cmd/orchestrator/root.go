package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sagemaker-orchestrator/config"
	"sagemaker-orchestrator/core/logging"
)

var (
	cfg       *config.Config
	undoLog   func()
	logLevel  string
	computeBk string
	storeBk   string
	maxWait   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "orchestrator",
	Short:         "Train, register and batch-serve models on SageMaker",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if cmd.Flags().Changed("compute") {
			loaded.Compute = computeBk
		}
		if cmd.Flags().Changed("store") {
			loaded.Store = storeBk
		}
		if cmd.Flags().Changed("max-wait") {
			loaded.MaxWait = maxWait
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		undoLog = logging.Setup(cfg.LogLevel)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if undoLog != nil {
			undoLog()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(inferCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(estimateCmd)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&computeBk, "compute", config.BackendSageMaker, "Compute backend: sagemaker or memory (overrides COMPUTE_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&storeBk, "store", config.StorePostgres, "Run store: postgres or memory (overrides STORE_BACKEND)")
	rootCmd.PersistentFlags().DurationVar(&maxWait, "max-wait", 1000*time.Second, "How long a training run may poll (overrides MAX_WAIT)")
}

// withApp builds the application for one command and tears it down afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func logger() *zap.SugaredLogger {
	return zap.S().Named("cli")
}
