package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Compute and store backends
const (
	BackendSageMaker = "sagemaker"
	BackendMemory    = "memory"
	StorePostgres    = "postgres"
	StoreMemory      = "memory"
)

// Config holds the application configuration
type Config struct {
	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" default:"postgres://localhost/sagemaker_orchestrator?sslmode=disable"`
	Store       string `envconfig:"STORE_BACKEND" default:"postgres"`

	// Server
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// AWS
	AWSRegion       string `envconfig:"AWS_REGION" default:"us-east-1"`
	PricingRegion   string `envconfig:"PRICING_REGION" default:"us-east-1"`
	Compute         string `envconfig:"COMPUTE_BACKEND" default:"sagemaker"`
	VerifyArtifacts bool   `envconfig:"VERIFY_ARTIFACTS" default:"false"`
	EstimateCosts   bool   `envconfig:"ESTIMATE_COSTS" default:"true"`

	// Pipeline
	MaxWait         time.Duration `envconfig:"MAX_WAIT" default:"1000s"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	MaxPollInterval time.Duration `envconfig:"MAX_POLL_INTERVAL" default:"2m"`
	MonitorInterval time.Duration `envconfig:"MONITOR_INTERVAL" default:"1m"`

	// Predictor
	PredictorPort    string `envconfig:"PREDICTOR_PORT" default:"8080"`
	PredictorCommand string `envconfig:"PREDICTOR_COMMAND" default:""`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings and the polling intervals
func (c *Config) Validate() error {
	switch c.Compute {
	case BackendSageMaker, BackendMemory:
	default:
		return fmt.Errorf("COMPUTE_BACKEND must be %q or %q, got %q", BackendSageMaker, BackendMemory, c.Compute)
	}
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("MAX_WAIT must be positive, got %s", c.MaxWait)
	}
	if c.PollInterval <= 0 || c.MonitorInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL and MONITOR_INTERVAL must be positive")
	}
	if c.MaxPollInterval <= 0 || c.MaxPollInterval < c.PollInterval {
		return fmt.Errorf("MAX_POLL_INTERVAL must be at least POLL_INTERVAL (%s), got %s", c.PollInterval, c.MaxPollInterval)
	}
	if c.Store == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", StorePostgres)
	}
	return nil
}
