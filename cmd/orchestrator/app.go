package main

import (
	"context"
	"fmt"

	"sagemaker-orchestrator/config"
	"sagemaker-orchestrator/core/compute"
	"sagemaker-orchestrator/core/optimizer"
	"sagemaker-orchestrator/core/orchestrator"
	"sagemaker-orchestrator/core/repository"
	"sagemaker-orchestrator/providers/aws"
	"sagemaker-orchestrator/providers/memory"
	"sagemaker-orchestrator/storage"
)

// app is everything a command needs, built from the configuration
type app struct {
	orch      *orchestrator.Orchestrator
	store     repository.RunStore
	artifacts *storage.ArtifactStore
	db        *repository.DB
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	switch cfg.Store {
	case config.StoreMemory:
		a.store = repository.NewMemoryStore()
	default:
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.store = repository.NewPostgresStore(db)
	}

	opts := []orchestrator.Option{
		orchestrator.WithMaxWait(cfg.MaxWait),
		orchestrator.WithPollInterval(cfg.PollInterval),
		orchestrator.WithMaxPollInterval(cfg.MaxPollInterval),
	}

	var client compute.Client
	switch cfg.Compute {
	case config.BackendMemory:
		client = memory.NewService()
		a.artifacts = storage.NewArtifactStore(nil, a.store)
	default:
		clients, err := aws.NewClients(ctx, cfg.AWSRegion, cfg.PricingRegion)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		client = aws.NewComputeClient(clients.SageMaker)
		a.artifacts = storage.NewArtifactStore(clients.S3, a.store)
		if cfg.VerifyArtifacts {
			opts = append(opts, orchestrator.WithArtifactVerifier(a.artifacts))
		}
		if cfg.EstimateCosts {
			prices := optimizer.NewPricingFetcher(aws.NewPriceFinder(clients.Pricing), clients.Region)
			opts = append(opts, orchestrator.WithCostEstimator(optimizer.NewCostCalculator(prices)))
		}
	}

	a.orch = orchestrator.New(client, a.store, opts...)
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
