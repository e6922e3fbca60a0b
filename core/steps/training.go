package steps

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sagemaker-orchestrator/core/compute"
	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/core/monitoring"
	"sagemaker-orchestrator/training/hyperparams"
)

const (
	TrainingChannel   = "train"
	DefaultMaxRuntime = 900 * time.Second
	DefaultMaxWait    = 1000 * time.Second
)

// TrainingStep submits a training job. It does not wait for completion.
type TrainingStep struct {
	client     compute.Client
	names      NameGenerator
	table      hyperparams.Table
	MaxRuntime time.Duration
	MaxWait    time.Duration
}

// NewTrainingStep creates a training step using the XGBoost hyperparameter table
func NewTrainingStep(client compute.Client, names NameGenerator) *TrainingStep {
	return &TrainingStep{
		client:     client,
		names:      names,
		table:      hyperparams.XGBoost,
		MaxRuntime: DefaultMaxRuntime,
		MaxWait:    DefaultMaxWait,
	}
}

// Validate checks the training inputs of jc without submitting anything
func (s *TrainingStep) Validate(jc *models.JobContext) error {
	if err := ValidateModelName(jc.ModelName); err != nil {
		return err
	}
	if jc.TrainingImage == "" {
		return models.NewConfigError("training_image is required", nil)
	}
	if jc.RoleARN == "" {
		return models.NewConfigError("role_arn is required", nil)
	}
	if err := ValidateS3URI("train_data_uri", jc.TrainDataLocation); err != nil {
		return err
	}
	if jc.OutputLocation != "" {
		if err := ValidateS3URI("output_uri", jc.OutputLocation); err != nil {
			return err
		}
	}
	if _, err := hyperparams.CastAll(s.table, jc.Hyperparameters); err != nil {
		return err
	}
	return jc.ResourceConfig.Validate(true)
}

// Run submits the training job described by jc and records its name and handle
func (s *TrainingStep) Run(ctx context.Context, jc *models.JobContext) error {
	if err := s.Validate(jc); err != nil {
		return err
	}
	if jc.TrainingJobHandle != "" {
		return fmt.Errorf("training job %s already submitted", jc.TrainingJobName)
	}

	params, err := hyperparams.CastAll(s.table, jc.Hyperparameters)
	if err != nil {
		return err
	}

	name, err := s.names.JobName(jc.ModelName)
	if err != nil {
		return err
	}
	if jc.OutputLocation == "" {
		jc.OutputLocation = TrainingOutputLocation(jc.TrainDataLocation)
	}

	req := models.TrainingJobRequest{
		Name:    name,
		Image:   jc.TrainingImage,
		RoleARN: jc.RoleARN,
		InputChannels: []models.InputChannel{
			{Name: TrainingChannel, URI: jc.TrainDataLocation},
		},
		OutputLocation:  jc.OutputLocation,
		Resources:       jc.ResourceConfig,
		UseSpot:         jc.UseSpotCapacity,
		Hyperparameters: hyperparams.Encode(params),
		MaxRuntime:      s.MaxRuntime,
		MaxWait:         s.MaxWait,
	}

	zap.S().Named("training_step").Infof("Submitting training job %s (image %s, %d x %s, spot=%t)",
		name, req.Image, req.Resources.InstanceCount, req.Resources.InstanceType, req.UseSpot)

	handle, err := s.client.SubmitTrainingJob(ctx, req)
	monitoring.IncreaseJobSubmissionsMetric("training", err)
	if err != nil {
		return err
	}
	return jc.SetTrainingJob(name, handle)
}
