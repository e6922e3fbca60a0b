package steps

import (
	"context"

	"go.uber.org/zap"

	"sagemaker-orchestrator/core/compute"
	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/core/monitoring"
)

const (
	// DiscoveryLimit bounds how many completed jobs are listed when looking
	// for the latest one
	DiscoveryLimit = 100

	TransformContentType  = "application/jsonlines"
	TransformMaxPayloadMB = 6
)

// InferenceStep runs batch inference against the latest (or a named) completed
// training job of a model: resolve, register, submit a transform job.
type InferenceStep struct {
	client       compute.Client
	names        NameGenerator
	artifacts    *ArtifactStep
	registration *RegistrationStep
}

func NewInferenceStep(client compute.Client, names NameGenerator, artifacts *ArtifactStep, registration *RegistrationStep) *InferenceStep {
	return &InferenceStep{
		client:       client,
		names:        names,
		artifacts:    artifacts,
		registration: registration,
	}
}

// Validate checks the inference inputs of jc without calling the compute service
func (s *InferenceStep) Validate(jc *models.JobContext) error {
	if err := ValidateModelName(jc.ModelName); err != nil {
		return err
	}
	if err := ValidateS3URI("inference_data_uri", jc.InferenceDataLocation); err != nil {
		return err
	}
	return jc.ResourceConfig.Validate(false)
}

// Discover returns the handle of the most recent completed training job of modelName
func (s *InferenceStep) Discover(ctx context.Context, modelName string) (string, error) {
	jobs, err := s.client.ListCompletedTrainingJobs(ctx, modelName, DiscoveryLimit)
	if err != nil {
		return "", err
	}
	if len(jobs) == 0 {
		return "", models.NewNoCompletedJobError(modelName)
	}
	latest := jobs[0]
	if latest.Handle != "" {
		return latest.Handle, nil
	}
	return latest.Name, nil
}

// Run fills jc with the resolved artifact, the registered model and the
// submitted transform job. trainingJob pins a specific job by name or handle;
// empty means the latest completed job of jc.ModelName.
func (s *InferenceStep) Run(ctx context.Context, jc *models.JobContext, trainingJob string) error {
	if err := s.Validate(jc); err != nil {
		return err
	}

	logger := zap.S().Named("inference_step")

	handle := trainingJob
	if handle == "" {
		discovered, err := s.Discover(ctx, jc.ModelName)
		if err != nil {
			return err
		}
		handle = discovered
		logger.Infof("Using latest completed training job %s for %s", compute.JobNameFromHandle(handle), jc.ModelName)
	}

	artifact, err := s.artifacts.Resolve(ctx, handle)
	if err != nil {
		return err
	}
	if err := jc.SetArtifact(artifact); err != nil {
		return err
	}

	modelName := artifact.JobName()
	if _, err := s.registration.Register(ctx, modelName, artifact, jc.RoleARN); err != nil {
		if !models.IsKind(err, models.KindRegistration) {
			return err
		}
		if _, derr := s.client.DescribeModel(ctx, modelName); derr != nil {
			return err
		}
		logger.Warnf("Registration of %s failed but the model exists, reusing it: %v", modelName, err)
		monitoring.IncreaseRegistrationFallbacksMetric()
	}
	if err := jc.SetRegisteredModel(modelName); err != nil {
		return err
	}

	transformName, err := s.names.JobName(jc.ModelName)
	if err != nil {
		return err
	}
	output := TransformOutputLocation(jc.InferenceDataLocation)

	transformHandle, err := s.client.SubmitTransformJob(ctx, models.TransformJobRequest{
		Name:           transformName,
		ModelName:      modelName,
		InputLocation:  jc.InferenceDataLocation,
		OutputLocation: output,
		Resources:      jc.ResourceConfig,
		ContentType:    TransformContentType,
		MaxPayloadMB:   TransformMaxPayloadMB,
	})
	monitoring.IncreaseJobSubmissionsMetric("transform", err)
	if err != nil {
		return err
	}

	logger.Infof("Submitted transform job %s writing to %s", transformName, output)
	return jc.SetTransformJob(transformName, transformHandle, output)
}
