package steps

import (
	"context"

	"go.uber.org/zap"

	"sagemaker-orchestrator/core/compute"
	"sagemaker-orchestrator/core/models"
)

// RegistrationStep registers a resolved artifact as a deployable model
type RegistrationStep struct {
	client compute.Client
}

func NewRegistrationStep(client compute.Client) *RegistrationStep {
	return &RegistrationStep{client: client}
}

// Register creates model name from artifact. role overrides the artifact's
// execution role when set. Registering an existing name is not an error.
func (s *RegistrationStep) Register(ctx context.Context, name string, artifact models.ResolvedArtifact, role string) (models.RegistrationResult, error) {
	if name == "" {
		return "", models.NewConfigError("model name is required for registration", nil)
	}
	if role == "" {
		role = artifact.RoleARN()
	}
	if role == "" {
		return "", models.NewConfigError("role_arn is required for registration", nil)
	}

	result, err := s.client.CreateModel(ctx, models.RegisteredModel{
		Name:          name,
		Image:         artifact.Image(),
		ArtifactURI:   artifact.ArtifactURI(),
		ExecutionRole: role,
	})
	if err != nil {
		return "", err
	}

	logger := zap.S().Named("registration_step")
	if result == models.RegistrationAlreadyExists {
		logger.Infof("Model %s already registered", name)
	} else {
		logger.Infof("Registered model %s from %s", name, artifact.ArtifactURI())
	}
	return result, nil
}
