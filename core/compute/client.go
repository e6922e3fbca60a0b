package compute

import (
	"context"
	"strings"

	"sagemaker-orchestrator/core/models"
)

// Client is uniform access to the compute service's job lifecycle.
// Implementations never retry mutating calls; retry policy belongs to the caller.
type Client interface {
	// SubmitTrainingJob returns the handle of the new job or a SubmissionError
	SubmitTrainingJob(ctx context.Context, req models.TrainingJobRequest) (string, error)

	// DescribeJob returns the current state of a training job or a NotFoundError
	DescribeJob(ctx context.Context, handle string) (models.Job, error)

	// ListCompletedTrainingJobs returns completed jobs whose name contains namePrefix,
	// most recent first. No match is an empty slice, not an error.
	ListCompletedTrainingJobs(ctx context.Context, namePrefix string, limit int) ([]models.Job, error)

	// CreateModel registers a model. An existing name yields RegistrationAlreadyExists.
	CreateModel(ctx context.Context, model models.RegisteredModel) (models.RegistrationResult, error)

	// DescribeModel returns a registered model or a NotFoundError
	DescribeModel(ctx context.Context, name string) (models.RegisteredModel, error)

	// SubmitTransformJob returns the handle of the new transform job or a SubmissionError
	SubmitTransformJob(ctx context.Context, req models.TransformJobRequest) (string, error)

	// DescribeTransformJob returns the current state of a transform job or a NotFoundError
	DescribeTransformJob(ctx context.Context, handle string) (models.TransformJob, error)
}

// JobNameFromHandle extracts the job name from an ARN handle.
// A bare name is returned unchanged.
func JobNameFromHandle(handle string) string {
	if i := strings.LastIndex(handle, "/"); i >= 0 {
		return handle[i+1:]
	}
	return handle
}
