package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"go.uber.org/zap"

	"sagemaker-orchestrator/core/compute"
	"sagemaker-orchestrator/core/models"
)

// maxListResults is the ListTrainingJobs page size limit
const maxListResults = 100

// SageMakerAPI is the subset of the SageMaker client the compute client uses
type SageMakerAPI interface {
	CreateTrainingJob(ctx context.Context, params *sagemaker.CreateTrainingJobInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateTrainingJobOutput, error)
	DescribeTrainingJob(ctx context.Context, params *sagemaker.DescribeTrainingJobInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeTrainingJobOutput, error)
	ListTrainingJobs(ctx context.Context, params *sagemaker.ListTrainingJobsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.ListTrainingJobsOutput, error)
	CreateModel(ctx context.Context, params *sagemaker.CreateModelInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateModelOutput, error)
	DescribeModel(ctx context.Context, params *sagemaker.DescribeModelInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeModelOutput, error)
	CreateTransformJob(ctx context.Context, params *sagemaker.CreateTransformJobInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateTransformJobOutput, error)
	DescribeTransformJob(ctx context.Context, params *sagemaker.DescribeTransformJobInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeTransformJobOutput, error)
}

// ComputeClient is the compute.Client backed by SageMaker
type ComputeClient struct {
	api SageMakerAPI
}

var _ compute.Client = (*ComputeClient)(nil)

// NewComputeClient creates a compute client over api
func NewComputeClient(api SageMakerAPI) *ComputeClient {
	return &ComputeClient{api: api}
}

// noRetry disables SDK retries. A retried create could submit a job twice.
func noRetry(o *sagemaker.Options) {
	o.RetryMaxAttempts = 1
}

func (c *ComputeClient) SubmitTrainingJob(ctx context.Context, req models.TrainingJobRequest) (string, error) {
	out, err := c.api.CreateTrainingJob(ctx, buildTrainingJobInput(req), noRetry)
	if err != nil {
		return "", models.NewSubmissionError(fmt.Sprintf("training job %s rejected", req.Name), err)
	}
	zap.S().Named("sagemaker").Infof("Created training job %s", req.Name)
	return aws.ToString(out.TrainingJobArn), nil
}

func (c *ComputeClient) DescribeJob(ctx context.Context, handle string) (models.Job, error) {
	name := compute.JobNameFromHandle(handle)
	out, err := c.api.DescribeTrainingJob(ctx, &sagemaker.DescribeTrainingJobInput{
		TrainingJobName: aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return models.Job{}, models.NewNotFoundError("training job "+name, err)
		}
		return models.Job{}, fmt.Errorf("failed to describe training job %s: %w", name, err)
	}

	job := models.Job{
		Name:          aws.ToString(out.TrainingJobName),
		Handle:        aws.ToString(out.TrainingJobArn),
		Status:        trainingJobStatus(out.TrainingJobStatus),
		CreationTime:  aws.ToTime(out.CreationTime),
		RoleARN:       aws.ToString(out.RoleArn),
		FailureReason: aws.ToString(out.FailureReason),
	}
	if out.AlgorithmSpecification != nil {
		job.TrainingImageURI = aws.ToString(out.AlgorithmSpecification.TrainingImage)
	}
	if out.ModelArtifacts != nil {
		job.ModelArtifactURI = aws.ToString(out.ModelArtifacts.S3ModelArtifacts)
	}
	return job, nil
}

func (c *ComputeClient) ListCompletedTrainingJobs(ctx context.Context, namePrefix string, limit int) ([]models.Job, error) {
	if limit <= 0 || limit > maxListResults {
		limit = maxListResults
	}
	out, err := c.api.ListTrainingJobs(ctx, &sagemaker.ListTrainingJobsInput{
		NameContains: aws.String(namePrefix),
		StatusEquals: types.TrainingJobStatusCompleted,
		SortBy:       types.SortByCreationTime,
		SortOrder:    types.SortOrderDescending,
		MaxResults:   aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list training jobs for %s: %w", namePrefix, err)
	}

	jobs := make([]models.Job, 0, len(out.TrainingJobSummaries))
	for _, s := range out.TrainingJobSummaries {
		jobs = append(jobs, models.Job{
			Name:         aws.ToString(s.TrainingJobName),
			Handle:       aws.ToString(s.TrainingJobArn),
			Status:       trainingJobStatus(s.TrainingJobStatus),
			CreationTime: aws.ToTime(s.CreationTime),
		})
	}
	return jobs, nil
}

func (c *ComputeClient) CreateModel(ctx context.Context, model models.RegisteredModel) (models.RegistrationResult, error) {
	_, err := c.api.CreateModel(ctx, &sagemaker.CreateModelInput{
		ModelName: aws.String(model.Name),
		PrimaryContainer: &types.ContainerDefinition{
			Image:        aws.String(model.Image),
			ModelDataUrl: aws.String(model.ArtifactURI),
		},
		ExecutionRoleArn: aws.String(model.ExecutionRole),
	}, noRetry)
	if err != nil {
		if isAlreadyExists(err) {
			return models.RegistrationAlreadyExists, nil
		}
		return "", models.NewRegistrationError(model.Name, err)
	}
	return models.RegistrationCreated, nil
}

func (c *ComputeClient) DescribeModel(ctx context.Context, name string) (models.RegisteredModel, error) {
	out, err := c.api.DescribeModel(ctx, &sagemaker.DescribeModelInput{ModelName: aws.String(name)})
	if err != nil {
		if isNotFound(err) {
			return models.RegisteredModel{}, models.NewNotFoundError("model "+name, err)
		}
		return models.RegisteredModel{}, fmt.Errorf("failed to describe model %s: %w", name, err)
	}

	model := models.RegisteredModel{
		Name:          aws.ToString(out.ModelName),
		ExecutionRole: aws.ToString(out.ExecutionRoleArn),
	}
	if out.PrimaryContainer != nil {
		model.Image = aws.ToString(out.PrimaryContainer.Image)
		model.ArtifactURI = aws.ToString(out.PrimaryContainer.ModelDataUrl)
	}
	return model, nil
}

func (c *ComputeClient) SubmitTransformJob(ctx context.Context, req models.TransformJobRequest) (string, error) {
	out, err := c.api.CreateTransformJob(ctx, buildTransformJobInput(req), noRetry)
	if err != nil {
		return "", models.NewSubmissionError(fmt.Sprintf("transform job %s rejected", req.Name), err)
	}
	zap.S().Named("sagemaker").Infof("Created transform job %s", req.Name)
	return aws.ToString(out.TransformJobArn), nil
}

func (c *ComputeClient) DescribeTransformJob(ctx context.Context, handle string) (models.TransformJob, error) {
	name := compute.JobNameFromHandle(handle)
	out, err := c.api.DescribeTransformJob(ctx, &sagemaker.DescribeTransformJobInput{
		TransformJobName: aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return models.TransformJob{}, models.NewNotFoundError("transform job "+name, err)
		}
		return models.TransformJob{}, fmt.Errorf("failed to describe transform job %s: %w", name, err)
	}

	job := models.TransformJob{
		Name:          aws.ToString(out.TransformJobName),
		Handle:        aws.ToString(out.TransformJobArn),
		ModelName:     aws.ToString(out.ModelName),
		Status:        transformJobStatus(out.TransformJobStatus),
		CreationTime:  aws.ToTime(out.CreationTime),
		FailureReason: aws.ToString(out.FailureReason),
	}
	if out.TransformInput != nil && out.TransformInput.DataSource != nil && out.TransformInput.DataSource.S3DataSource != nil {
		job.InputLocation = aws.ToString(out.TransformInput.DataSource.S3DataSource.S3Uri)
	}
	if out.TransformOutput != nil {
		job.OutputLocation = aws.ToString(out.TransformOutput.S3OutputPath)
	}
	return job, nil
}

func buildTrainingJobInput(req models.TrainingJobRequest) *sagemaker.CreateTrainingJobInput {
	channels := make([]types.Channel, 0, len(req.InputChannels))
	for _, ch := range req.InputChannels {
		channels = append(channels, types.Channel{
			ChannelName: aws.String(ch.Name),
			DataSource: &types.DataSource{
				S3DataSource: &types.S3DataSource{
					S3DataType:             types.S3DataTypeS3Prefix,
					S3Uri:                  aws.String(ch.URI),
					S3DataDistributionType: types.S3DataDistributionFullyReplicated,
				},
			},
		})
	}

	input := &sagemaker.CreateTrainingJobInput{
		TrainingJobName: aws.String(req.Name),
		AlgorithmSpecification: &types.AlgorithmSpecification{
			TrainingImage:     aws.String(req.Image),
			TrainingInputMode: types.TrainingInputModeFile,
		},
		RoleArn:         aws.String(req.RoleARN),
		InputDataConfig: channels,
		OutputDataConfig: &types.OutputDataConfig{
			S3OutputPath: aws.String(req.OutputLocation),
		},
		ResourceConfig: &types.ResourceConfig{
			InstanceType:   types.TrainingInstanceType(req.Resources.InstanceType),
			InstanceCount:  aws.Int32(int32(req.Resources.InstanceCount)),
			VolumeSizeInGB: aws.Int32(int32(req.Resources.VolumeSizeGB)),
		},
		EnableManagedSpotTraining: aws.Bool(req.UseSpot),
		StoppingCondition: &types.StoppingCondition{
			MaxRuntimeInSeconds: aws.Int32(seconds(req.MaxRuntime)),
		},
		HyperParameters: req.Hyperparameters,
	}
	// MaxWaitTimeInSeconds is only accepted for managed spot training
	if req.UseSpot && req.MaxWait > 0 {
		input.StoppingCondition.MaxWaitTimeInSeconds = aws.Int32(seconds(req.MaxWait))
	}
	return input
}

func buildTransformJobInput(req models.TransformJobRequest) *sagemaker.CreateTransformJobInput {
	input := &sagemaker.CreateTransformJobInput{
		TransformJobName: aws.String(req.Name),
		ModelName:        aws.String(req.ModelName),
		BatchStrategy:    types.BatchStrategyMultiRecord,
		TransformInput: &types.TransformInput{
			DataSource: &types.TransformDataSource{
				S3DataSource: &types.TransformS3DataSource{
					S3DataType: types.S3DataTypeS3Prefix,
					S3Uri:      aws.String(req.InputLocation),
				},
			},
			ContentType: aws.String(req.ContentType),
			SplitType:   types.SplitTypeLine,
		},
		TransformOutput: &types.TransformOutput{
			S3OutputPath: aws.String(req.OutputLocation),
		},
		TransformResources: &types.TransformResources{
			InstanceType:  types.TransformInstanceType(req.Resources.InstanceType),
			InstanceCount: aws.Int32(int32(req.Resources.InstanceCount)),
		},
	}
	if req.MaxPayloadMB > 0 {
		input.MaxPayloadInMB = aws.Int32(int32(req.MaxPayloadMB))
	}
	return input
}

func seconds(d time.Duration) int32 {
	return int32(d / time.Second)
}

// trainingJobStatus maps SageMaker statuses; Stopping is still running
func trainingJobStatus(s types.TrainingJobStatus) models.JobStatus {
	switch s {
	case types.TrainingJobStatusCompleted:
		return models.JobStatusCompleted
	case types.TrainingJobStatusFailed:
		return models.JobStatusFailed
	case types.TrainingJobStatusStopped:
		return models.JobStatusStopped
	}
	return models.JobStatusInProgress
}

func transformJobStatus(s types.TransformJobStatus) models.JobStatus {
	switch s {
	case types.TransformJobStatusCompleted:
		return models.JobStatusCompleted
	case types.TransformJobStatusFailed:
		return models.JobStatusFailed
	case types.TransformJobStatusStopped:
		return models.JobStatusStopped
	}
	return models.JobStatusInProgress
}
