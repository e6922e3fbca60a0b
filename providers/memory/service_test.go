package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagemaker-orchestrator/core/models"
)

func trainingRequest(name string) models.TrainingJobRequest {
	return models.TrainingJobRequest{
		Name:           name,
		Image:          "img:v1",
		RoleARN:        "arn:role",
		InputChannels:  []models.InputChannel{{Name: "train", URI: "s3://bucket/train"}},
		OutputLocation: "s3://bucket/training_output",
		Resources:      models.ResourceConfig{InstanceType: "ml.m5.large", InstanceCount: 1, VolumeSizeGB: 10},
		UseSpot:        true,
	}
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestDescribeRightAfterSubmitIsNeverTerminal(t *testing.T) {
	for _, after := range []int{-1, 0, 1, 5} {
		svc := NewService(WithCompleteAfter(after))
		ctx := context.Background()

		handle, err := svc.SubmitTrainingJob(ctx, trainingRequest("iris-model-1"))
		require.NoError(t, err)

		job, err := svc.DescribeJob(ctx, handle)
		require.NoError(t, err)
		assert.Contains(t, []models.JobStatus{models.JobStatusSubmitted, models.JobStatusInProgress}, job.Status)
	}
}

func TestJobCompletesWithArtifacts(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	handle, err := svc.SubmitTrainingJob(ctx, trainingRequest("iris-model-1"))
	require.NoError(t, err)

	job, err := svc.DescribeJob(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, job.Status)
	assert.Empty(t, job.ModelArtifactURI)

	job, err = svc.DescribeJob(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "img:v1", job.TrainingImageURI)
	assert.Equal(t, "s3://bucket/training_output/model.tar.gz", job.ModelArtifactURI)
	assert.Equal(t, "arn:role", job.RoleARN)
}

func TestDescribeUnknownJob(t *testing.T) {
	svc := NewService()
	_, err := svc.DescribeJob(context.Background(), "nope")
	assert.True(t, models.IsKind(err, models.KindNotFound))
}

func TestSubmitRejections(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	bad := trainingRequest("iris-model-1")
	bad.Resources.InstanceCount = 0
	_, err := svc.SubmitTrainingJob(ctx, bad)
	assert.True(t, models.IsKind(err, models.KindSubmission))

	_, err = svc.SubmitTrainingJob(ctx, trainingRequest("iris-model-1"))
	require.NoError(t, err)
	_, err = svc.SubmitTrainingJob(ctx, trainingRequest("iris-model-1"))
	assert.True(t, models.IsKind(err, models.KindSubmission))

	svc.FailNextSubmission(errors.New("ResourceLimitExceeded"))
	_, err = svc.SubmitTrainingJob(ctx, trainingRequest("iris-model-2"))
	assert.True(t, models.IsKind(err, models.KindSubmission))
	assert.Contains(t, err.Error(), "ResourceLimitExceeded")
}

func TestListCompletedTrainingJobsOrdering(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := NewService(WithClock(clock.Now))
	ctx := context.Background()

	for _, name := range []string{"iris-model-t1", "iris-model-t2", "iris-model-t3", "other-model-t4"} {
		_, err := svc.SubmitTrainingJob(ctx, trainingRequest(name))
		require.NoError(t, err)
		require.NoError(t, svc.SetJobStatus(name, models.JobStatusCompleted, ""))
	}
	_, err := svc.SubmitTrainingJob(ctx, trainingRequest("iris-model-running"))
	require.NoError(t, err)

	jobs, err := svc.ListCompletedTrainingJobs(ctx, "iris-model", 100)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "iris-model-t3", jobs[0].Name)
	for i := 1; i < len(jobs); i++ {
		assert.True(t, jobs[i-1].CreationTime.After(jobs[i].CreationTime))
	}

	jobs, err = svc.ListCompletedTrainingJobs(ctx, "iris-model", 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestListCompletedTrainingJobsEmpty(t *testing.T) {
	svc := NewService()
	jobs, err := svc.ListCompletedTrainingJobs(context.Background(), "iris-model", 100)
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestCreateModelIsIdempotent(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	model := models.RegisteredModel{Name: "iris-model-1", Image: "img:v1", ArtifactURI: "s3://bucket/model.tar.gz", ExecutionRole: "arn:role"}

	res, err := svc.CreateModel(ctx, model)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationCreated, res)

	res, err = svc.CreateModel(ctx, model)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationAlreadyExists, res)

	got, err := svc.DescribeModel(ctx, "iris-model-1")
	require.NoError(t, err)
	assert.Equal(t, model, got)

	_, err = svc.DescribeModel(ctx, "missing")
	assert.True(t, models.IsKind(err, models.KindNotFound))
}

func TestTransformJobRequiresModel(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	req := models.TransformJobRequest{
		Name:      "iris-model-tx",
		ModelName: "iris-model-1",
		Resources: models.ResourceConfig{InstanceType: "ml.m5.large", InstanceCount: 1},
	}

	_, err := svc.SubmitTransformJob(ctx, req)
	assert.True(t, models.IsKind(err, models.KindSubmission))

	_, err = svc.CreateModel(ctx, models.RegisteredModel{Name: "iris-model-1", Image: "img:v1", ArtifactURI: "s3://a"})
	require.NoError(t, err)

	handle, err := svc.SubmitTransformJob(ctx, req)
	require.NoError(t, err)

	tj, err := svc.DescribeTransformJob(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, tj.Status)
	assert.Equal(t, "iris-model-1", tj.ModelName)
}
