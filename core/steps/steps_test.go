package steps

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/providers/memory"
)

const (
	testImage = "123456789012.dkr.ecr.us-east-1.amazonaws.com/xgb-iris:latest"
	testRole  = "arn:aws:iam::123456789012:role/sagemaker-exec"
)

func fixedNames() NameGenerator {
	n := 0
	return NameGenerator{
		Now: func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) },
		Suffix: func() string {
			n++
			return fmt.Sprintf("%08d", n)
		},
	}
}

func trainingContext() *models.JobContext {
	return &models.JobContext{
		ModelName:         "iris",
		TrainingImage:     testImage,
		RoleARN:           testRole,
		TrainDataLocation: "s3://ml-bucket/iris/train",
		ResourceConfig: models.ResourceConfig{
			InstanceType:  "ml.m5.large",
			InstanceCount: 1,
			VolumeSizeGB:  10,
		},
		UseSpotCapacity: true,
		Hyperparameters: map[string]string{"max_depth": "5", "objective": `"multi:softprob"`},
	}
}

func inferenceContext() *models.JobContext {
	return &models.JobContext{
		ModelName:             "iris",
		InferenceDataLocation: "s3://ml-bucket/iris/infer",
		ResourceConfig:        models.ResourceConfig{InstanceType: "ml.m5.large", InstanceCount: 1},
	}
}

// trainCompleted submits a training job for jc and marks it Completed
func trainCompleted(t *testing.T, svc *memory.Service, step *TrainingStep, jc *models.JobContext) {
	t.Helper()
	require.NoError(t, step.Run(context.Background(), jc))
	require.NoError(t, svc.SetJobStatus(jc.TrainingJobName, models.JobStatusCompleted, ""))
}

func newInference(svc *memory.Service, names NameGenerator) *InferenceStep {
	return NewInferenceStep(svc, names, NewArtifactStep(svc, nil), NewRegistrationStep(svc))
}

func TestJobName(t *testing.T) {
	names := fixedNames()

	name, err := names.JobName("iris")
	require.NoError(t, err)
	assert.Equal(t, "iris-2024-05-01-10-30-00-00000001", name)

	second, err := names.JobName("iris")
	require.NoError(t, err)
	assert.NotEqual(t, name, second)

	long := "a123456789012345678901234567890123"
	require.Len(t, long, MaxModelNameLength)
	name, err = names.JobName(long)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(name), 63)

	_, err = names.JobName(long + "x")
	assert.True(t, models.IsKind(err, models.KindConfig))

	_, err = names.JobName("iris_v2")
	assert.True(t, models.IsKind(err, models.KindConfig))
}

func TestNewNameGeneratorIsUnique(t *testing.T) {
	names := NewNameGenerator()
	a, err := names.JobName("iris")
	require.NoError(t, err)
	b, err := names.JobName("iris")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocations(t *testing.T) {
	assert.Equal(t, "s3://ml-bucket/iris/training_output", TrainingOutputLocation("s3://ml-bucket/iris/train"))
	assert.Equal(t, "s3://ml-bucket/iris/training_output", TrainingOutputLocation("s3://ml-bucket/iris/train/"))
	assert.Equal(t, "s3://ml-bucket/training_output", TrainingOutputLocation("s3://ml-bucket"))
	assert.Equal(t, "s3://ml-bucket/iris/infer/inference_output", TransformOutputLocation("s3://ml-bucket/iris/infer/"))

	assert.NoError(t, ValidateS3URI("uri", "s3://bucket/key"))
	assert.Error(t, ValidateS3URI("uri", "https://bucket/key"))
	assert.Error(t, ValidateS3URI("uri", "s3://"))
	assert.Error(t, ValidateS3URI("uri", ""))
}

func TestTrainingStepSubmits(t *testing.T) {
	svc := memory.NewService()
	step := NewTrainingStep(svc, fixedNames())
	jc := trainingContext()

	require.NoError(t, step.Run(context.Background(), jc))

	assert.Equal(t, "iris-2024-05-01-10-30-00-00000001", jc.TrainingJobName)
	assert.NotEmpty(t, jc.TrainingJobHandle)
	assert.Equal(t, "s3://ml-bucket/iris/training_output", jc.OutputLocation)

	reqs := svc.TrainingRequests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, []models.InputChannel{{Name: "train", URI: "s3://ml-bucket/iris/train"}}, req.InputChannels)
	assert.Equal(t, 900*time.Second, req.MaxRuntime)
	assert.Equal(t, 1000*time.Second, req.MaxWait)
	assert.True(t, req.UseSpot)
	assert.Equal(t, "5", req.Hyperparameters["max_depth"])
}

func TestTrainingStepValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.JobContext)
	}{
		{name: "missing image", mutate: func(jc *models.JobContext) { jc.TrainingImage = "" }},
		{name: "missing role", mutate: func(jc *models.JobContext) { jc.RoleARN = "" }},
		{name: "bad train location", mutate: func(jc *models.JobContext) { jc.TrainDataLocation = "/tmp/train" }},
		{name: "zero instances", mutate: func(jc *models.JobContext) { jc.ResourceConfig.InstanceCount = 0 }},
		{name: "no volume", mutate: func(jc *models.JobContext) { jc.ResourceConfig.VolumeSizeGB = 0 }},
		{name: "malformed hyperparameter", mutate: func(jc *models.JobContext) { jc.Hyperparameters["max_depth"] = "deep" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := memory.NewService()
			jc := trainingContext()
			tt.mutate(jc)

			err := NewTrainingStep(svc, fixedNames()).Run(context.Background(), jc)
			assert.True(t, models.IsKind(err, models.KindConfig), "got %v", err)
			assert.Empty(t, svc.TrainingRequests())
			assert.Empty(t, jc.TrainingJobHandle)
		})
	}
}

func TestTrainingStepSubmissionError(t *testing.T) {
	svc := memory.NewService()
	svc.FailNextSubmission(errors.New("ResourceLimitExceeded"))
	jc := trainingContext()

	err := NewTrainingStep(svc, fixedNames()).Run(context.Background(), jc)
	assert.True(t, models.IsKind(err, models.KindSubmission))
	assert.Empty(t, jc.TrainingJobName)
}

func TestArtifactStep(t *testing.T) {
	svc := memory.NewService()
	training := NewTrainingStep(svc, fixedNames())
	jc := trainingContext()
	require.NoError(t, training.Run(context.Background(), jc))

	artifacts := NewArtifactStep(svc, nil)

	_, err := artifacts.Resolve(context.Background(), jc.TrainingJobHandle)
	assert.True(t, models.IsKind(err, models.KindIncompleteJob))

	require.NoError(t, svc.SetJobStatus(jc.TrainingJobName, models.JobStatusCompleted, ""))
	artifact, err := artifacts.Resolve(context.Background(), jc.TrainingJobHandle)
	require.NoError(t, err)
	assert.Equal(t, "s3://ml-bucket/iris/training_output/model.tar.gz", artifact.ArtifactURI())
	assert.Equal(t, testImage, artifact.Image())

	_, err = artifacts.Resolve(context.Background(), "missing-job")
	assert.True(t, models.IsKind(err, models.KindNotFound))
}

type verifierFunc func(ctx context.Context, uri string) error

func (f verifierFunc) Verify(ctx context.Context, uri string) error { return f(ctx, uri) }

func TestArtifactStepVerifier(t *testing.T) {
	svc := memory.NewService()
	jc := trainingContext()
	trainCompleted(t, svc, NewTrainingStep(svc, fixedNames()), jc)

	var checked string
	missing := verifierFunc(func(_ context.Context, uri string) error {
		checked = uri
		return models.NewNotFoundError("object "+uri, nil)
	})

	_, err := NewArtifactStep(svc, missing).Resolve(context.Background(), jc.TrainingJobHandle)
	assert.True(t, models.IsKind(err, models.KindIncompleteJob))
	assert.Equal(t, "s3://ml-bucket/iris/training_output/model.tar.gz", checked)
}

func TestRegistrationStepIsIdempotent(t *testing.T) {
	svc := memory.NewService()
	jc := trainingContext()
	trainCompleted(t, svc, NewTrainingStep(svc, fixedNames()), jc)

	artifact, err := NewArtifactStep(svc, nil).Resolve(context.Background(), jc.TrainingJobHandle)
	require.NoError(t, err)

	registration := NewRegistrationStep(svc)
	result, err := registration.Register(context.Background(), artifact.JobName(), artifact, "")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationCreated, result)

	result, err = registration.Register(context.Background(), artifact.JobName(), artifact, "")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationAlreadyExists, result)

	model, err := svc.DescribeModel(context.Background(), artifact.JobName())
	require.NoError(t, err)
	assert.Equal(t, testRole, model.ExecutionRole)
}

func TestInferenceStepUsesLatestCompletedJob(t *testing.T) {
	svc := memory.NewService()
	names := fixedNames()
	training := NewTrainingStep(svc, names)

	first := trainingContext()
	trainCompleted(t, svc, training, first)
	time.Sleep(time.Millisecond)
	second := trainingContext()
	trainCompleted(t, svc, training, second)

	jc := inferenceContext()
	require.NoError(t, newInference(svc, names).Run(context.Background(), jc, ""))

	assert.Equal(t, second.TrainingJobName, jc.TrainingJobName)
	assert.Equal(t, second.TrainingJobName, jc.RegisteredModelName)
	assert.Equal(t, "s3://ml-bucket/iris/infer/inference_output", jc.TransformOutputLocation)

	reqs := svc.TransformRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "application/jsonlines", reqs[0].ContentType)
	assert.Equal(t, 6, reqs[0].MaxPayloadMB)
	assert.Equal(t, second.TrainingJobName, reqs[0].ModelName)
	assert.Equal(t, "s3://ml-bucket/iris/infer", reqs[0].InputLocation)
}

func TestInferenceStepExplicitJob(t *testing.T) {
	svc := memory.NewService()
	names := fixedNames()
	training := NewTrainingStep(svc, names)

	pinned := trainingContext()
	trainCompleted(t, svc, training, pinned)
	time.Sleep(time.Millisecond)
	trainCompleted(t, svc, training, trainingContext())

	jc := inferenceContext()
	require.NoError(t, newInference(svc, names).Run(context.Background(), jc, pinned.TrainingJobName))
	assert.Equal(t, pinned.TrainingJobName, jc.RegisteredModelName)
}

func TestInferenceStepNoCompletedJob(t *testing.T) {
	svc := memory.NewService()
	training := NewTrainingStep(svc, fixedNames())
	require.NoError(t, training.Run(context.Background(), trainingContext()))

	jc := inferenceContext()
	err := newInference(svc, fixedNames()).Run(context.Background(), jc, "")
	assert.True(t, models.IsKind(err, models.KindNoCompletedJob))
	assert.Empty(t, svc.TransformRequests())
	assert.Empty(t, jc.RegisteredModelName)
}

func TestInferenceStepRegistrationFallback(t *testing.T) {
	svc := memory.NewService()
	names := fixedNames()
	trained := trainingContext()
	trainCompleted(t, svc, NewTrainingStep(svc, names), trained)

	inference := newInference(svc, names)
	require.NoError(t, inference.Run(context.Background(), inferenceContext(), ""))

	// the model now exists, so a failing registration falls back to it
	svc.FailNextModelCreation(errors.New("AccessDenied"))
	jc := inferenceContext()
	require.NoError(t, inference.Run(context.Background(), jc, ""))
	assert.Equal(t, trained.TrainingJobName, jc.RegisteredModelName)
	assert.Len(t, svc.TransformRequests(), 2)
}

func TestInferenceStepRegistrationFailure(t *testing.T) {
	svc := memory.NewService()
	names := fixedNames()
	trainCompleted(t, svc, NewTrainingStep(svc, names), trainingContext())

	svc.FailNextModelCreation(errors.New("AccessDenied"))
	jc := inferenceContext()
	err := newInference(svc, names).Run(context.Background(), jc, "")
	assert.True(t, models.IsKind(err, models.KindRegistration))
	assert.Empty(t, svc.TransformRequests())
	assert.Empty(t, jc.TransformJobName)
}
