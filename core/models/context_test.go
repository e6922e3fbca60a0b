package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedJob() Job {
	return Job{
		Name:             "iris-2024-05-01-10-00-00-abcd1234",
		Handle:           "arn:aws:sagemaker:local:000000000000:training-job/iris-2024-05-01-10-00-00-abcd1234",
		Status:           JobStatusCompleted,
		TrainingImageURI: "123.dkr.ecr.us-east-1.amazonaws.com/xgb:latest",
		ModelArtifactURI: "s3://bucket/training_output/model.tar.gz",
		RoleARN:          "arn:aws:iam::123:role/job",
	}
}

func TestNewResolvedArtifact(t *testing.T) {
	artifact, err := NewResolvedArtifact(completedJob())
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/training_output/model.tar.gz", artifact.ArtifactURI())
	assert.Equal(t, "arn:aws:iam::123:role/job", artifact.RoleARN())

	running := completedJob()
	running.Status = JobStatusInProgress
	_, err = NewResolvedArtifact(running)
	assert.True(t, IsKind(err, KindIncompleteJob))

	noArtifact := completedJob()
	noArtifact.ModelArtifactURI = ""
	_, err = NewResolvedArtifact(noArtifact)
	assert.True(t, IsKind(err, KindIncompleteJob))
}

func TestJobContextIsAppendOnly(t *testing.T) {
	jc := &JobContext{ModelName: "iris"}

	require.NoError(t, jc.SetTrainingJob("job-a", "handle-a"))
	require.NoError(t, jc.SetTrainingJob("job-a", "handle-a"))

	err := jc.SetTrainingJob("job-b", "handle-b")
	assert.True(t, errors.Is(err, ErrContextFieldSet))
	assert.Equal(t, "job-a", jc.TrainingJobName)
}

func TestJobContextOrdering(t *testing.T) {
	jc := &JobContext{ModelName: "iris"}

	assert.Error(t, jc.SetRegisteredModel("iris"))
	assert.Error(t, jc.SetTransformJob("t", "h", "s3://out"))

	artifact, err := NewResolvedArtifact(completedJob())
	require.NoError(t, err)
	require.NoError(t, jc.SetArtifact(artifact))
	assert.Equal(t, completedJob().Handle, jc.TrainingJobHandle)
	assert.Equal(t, completedJob().TrainingImageURI, jc.TrainingImage)
	assert.Equal(t, completedJob().RoleARN, jc.RoleARN)

	require.NoError(t, jc.SetRegisteredModel(artifact.JobName()))
	require.NoError(t, jc.SetTransformJob("t", "h", "s3://bucket/in/inference_output"))
	assert.Equal(t, "s3://bucket/in/inference_output", jc.TransformOutputLocation)
}

func TestSetArtifactKeepsExplicitRole(t *testing.T) {
	jc := &JobContext{ModelName: "iris", RoleARN: "arn:aws:iam::123:role/override"}
	artifact, err := NewResolvedArtifact(completedJob())
	require.NoError(t, err)

	require.NoError(t, jc.SetArtifact(artifact))
	assert.Equal(t, "arn:aws:iam::123:role/override", jc.RoleARN)
}

func TestSetArtifactRejectsOtherJob(t *testing.T) {
	jc := &JobContext{ModelName: "iris"}
	require.NoError(t, jc.SetTrainingJob("iris-other", "arn:other"))

	artifact, err := NewResolvedArtifact(completedJob())
	require.NoError(t, err)
	assert.ErrorIs(t, jc.SetArtifact(artifact), ErrContextFieldSet)
	assert.Empty(t, jc.ModelArtifactURI)
}
