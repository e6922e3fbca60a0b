package spec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagemaker-orchestrator/core/models"
)

const trainingDoc = `
kind: training
training:
  model_name: iris
  training_image: 123456789012.dkr.ecr.us-east-1.amazonaws.com/xgb-iris:latest
  role_arn: arn:aws:iam::123456789012:role/sagemaker-exec
  train_data_uri: s3://ml-bucket/iris/train
  use_spot_instances: true
  resource_config:
    instance_type: ml.m5.large
    instance_count: 1
    volume_size: 10
  hyperparameters:
    max_depth: 5
    eta: 0.2
`

func TestParseTraining(t *testing.T) {
	spec, err := ParsePipelineSpec([]byte(trainingDoc), "")
	require.NoError(t, err)
	assert.Equal(t, models.PipelineTraining, spec.Kind)
	require.NotNil(t, spec.Training)
	assert.Nil(t, spec.Inference)

	req := spec.Training
	assert.Equal(t, "iris", req.ModelName)
	assert.Equal(t, "s3://ml-bucket/iris/train", req.TrainDataLocation)
	assert.True(t, req.UseSpot)
	assert.Equal(t, models.ResourceConfig{InstanceType: "ml.m5.large", InstanceCount: 1, VolumeSizeGB: 10}, req.Resources)
	assert.Equal(t, map[string]string{"max_depth": "5", "eta": "0.2"}, req.Hyperparameters)
}

func TestParseInference(t *testing.T) {
	doc := `
kind: inference
inference:
  model_name: iris
  inference_data_uri: s3://ml-bucket/iris/infer
  training_job_name: iris-2024-05-01-10-30-00-abcd1234
  resource_config:
    instance_type: ml.m5.large
    instance_count: 2
`
	spec, err := ParsePipelineSpec([]byte(doc), "")
	require.NoError(t, err)
	require.NotNil(t, spec.Inference)
	assert.Equal(t, "iris-2024-05-01-10-30-00-abcd1234", spec.Inference.TrainingJobName)
	assert.Equal(t, 2, spec.Inference.Resources.InstanceCount)
}

func TestParseHyperparametersFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hyperparameters.json"),
		[]byte(`{"max_depth": "3", "num_round": "50"}`), 0o644))
	doc := trainingDoc + "hyperparameters_file: hyperparameters.json\n"
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	spec, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"max_depth": "5", "eta": "0.2", "num_round": "50"}, spec.Training.Hyperparameters)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ""},
		{name: "bad yaml", doc: "kind: [training"},
		{name: "unknown kind", doc: "kind: tuning\n"},
		{name: "missing section", doc: "kind: training\n"},
		{name: "unknown field", doc: "kind: inference\ninference:\n  model_name: iris\n  budget: 10\n"},
		{name: "mixed sections", doc: "kind: inference\ninference:\n  model_name: iris\ntraining:\n  model_name: iris\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePipelineSpec([]byte(tt.doc), "")
			assert.True(t, models.IsKind(err, models.KindConfig), "got %v", err)
		})
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseRequest(t *testing.T) {
	spec, err := ParseRequest([]byte(trainingDoc))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"max_depth": "5", "eta": "0.2"}, spec.Training.Hyperparameters)

	for _, path := range []string{"/etc/passwd", "../secrets.json", "hyperparameters.json"} {
		t.Run(path, func(t *testing.T) {
			_, err := ParseRequest([]byte(trainingDoc + "hyperparameters_file: " + path + "\n"))
			require.Error(t, err)
			assert.True(t, models.IsKind(err, models.KindConfig), "got %v", err)
			assert.Contains(t, err.Error(), "hyperparameters_file")
		})
	}

	_, err = ParseRequest([]byte("kind: tuning\n"))
	assert.True(t, models.IsKind(err, models.KindConfig))
}
