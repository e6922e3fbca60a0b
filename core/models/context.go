package models

import (
	"errors"
	"fmt"
)

// ErrContextFieldSet is returned when a step tries to overwrite a JobContext field
var ErrContextFieldSet = errors.New("job context field already set")

// JobContext accumulates the output of each pipeline step. Fields are only ever
// added: once set, a field keeps its value for the rest of the run.
type JobContext struct {
	ModelName             string            `json:"model_name"`
	TrainingImage         string            `json:"training_image,omitempty"`
	RoleARN               string            `json:"role_arn,omitempty"`
	TrainDataLocation     string            `json:"train_data_location,omitempty"`
	InferenceDataLocation string            `json:"inference_data_location,omitempty"`
	OutputLocation        string            `json:"output_location,omitempty"`
	ResourceConfig        ResourceConfig    `json:"resource_config"`
	UseSpotCapacity       bool              `json:"use_spot_capacity"`
	Hyperparameters       map[string]string `json:"hyperparameters,omitempty"`

	TrainingJobName         string `json:"training_job_name,omitempty"`
	TrainingJobHandle       string `json:"training_job_handle,omitempty"`
	ModelArtifactURI        string `json:"model_artifact_uri,omitempty"`
	RegisteredModelName     string `json:"registered_model_name,omitempty"`
	TransformJobName        string `json:"transform_job_name,omitempty"`
	TransformJobHandle      string `json:"transform_job_handle,omitempty"`
	TransformOutputLocation string `json:"transform_output_location,omitempty"`
}

func setOnce(field *string, name, value string) error {
	if *field != "" && *field != value {
		return fmt.Errorf("%w: %s=%q", ErrContextFieldSet, name, *field)
	}
	*field = value
	return nil
}

// SetTrainingJob records the submitted training job
func (c *JobContext) SetTrainingJob(name, handle string) error {
	if err := setOnce(&c.TrainingJobName, "training_job_name", name); err != nil {
		return err
	}
	return setOnce(&c.TrainingJobHandle, "training_job_handle", handle)
}

// SetArtifact records the resolved training output. The training job must be known.
func (c *JobContext) SetArtifact(artifact ResolvedArtifact) error {
	if artifact.JobHandle() == "" && c.TrainingJobHandle == "" {
		return fmt.Errorf("artifact resolved before a training job was recorded")
	}
	if err := c.SetTrainingJob(artifact.JobName(), firstNonEmpty(c.TrainingJobHandle, artifact.JobHandle())); err != nil {
		return err
	}
	if err := setOnce(&c.TrainingImage, "training_image", artifact.Image()); err != nil {
		return err
	}
	// an explicit role on the context wins over the one the job ran with
	if c.RoleARN == "" {
		c.RoleARN = artifact.RoleARN()
	}
	return setOnce(&c.ModelArtifactURI, "model_artifact_uri", artifact.ArtifactURI())
}

// SetRegisteredModel records the name a model was registered under
func (c *JobContext) SetRegisteredModel(name string) error {
	if c.ModelArtifactURI == "" {
		return fmt.Errorf("model registered before its artifact was resolved")
	}
	return setOnce(&c.RegisteredModelName, "registered_model_name", name)
}

// SetTransformJob records the submitted transform job. A registered model must exist.
func (c *JobContext) SetTransformJob(name, handle, output string) error {
	if c.RegisteredModelName == "" {
		return fmt.Errorf("transform job submitted without a registered model")
	}
	if err := setOnce(&c.TransformJobName, "transform_job_name", name); err != nil {
		return err
	}
	if err := setOnce(&c.TransformJobHandle, "transform_job_handle", handle); err != nil {
		return err
	}
	return setOnce(&c.TransformOutputLocation, "transform_output_location", output)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
