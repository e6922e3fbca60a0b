package orchestrator

import "sagemaker-orchestrator/core/models"

// TrainingRequest starts a training pipeline
type TrainingRequest struct {
	ModelName         string                `json:"model_name" yaml:"model_name" validate:"required,model_name"`
	TrainingImage     string                `json:"training_image" yaml:"training_image" validate:"required"`
	RoleARN           string                `json:"role_arn" yaml:"role_arn" validate:"required"`
	TrainDataLocation string                `json:"train_data_uri" yaml:"train_data_uri" validate:"required,s3uri"`
	OutputLocation    string                `json:"output_uri,omitempty" yaml:"output_uri,omitempty" validate:"omitempty,s3uri"`
	Resources         models.ResourceConfig `json:"resource_config" yaml:"resource_config"`
	UseSpot           bool                  `json:"use_spot_instances" yaml:"use_spot_instances"`
	Hyperparameters   map[string]string     `json:"hyperparameters,omitempty" yaml:"hyperparameters,omitempty"`
}

func (r TrainingRequest) jobContext() models.JobContext {
	var params map[string]string
	if len(r.Hyperparameters) > 0 {
		params = make(map[string]string, len(r.Hyperparameters))
		for k, v := range r.Hyperparameters {
			params[k] = v
		}
	}
	return models.JobContext{
		ModelName:         r.ModelName,
		TrainingImage:     r.TrainingImage,
		RoleARN:           r.RoleARN,
		TrainDataLocation: r.TrainDataLocation,
		OutputLocation:    r.OutputLocation,
		ResourceConfig:    r.Resources,
		UseSpotCapacity:   r.UseSpot,
		Hyperparameters:   params,
	}
}

// InferenceRequest starts an inference pipeline. TrainingJobName pins the
// training job to serve; empty means the latest completed one.
type InferenceRequest struct {
	ModelName             string                `json:"model_name" yaml:"model_name" validate:"required,model_name"`
	InferenceDataLocation string                `json:"inference_data_uri" yaml:"inference_data_uri" validate:"required,s3uri"`
	TrainingJobName       string                `json:"training_job_name,omitempty" yaml:"training_job_name,omitempty"`
	RoleARN               string                `json:"role_arn,omitempty" yaml:"role_arn,omitempty"`
	Resources             models.ResourceConfig `json:"resource_config" yaml:"resource_config"`
}

func (r InferenceRequest) jobContext() models.JobContext {
	return models.JobContext{
		ModelName:             r.ModelName,
		RoleARN:               r.RoleARN,
		InferenceDataLocation: r.InferenceDataLocation,
		ResourceConfig:        r.Resources,
	}
}
