package models

import (
	"fmt"
	"time"
)

// JobStatus represents the status of a job on the compute service
type JobStatus string

const (
	JobStatusSubmitted  JobStatus = "Submitted"
	JobStatusInProgress JobStatus = "InProgress"
	JobStatusCompleted  JobStatus = "Completed"
	JobStatusFailed     JobStatus = "Failed"
	JobStatusStopped    JobStatus = "Stopped"
)

// IsTerminal reports whether no further transition can occur from the status
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusStopped:
		return true
	}
	return false
}

// Job represents a training job as reported by the compute service
type Job struct {
	Name             string
	Handle           string // ARN assigned on submission
	Status           JobStatus
	CreationTime     time.Time
	TrainingImageURI string // set once Completed
	ModelArtifactURI string // set once Completed
	RoleARN          string
	FailureReason    string
}

// ResourceConfig sizes the instances a job runs on
type ResourceConfig struct {
	InstanceType  string `json:"instance_type" yaml:"instance_type" validate:"required"`
	InstanceCount int    `json:"instance_count" yaml:"instance_count" validate:"min=1"`
	VolumeSizeGB  int    `json:"volume_size,omitempty" yaml:"volume_size,omitempty" validate:"min=0"`
}

// Validate checks resource sizing. Volume size is only required for training.
func (r ResourceConfig) Validate(requireVolume bool) error {
	if r.InstanceType == "" {
		return NewConfigError("resource_config.instance_type is required", nil)
	}
	if r.InstanceCount < 1 {
		return NewConfigError(fmt.Sprintf("resource_config.instance_count must be >= 1, got %d", r.InstanceCount), nil)
	}
	if requireVolume && r.VolumeSizeGB < 1 {
		return NewConfigError(fmt.Sprintf("resource_config.volume_size must be >= 1, got %d", r.VolumeSizeGB), nil)
	}
	return nil
}

// TrainingJobRequest is everything the compute service needs to start a training job
type TrainingJobRequest struct {
	Name            string
	Image           string
	RoleARN         string
	InputChannels   []InputChannel
	OutputLocation  string
	Resources       ResourceConfig
	UseSpot         bool
	Hyperparameters map[string]string
	MaxRuntime      time.Duration
	MaxWait         time.Duration
}

// InputChannel is a named S3 prefix mounted into the training container
type InputChannel struct {
	Name string
	URI  string
}

// TransformJobRequest is everything the compute service needs to start a batch transform
type TransformJobRequest struct {
	Name           string
	ModelName      string
	InputLocation  string
	OutputLocation string
	Resources      ResourceConfig
	ContentType    string
	MaxPayloadMB   int
}

// TransformJob represents a batch-inference job
type TransformJob struct {
	Name           string
	Handle         string
	ModelName      string
	InputLocation  string
	OutputLocation string
	Status         JobStatus
	CreationTime   time.Time
	FailureReason  string
}

// RegisteredModel binds an image and artifact under a unique name
type RegisteredModel struct {
	Name          string
	Image         string
	ArtifactURI   string
	ExecutionRole string
}

// RegistrationResult tells a fresh registration apart from an idempotent one
type RegistrationResult string

const (
	RegistrationCreated       RegistrationResult = "Created"
	RegistrationAlreadyExists RegistrationResult = "AlreadyExists"
)

// ResolvedArtifact is the output of a completed training job. It can only be
// built from a Completed job, so holding one means registration may proceed.
type ResolvedArtifact struct {
	jobName     string
	jobHandle   string
	image       string
	artifactURI string
	roleARN     string
}

// NewResolvedArtifact extracts the artifact fields from a completed job
func NewResolvedArtifact(job Job) (ResolvedArtifact, error) {
	if job.Status != JobStatusCompleted {
		return ResolvedArtifact{}, NewIncompleteJobError(job.Name, job.Status)
	}
	if job.TrainingImageURI == "" || job.ModelArtifactURI == "" {
		return ResolvedArtifact{}, NewIncompleteJobError(job.Name, job.Status)
	}
	return ResolvedArtifact{
		jobName:     job.Name,
		jobHandle:   job.Handle,
		image:       job.TrainingImageURI,
		artifactURI: job.ModelArtifactURI,
		roleARN:     job.RoleARN,
	}, nil
}

func (a ResolvedArtifact) JobName() string     { return a.jobName }
func (a ResolvedArtifact) JobHandle() string   { return a.jobHandle }
func (a ResolvedArtifact) Image() string       { return a.image }
func (a ResolvedArtifact) ArtifactURI() string { return a.artifactURI }
func (a ResolvedArtifact) RoleARN() string     { return a.roleARN }
