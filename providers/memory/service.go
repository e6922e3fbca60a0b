// Package memory is an in-process compute service. It follows the SageMaker job
// lifecycle closely enough to drive the orchestrator locally and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sagemaker-orchestrator/core/compute"
	"sagemaker-orchestrator/core/models"
)

const arnPrefix = "arn:aws:sagemaker:local:000000000000:"

type trainingJob struct {
	job    models.Job
	req    models.TrainingJobRequest
	polls  int
	result models.JobStatus
}

type transformJob struct {
	job   models.TransformJob
	req   models.TransformJobRequest
	polls int
}

// Service simulates the compute service. Jobs report InProgress on the first
// describe and reach their terminal status once they have been observed
// CompleteAfter times.
type Service struct {
	mu            sync.Mutex
	now           func() time.Time
	completeAfter int

	trainingJobs  map[string]*trainingJob
	transformJobs map[string]*transformJob
	models        map[string]models.RegisteredModel

	trainingOrder  []string
	transformOrder []string

	submitErr      error
	createModelErr error
}

// Option configures a Service
type Option func(*Service)

// WithClock sets the clock used for creation times
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCompleteAfter sets how many InProgress observations a job reports before
// its terminal status. A negative value keeps jobs running forever.
func WithCompleteAfter(n int) Option {
	return func(s *Service) { s.completeAfter = n }
}

// NewService creates an empty simulated compute service
func NewService(opts ...Option) *Service {
	s := &Service{
		now:           time.Now,
		completeAfter: 1,
		trainingJobs:  make(map[string]*trainingJob),
		transformJobs: make(map[string]*transformJob),
		models:        make(map[string]models.RegisteredModel),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ compute.Client = (*Service)(nil)

// SubmitTrainingJob creates a job in status Submitted
func (s *Service) SubmitTrainingJob(_ context.Context, req models.TrainingJobRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeSubmitErr(); err != nil {
		return "", models.NewSubmissionError(fmt.Sprintf("training job %s rejected", req.Name), err)
	}
	if err := validateTraining(req); err != nil {
		return "", models.NewSubmissionError(fmt.Sprintf("training job %s rejected", req.Name), err)
	}
	if _, ok := s.trainingJobs[req.Name]; ok {
		return "", models.NewSubmissionError(fmt.Sprintf("training job %s rejected", req.Name),
			fmt.Errorf("job name %s is already in use", req.Name))
	}

	handle := arnPrefix + "training-job/" + req.Name
	s.trainingJobs[req.Name] = &trainingJob{
		job: models.Job{
			Name:         req.Name,
			Handle:       handle,
			Status:       models.JobStatusSubmitted,
			CreationTime: s.now(),
			RoleARN:      req.RoleARN,
		},
		req:    req,
		result: models.JobStatusCompleted,
	}
	s.trainingOrder = append(s.trainingOrder, req.Name)
	return handle, nil
}

// DescribeJob advances the simulated job by one observation and returns it
func (s *Service) DescribeJob(_ context.Context, handle string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tj, ok := s.trainingJobs[compute.JobNameFromHandle(handle)]
	if !ok {
		return models.Job{}, models.NewNotFoundError("training job "+handle, nil)
	}
	if !tj.job.Status.IsTerminal() {
		tj.polls++
		if s.completeAfter >= 0 && tj.polls > max(s.completeAfter, 1) {
			s.finish(tj, tj.result, "")
		} else {
			tj.job.Status = models.JobStatusInProgress
		}
	}
	return tj.job, nil
}

// ListCompletedTrainingJobs returns completed jobs matching namePrefix, newest first
func (s *Service) ListCompletedTrainingJobs(_ context.Context, namePrefix string, limit int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := []models.Job{}
	for _, name := range s.trainingOrder {
		tj := s.trainingJobs[name]
		if tj.job.Status == models.JobStatusCompleted && strings.Contains(name, namePrefix) {
			jobs = append(jobs, tj.job)
		}
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreationTime.After(jobs[j].CreationTime)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// CreateModel registers a model, reporting AlreadyExists for a known name
func (s *Service) CreateModel(_ context.Context, model models.RegisteredModel) (models.RegistrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createModelErr != nil {
		err := s.createModelErr
		s.createModelErr = nil
		return "", models.NewRegistrationError(model.Name, err)
	}
	if _, ok := s.models[model.Name]; ok {
		return models.RegistrationAlreadyExists, nil
	}
	if model.Image == "" || model.ArtifactURI == "" {
		return "", models.NewRegistrationError(model.Name, fmt.Errorf("image and artifact are required"))
	}
	s.models[model.Name] = model
	return models.RegistrationCreated, nil
}

// DescribeModel returns a registered model
func (s *Service) DescribeModel(_ context.Context, name string) (models.RegisteredModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.models[name]
	if !ok {
		return models.RegisteredModel{}, models.NewNotFoundError("model "+name, nil)
	}
	return m, nil
}

// SubmitTransformJob creates a transform job against a registered model
func (s *Service) SubmitTransformJob(_ context.Context, req models.TransformJobRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reject := func(err error) (string, error) {
		return "", models.NewSubmissionError(fmt.Sprintf("transform job %s rejected", req.Name), err)
	}
	if err := s.takeSubmitErr(); err != nil {
		return reject(err)
	}
	if err := req.Resources.Validate(false); err != nil {
		return reject(err)
	}
	if _, ok := s.models[req.ModelName]; !ok {
		return reject(fmt.Errorf("could not find model %s", req.ModelName))
	}
	if _, ok := s.transformJobs[req.Name]; ok {
		return reject(fmt.Errorf("job name %s is already in use", req.Name))
	}

	handle := arnPrefix + "transform-job/" + req.Name
	s.transformJobs[req.Name] = &transformJob{
		job: models.TransformJob{
			Name:           req.Name,
			Handle:         handle,
			ModelName:      req.ModelName,
			InputLocation:  req.InputLocation,
			OutputLocation: req.OutputLocation,
			Status:         models.JobStatusSubmitted,
			CreationTime:   s.now(),
		},
		req: req,
	}
	s.transformOrder = append(s.transformOrder, req.Name)
	return handle, nil
}

// DescribeTransformJob advances the simulated transform job by one observation
func (s *Service) DescribeTransformJob(_ context.Context, handle string) (models.TransformJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tj, ok := s.transformJobs[compute.JobNameFromHandle(handle)]
	if !ok {
		return models.TransformJob{}, models.NewNotFoundError("transform job "+handle, nil)
	}
	if !tj.job.Status.IsTerminal() {
		tj.polls++
		if s.completeAfter >= 0 && tj.polls > max(s.completeAfter, 1) {
			tj.job.Status = models.JobStatusCompleted
		} else {
			tj.job.Status = models.JobStatusInProgress
		}
	}
	return tj.job, nil
}

// SetJobStatus forces a training job into status. Terminal statuses take
// effect immediately; Completed fills in the artifact fields.
func (s *Service) SetJobStatus(name string, status models.JobStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tj, ok := s.trainingJobs[name]
	if !ok {
		return models.NewNotFoundError("training job "+name, nil)
	}
	if status.IsTerminal() {
		s.finish(tj, status, reason)
		return nil
	}
	tj.job.Status = status
	return nil
}

// SetJobOutcome sets the terminal status a training job reaches when it completes
func (s *Service) SetJobOutcome(name string, status models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tj, ok := s.trainingJobs[name]
	if !ok {
		return models.NewNotFoundError("training job "+name, nil)
	}
	tj.result = status
	return nil
}

// FailNextSubmission makes the next training or transform submission fail with err
func (s *Service) FailNextSubmission(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitErr = err
}

// FailNextModelCreation makes the next CreateModel call fail with err
func (s *Service) FailNextModelCreation(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createModelErr = err
}

// TrainingRequests returns the accepted training submissions in order
func (s *Service) TrainingRequests() []models.TrainingJobRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqs := make([]models.TrainingJobRequest, 0, len(s.trainingOrder))
	for _, name := range s.trainingOrder {
		reqs = append(reqs, s.trainingJobs[name].req)
	}
	return reqs
}

// TransformRequests returns the accepted transform submissions in order
func (s *Service) TransformRequests() []models.TransformJobRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqs := make([]models.TransformJobRequest, 0, len(s.transformOrder))
	for _, name := range s.transformOrder {
		reqs = append(reqs, s.transformJobs[name].req)
	}
	return reqs
}

func (s *Service) finish(tj *trainingJob, status models.JobStatus, reason string) {
	tj.job.Status = status
	tj.job.FailureReason = reason
	if status == models.JobStatusCompleted {
		tj.job.TrainingImageURI = tj.req.Image
		tj.job.ModelArtifactURI = strings.TrimSuffix(tj.req.OutputLocation, "/") + "/model.tar.gz"
	}
}

func (s *Service) takeSubmitErr() error {
	err := s.submitErr
	s.submitErr = nil
	return err
}

func validateTraining(req models.TrainingJobRequest) error {
	if req.Image == "" {
		return fmt.Errorf("training image is required")
	}
	if req.RoleARN == "" {
		return fmt.Errorf("role arn is required")
	}
	if len(req.InputChannels) == 0 {
		return fmt.Errorf("at least one input channel is required")
	}
	return req.Resources.Validate(true)
}
