// Package orchestrator drives the training and inference pipelines as
// persisted state machines.
//
// A training run moves Submitted -> Polling -> Resolving -> Registering ->
// Succeeded, or to Failed from any state. Waiting for the training job is an
// explicit suspend point: Advance performs a single poll and returns, so a run
// can be driven by the REST API, the CLI, the run monitor or the bounded
// backoff loop in RunTraining. An inference run goes Submitted -> Succeeded
// once its transform job has been submitted.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sagemaker-orchestrator/core/compute"
	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/core/monitoring"
	"sagemaker-orchestrator/core/optimizer"
	"sagemaker-orchestrator/core/repository"
	"sagemaker-orchestrator/core/steps"
)

// Step names reported in PipelineError
const (
	StepTrain     = "train"
	StepPoll      = "poll"
	StepResolve   = "resolve"
	StepRegister  = "register"
	StepDiscover  = "discover"
	StepTransform = "transform"
)

const (
	DefaultPollInterval    = 30 * time.Second
	DefaultMaxPollInterval = 2 * time.Minute
)

// CostEstimator bounds the cost of a training job before it is submitted
type CostEstimator interface {
	EstimateTraining(ctx context.Context, resources models.ResourceConfig, maxRuntime time.Duration, spot bool) (optimizer.CostEstimate, error)
}

// Orchestrator runs pipelines against a compute service and persists them in a RunStore
type Orchestrator struct {
	client       compute.Client
	store        repository.RunStore
	training     *steps.TrainingStep
	artifacts    *steps.ArtifactStep
	registration *steps.RegistrationStep
	inference    *steps.InferenceStep

	names           steps.NameGenerator
	verifier        steps.ArtifactVerifier
	estimator       CostEstimator
	maxWait         time.Duration
	pollInterval    time.Duration
	maxPollInterval time.Duration
	now             func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMaxWait bounds how long a training run may stay in Polling
func WithMaxWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.maxWait = d }
}

// WithPollInterval sets the initial interval of the RunTraining backoff
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// WithMaxPollInterval caps the RunTraining backoff
func WithMaxPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.maxPollInterval = d }
}

// WithClock sets the clock used for deadlines
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithNameGenerator sets how job names are generated
func WithNameGenerator(names steps.NameGenerator) Option {
	return func(o *Orchestrator) { o.names = names }
}

// WithArtifactVerifier checks model artifacts in object storage before registration
func WithArtifactVerifier(v steps.ArtifactVerifier) Option {
	return func(o *Orchestrator) { o.verifier = v }
}

// WithCostEstimator records a worst-case cost estimate with every training submission
func WithCostEstimator(e CostEstimator) Option {
	return func(o *Orchestrator) { o.estimator = e }
}

// New creates an orchestrator
func New(client compute.Client, store repository.RunStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:          client,
		store:           store,
		names:           steps.NewNameGenerator(),
		maxWait:         steps.DefaultMaxWait,
		pollInterval:    DefaultPollInterval,
		maxPollInterval: DefaultMaxPollInterval,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	// the backoff needs positive intervals
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}
	if o.maxPollInterval < o.pollInterval {
		o.maxPollInterval = o.pollInterval
	}

	o.training = steps.NewTrainingStep(client, o.names)
	o.artifacts = steps.NewArtifactStep(client, o.verifier)
	o.registration = steps.NewRegistrationStep(client)
	o.inference = steps.NewInferenceStep(client, o.names, o.artifacts, o.registration)
	return o
}

// StartTraining validates req, submits the training job and persists the run in
// Polling. A rejected submission leaves the run Failed and returns its PipelineError.
func (o *Orchestrator) StartTraining(ctx context.Context, req TrainingRequest) (*models.PipelineRun, error) {
	jc := req.jobContext()
	if err := o.training.Validate(&jc); err != nil {
		return nil, err
	}

	run := &models.PipelineRun{
		Kind:    models.PipelineTraining,
		State:   models.StateSubmitted,
		Context: jc,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	logger := zap.S().Named("orchestrator")
	logger.Infof("Run %s: starting training pipeline for %s", run.ID, jc.ModelName)

	estimate := o.estimate(ctx, jc)

	if err := o.training.Run(ctx, &run.Context); err != nil {
		return o.fail(ctx, run, models.StateSubmitted, StepTrain, err)
	}

	deadline := o.now().Add(o.maxWait)
	run.Deadline = &deadline
	run.State = models.StatePolling
	meta := map[string]interface{}{
		"training_job_name":   run.Context.TrainingJobName,
		"training_job_handle": run.Context.TrainingJobHandle,
	}
	if estimate != nil {
		meta["max_cost_usd"] = estimate.MaxCostUSD
	}
	if err := o.store.UpdateRun(ctx, run, models.StateSubmitted, "training_job_submitted", meta); err != nil {
		return nil, fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}

	logger.Infof("Run %s: training job %s submitted, polling until %s", run.ID, run.Context.TrainingJobName, deadline.Format(time.RFC3339))
	return run, nil
}

// Advance performs one poll of a training run and carries it as far as the job
// status allows. Final runs are returned unchanged. A run that fails during
// this call is returned together with its PipelineError.
func (o *Orchestrator) Advance(ctx context.Context, runID string) (*models.PipelineRun, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.State.IsFinal() {
		return run, run.Failure.AsError()
	}
	if run.Kind != models.PipelineTraining {
		return run, nil
	}

	switch run.State {
	case models.StatePolling:
		return o.poll(ctx, run)
	case models.StateResolving, models.StateRegistering:
		return o.resolveAndRegister(ctx, run)
	}
	// Submitted belongs to the StartTraining call still in flight
	return run, nil
}

// RunTraining starts a training run and advances it with exponential backoff
// until it is final, the run deadline passes or ctx is done.
func (o *Orchestrator) RunTraining(ctx context.Context, req TrainingRequest) (*models.PipelineRun, error) {
	run, err := o.StartTraining(ctx, req)
	if err != nil {
		return run, err
	}
	return o.Wait(ctx, run.ID)
}

// EstimateTrainingCost validates req and bounds what its training job may cost
func (o *Orchestrator) EstimateTrainingCost(ctx context.Context, req TrainingRequest) (optimizer.CostEstimate, error) {
	if o.estimator == nil {
		return optimizer.CostEstimate{}, models.NewConfigError("cost estimation is not configured", nil)
	}
	jc := req.jobContext()
	if err := o.training.Validate(&jc); err != nil {
		return optimizer.CostEstimate{}, err
	}
	return o.estimator.EstimateTraining(ctx, jc.ResourceConfig, o.training.MaxRuntime, jc.UseSpotCapacity)
}

// GetRun returns a stored run
func (o *Orchestrator) GetRun(ctx context.Context, runID string) (*models.PipelineRun, error) {
	return o.store.GetRun(ctx, runID)
}

// ListRuns returns stored runs matching filter
func (o *Orchestrator) ListRuns(ctx context.Context, filter repository.RunFilter) ([]*models.PipelineRun, error) {
	return o.store.ListRuns(ctx, filter)
}

// PendingRuns returns the training runs Advance can still make progress on
func (o *Orchestrator) PendingRuns(ctx context.Context) ([]*models.PipelineRun, error) {
	var pending []*models.PipelineRun
	for _, state := range []models.PipelineState{models.StatePolling, models.StateResolving, models.StateRegistering} {
		runs, err := o.store.ListRuns(ctx, repository.RunFilter{Kind: models.PipelineTraining, State: state})
		if err != nil {
			return nil, err
		}
		pending = append(pending, runs...)
	}
	return pending, nil
}

// RunEvents returns the state transitions of a run
func (o *Orchestrator) RunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error) {
	if _, err := o.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return o.store.GetRunEvents(ctx, runID, limit)
}

// RunArtifacts returns what a run produced
func (o *Orchestrator) RunArtifacts(ctx context.Context, runID string, artifactType *models.ArtifactType) ([]models.RunArtifact, error) {
	if _, err := o.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return o.store.GetRunArtifacts(ctx, runID, artifactType)
}

// DescribeTransform reports the state of a transform job by name or handle
func (o *Orchestrator) DescribeTransform(ctx context.Context, name string) (models.TransformJob, error) {
	return o.client.DescribeTransformJob(ctx, name)
}

// estimate is best effort; a missing price never blocks a submission
func (o *Orchestrator) estimate(ctx context.Context, jc models.JobContext) *optimizer.CostEstimate {
	if o.estimator == nil {
		return nil
	}
	est, err := o.estimator.EstimateTraining(ctx, jc.ResourceConfig, o.training.MaxRuntime, jc.UseSpotCapacity)
	if err != nil {
		zap.S().Named("orchestrator").Warnf("No cost estimate for %s: %v", jc.ModelName, err)
		return nil
	}
	zap.S().Named("orchestrator").Infof("Training %s on %d x %s costs at most $%.2f",
		jc.ModelName, est.InstanceCount, est.InstanceType, est.MaxCostUSD)
	return &est
}

func (o *Orchestrator) poll(ctx context.Context, run *models.PipelineRun) (*models.PipelineRun, error) {
	logger := zap.S().Named("orchestrator")

	job, err := o.client.DescribeJob(ctx, run.Context.TrainingJobHandle)
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			return o.fail(ctx, run, models.StatePolling, StepPoll, err)
		}
		if o.pastDeadline(run) {
			logger.Warnf("Run %s: describe failed past the deadline: %v", run.ID, err)
			return o.fail(ctx, run, models.StatePolling, StepPoll,
				models.NewTimeoutError(run.Context.TrainingJobName, o.maxWait))
		}
		return run, fmt.Errorf("failed to describe training job %s: %w", run.Context.TrainingJobName, err)
	}
	monitoring.IncreaseJobPollsMetric(string(job.Status))

	switch job.Status {
	case models.JobStatusCompleted:
		run.State = models.StateResolving
		if err := o.store.UpdateRun(ctx, run, models.StatePolling, "training_job_completed", nil); err != nil {
			return o.conflict(ctx, run, err)
		}
		return o.resolveAndRegister(ctx, run)
	case models.JobStatusFailed, models.JobStatusStopped:
		return o.fail(ctx, run, models.StatePolling, StepPoll,
			models.NewJobFailedError(job.Name, job.Status, job.FailureReason))
	}

	if o.pastDeadline(run) {
		return o.fail(ctx, run, models.StatePolling, StepPoll,
			models.NewTimeoutError(run.Context.TrainingJobName, o.maxWait))
	}

	logger.Debugf("Run %s: training job %s is %s", run.ID, job.Name, job.Status)
	return run, nil
}

func (o *Orchestrator) pastDeadline(run *models.PipelineRun) bool {
	return run.Deadline != nil && o.now().After(*run.Deadline)
}

func (o *Orchestrator) resolveAndRegister(ctx context.Context, run *models.PipelineRun) (*models.PipelineRun, error) {
	from := run.State

	artifact, err := o.artifacts.Resolve(ctx, run.Context.TrainingJobHandle)
	if err != nil {
		return o.fail(ctx, run, from, StepResolve, err)
	}

	if from == models.StateResolving {
		if err := run.Context.SetArtifact(artifact); err != nil {
			return o.fail(ctx, run, from, StepResolve, err)
		}
		run.State = models.StateRegistering
		meta := map[string]interface{}{"model_artifact_uri": artifact.ArtifactURI()}
		if err := o.store.UpdateRun(ctx, run, from, "artifact_resolved", meta); err != nil {
			return o.conflict(ctx, run, err)
		}
		if err := o.store.CreateArtifact(ctx, run.ID, models.ArtifactTypeModel, artifact.ArtifactURI(),
			map[string]interface{}{"image": artifact.Image()}); err != nil {
			return run, fmt.Errorf("failed to record artifact of run %s: %w", run.ID, err)
		}
		from = models.StateRegistering
	}

	name := run.Context.TrainingJobName
	result, err := o.registration.Register(ctx, name, artifact, run.Context.RoleARN)
	if err != nil {
		return o.fail(ctx, run, from, StepRegister, err)
	}
	if err := run.Context.SetRegisteredModel(name); err != nil {
		return o.fail(ctx, run, from, StepRegister, err)
	}

	run.State = models.StateSucceeded
	if err := o.store.UpdateRun(ctx, run, from, "model_registered", map[string]interface{}{"result": string(result)}); err != nil {
		return o.conflict(ctx, run, err)
	}
	if err := o.store.CreateArtifact(ctx, run.ID, models.ArtifactTypeRegisteredModel, name,
		map[string]interface{}{"result": string(result)}); err != nil {
		return run, fmt.Errorf("failed to record registered model of run %s: %w", run.ID, err)
	}

	monitoring.IncreasePipelineRunsMetric(string(run.Kind), string(run.State))
	zap.S().Named("orchestrator").Infof("Run %s: model %s registered (%s)", run.ID, name, result)
	return run, nil
}

// fail moves run to Failed and returns the PipelineError describing why
func (o *Orchestrator) fail(ctx context.Context, run *models.PipelineRun, from models.PipelineState, step string, cause error) (*models.PipelineRun, error) {
	perr := models.NewPipelineError(step, cause)
	run.State = models.StateFailed
	run.Failure = perr

	meta := map[string]interface{}{"step": step, "kind": string(perr.Kind)}
	if err := o.store.UpdateRun(ctx, run, from, "step_failed", meta); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return o.conflict(ctx, run, err)
		}
		return run, fmt.Errorf("failed to record failure of run %s (%v): %w", run.ID, perr, err)
	}

	monitoring.IncreasePipelineRunsMetric(string(run.Kind), string(run.State))
	zap.S().Named("orchestrator").Errorf("Run %s: %v", run.ID, perr)
	return run, perr
}

// conflict handles a concurrent Advance of the same run: the other caller won,
// so report the run as it is now stored
func (o *Orchestrator) conflict(ctx context.Context, run *models.PipelineRun, err error) (*models.PipelineRun, error) {
	if !errors.Is(err, repository.ErrStateConflict) {
		return run, fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	zap.S().Named("orchestrator").Infof("Run %s advanced concurrently, reloading", run.ID)
	current, gerr := o.store.GetRun(ctx, run.ID)
	if gerr != nil {
		return run, gerr
	}
	return current, current.Failure.AsError()
}
