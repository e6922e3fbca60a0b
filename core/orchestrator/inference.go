package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/core/monitoring"
)

// RunInference runs the inference pipeline: find the training job, register
// its model and submit a batch transform job. It does not wait for the transform.
func (o *Orchestrator) RunInference(ctx context.Context, req InferenceRequest) (*models.PipelineRun, error) {
	jc := req.jobContext()
	if err := o.inference.Validate(&jc); err != nil {
		return nil, err
	}

	run := &models.PipelineRun{
		Kind:    models.PipelineInference,
		State:   models.StateSubmitted,
		Context: jc,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	logger := zap.S().Named("orchestrator")
	logger.Infof("Run %s: starting inference pipeline for %s", run.ID, jc.ModelName)

	if err := o.inference.Run(ctx, &run.Context, req.TrainingJobName); err != nil {
		return o.fail(ctx, run, models.StateSubmitted, inferenceStepOf(err), err)
	}

	run.State = models.StateSucceeded
	meta := map[string]interface{}{
		"transform_job_name":   run.Context.TransformJobName,
		"transform_job_handle": run.Context.TransformJobHandle,
	}
	if err := o.store.UpdateRun(ctx, run, models.StateSubmitted, "transform_job_submitted", meta); err != nil {
		return run, fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}

	artifacts := []struct {
		typ models.ArtifactType
		uri string
	}{
		{models.ArtifactTypeModel, run.Context.ModelArtifactURI},
		{models.ArtifactTypeRegisteredModel, run.Context.RegisteredModelName},
		{models.ArtifactTypeTransformOutput, run.Context.TransformOutputLocation},
	}
	for _, a := range artifacts {
		if err := o.store.CreateArtifact(ctx, run.ID, a.typ, a.uri, nil); err != nil {
			return run, fmt.Errorf("failed to record %s of run %s: %w", a.typ, run.ID, err)
		}
	}

	monitoring.IncreasePipelineRunsMetric(string(run.Kind), string(run.State))
	logger.Infof("Run %s: transform job %s submitted, output at %s",
		run.ID, run.Context.TransformJobName, run.Context.TransformOutputLocation)
	return run, nil
}

func inferenceStepOf(err error) string {
	switch models.KindOf(err) {
	case models.KindNoCompletedJob:
		return StepDiscover
	case models.KindIncompleteJob, models.KindNotFound:
		return StepResolve
	case models.KindRegistration:
		return StepRegister
	}
	return StepTransform
}
