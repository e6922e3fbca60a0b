package orchestrator

import (
	"context"
	"errors"

	"github.com/sethvargo/go-retry"

	"sagemaker-orchestrator/core/models"
)

var errStillRunning = errors.New("training job still running")

// Wait advances a training run with capped exponential backoff until it is
// final. The run's own deadline ends the wait with a TimeoutError; ctx ends it early.
func (o *Orchestrator) Wait(ctx context.Context, runID string) (*models.PipelineRun, error) {
	backoff := retry.WithCappedDuration(o.maxPollInterval, retry.NewExponential(o.pollInterval))

	var run *models.PipelineRun
	var advanceErr error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		current, err := o.Advance(ctx, runID)
		if current != nil {
			run = current
		}
		advanceErr = err
		if current != nil && current.State.IsFinal() {
			return nil
		}
		if err != nil {
			if models.IsKind(err, models.KindNotFound) {
				return err
			}
			// describe or store hiccup; the next poll may succeed
			return retry.RetryableError(err)
		}
		return retry.RetryableError(errStillRunning)
	})
	if err != nil {
		return run, err
	}
	return run, advanceErr
}
