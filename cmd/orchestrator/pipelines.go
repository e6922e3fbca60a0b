package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/core/orchestrator"
	"sagemaker-orchestrator/core/repository"
	"sagemaker-orchestrator/core/spec"
	"sagemaker-orchestrator/training/hyperparams"
)

var (
	specFile        string
	wait            bool
	trainingReq     orchestrator.TrainingRequest
	inferenceReq    orchestrator.InferenceRequest
	hyperparamsFile string
	listKind        string
	listState       string
	listLimit       int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Submit a training job and start its pipeline run",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := trainingRequest()
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var run *models.PipelineRun
			if wait {
				run, err = a.orch.RunTraining(ctx, req)
			} else {
				run, err = a.orch.StartTraining(ctx, req)
			}
			return report(run, err)
		})
	},
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the worst-case cost of a training job without submitting it",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := trainingRequest()
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			est, err := a.orch.EstimateTrainingCost(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(est)
		})
	},
}

var advanceCmd = &cobra.Command{
	Use:   "advance RUN_ID",
	Short: "Poll a training run once and carry it as far as its job allows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var run *models.PipelineRun
			var err error
			if wait {
				run, err = a.orch.Wait(ctx, args[0])
			} else {
				run, err = a.orch.Advance(ctx, args[0])
			}
			return report(run, err)
		})
	},
}

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Register the latest trained model and submit a batch transform job",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := inferenceReq
		if specFile != "" {
			doc, err := spec.ParseFile(specFile)
			if err != nil {
				return err
			}
			if doc.Inference == nil {
				return models.NewConfigError(specFile+" is not an inference pipeline", nil)
			}
			req = *doc.Inference
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return report(a.orch.RunInference(ctx, req))
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [RUN_ID]",
	Short: "Show a run with its events and artifacts, or list runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if len(args) == 0 {
				runs, err := a.orch.ListRuns(ctx, repository.RunFilter{
					Kind:  models.PipelineKind(listKind),
					State: models.PipelineState(listState),
					Limit: listLimit,
				})
				if err != nil {
					return err
				}
				return printJSON(runs)
			}

			run, err := a.orch.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			events, err := a.orch.RunEvents(ctx, run.ID, 100)
			if err != nil {
				return err
			}
			artifacts, err := a.orch.RunArtifacts(ctx, run.ID, nil)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"run":       run,
				"events":    events,
				"artifacts": artifacts,
			})
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{trainCmd, estimateCmd} {
		f := cmd.Flags()
		f.StringVarP(&specFile, "file", "f", "", "YAML pipeline document (kind: training)")
		f.StringVar(&trainingReq.ModelName, "model-name", "", "Model name prefixing every job name")
		f.StringVar(&trainingReq.TrainingImage, "image", "", "Training container image URI")
		f.StringVar(&trainingReq.RoleARN, "role-arn", "", "Execution role ARN")
		f.StringVar(&trainingReq.TrainDataLocation, "train-data", "", "S3 prefix of the training data")
		f.StringVar(&trainingReq.OutputLocation, "output", "", "S3 prefix for training output (default: training_output next to the data)")
		f.StringVar(&trainingReq.Resources.InstanceType, "instance-type", "ml.m5.large", "Training instance type")
		f.IntVar(&trainingReq.Resources.InstanceCount, "instance-count", 1, "Number of training instances")
		f.IntVar(&trainingReq.Resources.VolumeSizeGB, "volume-size", 10, "Volume size per instance in GB")
		f.BoolVar(&trainingReq.UseSpot, "spot", false, "Use managed spot capacity")
		f.StringVar(&hyperparamsFile, "hyperparameters", "", "JSON file of hyperparameters")
	}
	trainCmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the pipeline to finish")
	advanceCmd.Flags().BoolVarP(&wait, "wait", "w", false, "Keep advancing until the run is final")

	f := inferCmd.Flags()
	f.StringVarP(&specFile, "file", "f", "", "YAML pipeline document (kind: inference)")
	f.StringVar(&inferenceReq.ModelName, "model-name", "", "Model name the training jobs were named after")
	f.StringVar(&inferenceReq.InferenceDataLocation, "inference-data", "", "S3 prefix of the JSON Lines inference data")
	f.StringVar(&inferenceReq.TrainingJobName, "training-job", "", "Serve this training job instead of the latest completed one")
	f.StringVar(&inferenceReq.RoleARN, "role-arn", "", "Execution role for the model (default: the training job's)")
	f.StringVar(&inferenceReq.Resources.InstanceType, "instance-type", "ml.m5.large", "Transform instance type")
	f.IntVar(&inferenceReq.Resources.InstanceCount, "instance-count", 1, "Number of transform instances")

	f = statusCmd.Flags()
	f.StringVar(&listKind, "kind", "", "List only runs of this pipeline (training or inference)")
	f.StringVar(&listState, "state", "", "List only runs in this state")
	f.IntVar(&listLimit, "limit", 50, "Maximum number of runs to list")
}

func trainingRequest() (orchestrator.TrainingRequest, error) {
	if specFile != "" {
		doc, err := spec.ParseFile(specFile)
		if err != nil {
			return orchestrator.TrainingRequest{}, err
		}
		if doc.Training == nil {
			return orchestrator.TrainingRequest{}, models.NewConfigError(specFile+" is not a training pipeline", nil)
		}
		return *doc.Training, nil
	}

	req := trainingReq
	if hyperparamsFile != "" {
		params, err := hyperparams.Load(hyperparamsFile)
		if err != nil {
			return orchestrator.TrainingRequest{}, err
		}
		req.Hyperparameters = params
	}
	return req, nil
}

// report prints the run, failed or not, and returns err so the exit status
// reflects the pipeline outcome
func report(run *models.PipelineRun, err error) error {
	if run != nil {
		if perr := printJSON(run); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}
