// Package spec parses YAML pipeline documents into orchestrator requests.
//
//	kind: training
//	hyperparameters_file: hyperparameters.json
//	training:
//	  model_name: iris
//	  training_image: 123456789012.dkr.ecr.us-east-1.amazonaws.com/xgb:latest
//	  ...
package spec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/core/orchestrator"
	"sagemaker-orchestrator/training/hyperparams"
)

// PipelineSpec represents a YAML pipeline document
type PipelineSpec struct {
	Kind                models.PipelineKind            `yaml:"kind"`
	HyperparametersFile string                         `yaml:"hyperparameters_file,omitempty"`
	Training            *orchestrator.TrainingRequest  `yaml:"training,omitempty"`
	Inference           *orchestrator.InferenceRequest `yaml:"inference,omitempty"`
}

// ParsePipelineSpec parses a YAML pipeline document. Relative hyperparameter
// file paths are resolved against baseDir.
func ParsePipelineSpec(specYAML []byte, baseDir string) (*PipelineSpec, error) {
	spec, err := decode(specYAML)
	if err != nil {
		return nil, err
	}
	if spec.HyperparametersFile != "" {
		if err := spec.loadHyperparameters(baseDir); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

// ParseRequest parses a pipeline document received from a remote caller. It
// never touches the local filesystem, so hyperparameters_file is rejected.
func ParseRequest(specYAML []byte) (*PipelineSpec, error) {
	spec, err := decode(specYAML)
	if err != nil {
		return nil, err
	}
	if spec.HyperparametersFile != "" {
		return nil, models.NewConfigError("hyperparameters_file is not accepted in requests, set training.hyperparameters instead", nil)
	}
	return spec, nil
}

func decode(specYAML []byte) (*PipelineSpec, error) {
	var spec PipelineSpec
	dec := yaml.NewDecoder(bytes.NewReader(specYAML))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, models.NewConfigError("pipeline document is empty", nil)
		}
		return nil, models.NewConfigError("failed to parse YAML", err)
	}

	switch spec.Kind {
	case models.PipelineTraining:
		if spec.Training == nil {
			return nil, models.NewConfigError("training pipeline needs a training section", nil)
		}
		if spec.Inference != nil {
			return nil, models.NewConfigError("training pipeline cannot have an inference section", nil)
		}
	case models.PipelineInference:
		if spec.Inference == nil {
			return nil, models.NewConfigError("inference pipeline needs an inference section", nil)
		}
		if spec.Training != nil || spec.HyperparametersFile != "" {
			return nil, models.NewConfigError("inference pipeline cannot have training settings", nil)
		}
	default:
		return nil, models.NewConfigError(fmt.Sprintf("kind must be %q or %q, got %q",
			models.PipelineTraining, models.PipelineInference, spec.Kind), nil)
	}
	return &spec, nil
}

// ParseFile reads and parses the pipeline document at path
func ParseFile(path string) (*PipelineSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline document: %w", err)
	}
	return ParsePipelineSpec(data, filepath.Dir(path))
}

// loadHyperparameters merges the file under the inline values; inline wins
func (s *PipelineSpec) loadHyperparameters(baseDir string) error {
	path := s.HyperparametersFile
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	fromFile, err := hyperparams.Load(path)
	if err != nil {
		return err
	}

	merged := make(map[string]string, len(fromFile)+len(s.Training.Hyperparameters))
	for k, v := range fromFile {
		merged[k] = v
	}
	for k, v := range s.Training.Hyperparameters {
		merged[k] = v
	}
	s.Training.Hyperparameters = merged
	return nil
}
