package steps

import (
	"fmt"
	"strings"

	"sagemaker-orchestrator/core/models"
)

const (
	trainingOutputSuffix  = "/training_output"
	inferenceOutputSuffix = "/inference_output"
)

// ValidateS3URI checks that uri is an s3://bucket[/key] location
func ValidateS3URI(field, uri string) error {
	if uri == "" {
		return models.NewConfigError(field+" is required", nil)
	}
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok || rest == "" || strings.HasPrefix(rest, "/") {
		return models.NewConfigError(fmt.Sprintf("%s %q is not an s3:// location", field, uri), nil)
	}
	return nil
}

// TrainingOutputLocation is where training output goes by default: a
// training_output prefix next to the training data
func TrainingOutputLocation(trainData string) string {
	return parentPrefix(trainData) + trainingOutputSuffix
}

// TransformOutputLocation is where transform output goes: an inference_output
// prefix under the inference data
func TransformOutputLocation(inferenceData string) string {
	return strings.TrimRight(inferenceData, "/") + inferenceOutputSuffix
}

func parentPrefix(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	rest, ok := strings.CutPrefix(trimmed, "s3://")
	if !ok {
		return trimmed
	}
	i := strings.LastIndex(rest, "/")
	if i < 0 {
		return trimmed
	}
	return "s3://" + rest[:i]
}
