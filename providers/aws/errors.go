package aws

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/smithy-go"
)

// isNotFound reports whether err means the named resource does not exist.
// SageMaker reports most missing resources as a ValidationException.
func isNotFound(err error) bool {
	var rnf *types.ResourceNotFound
	if errors.As(err, &rnf) {
		return true
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.ErrorCode() == "ResourceNotFound" {
		return true
	}
	if apiErr.ErrorCode() != "ValidationException" {
		return false
	}
	msg := strings.ToLower(apiErr.ErrorMessage())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find")
}

// isAlreadyExists reports whether CreateModel failed because the name is taken
func isAlreadyExists(err error) bool {
	var inUse *types.ResourceInUse
	if errors.As(err, &inUse) {
		return true
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.ErrorMessage())
	return apiErr.ErrorCode() == "ValidationException" && strings.Contains(msg, "already exist")
}
