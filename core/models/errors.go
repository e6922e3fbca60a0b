package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindSubmission     ErrorKind = "SubmissionError"
	KindNotFound       ErrorKind = "NotFoundError"
	KindRegistration   ErrorKind = "RegistrationError"
	KindNoCompletedJob ErrorKind = "NoCompletedJobError"
	KindTimeout        ErrorKind = "TimeoutError"
	KindIncompleteJob  ErrorKind = "IncompleteJobError"
	KindConfig         ErrorKind = "ConfigError"
	KindJobFailed      ErrorKind = "JobFailedError"
	KindInternal       ErrorKind = "InternalError"
)

// Error is the typed error every step returns for a classified failure
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindTimeout}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// KindOf returns the kind of the first classified error in the chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func NewSubmissionError(msg string, err error) error {
	return &Error{Kind: KindSubmission, Message: msg, Err: err}
}

func NewNotFoundError(what string, err error) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", what), Err: err}
}

func NewRegistrationError(model string, err error) error {
	return &Error{Kind: KindRegistration, Message: fmt.Sprintf("cannot register model %s", model), Err: err}
}

func NewNoCompletedJobError(modelName string) error {
	return &Error{Kind: KindNoCompletedJob, Message: fmt.Sprintf("no completed training job matches %q", modelName)}
}

func NewTimeoutError(jobName string, waited time.Duration) error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf("job %s still running after %s", jobName, waited)}
}

func NewIncompleteJobError(jobName string, status JobStatus) error {
	return &Error{Kind: KindIncompleteJob, Message: fmt.Sprintf("job %s has no artifacts in status %s", jobName, status)}
}

func NewConfigError(msg string, err error) error {
	return &Error{Kind: KindConfig, Message: msg, Err: err}
}

func NewJobFailedError(jobName string, status JobStatus, reason string) error {
	msg := fmt.Sprintf("job %s ended in status %s", jobName, status)
	if reason != "" {
		msg += ": " + reason
	}
	return &Error{Kind: KindJobFailed, Message: msg}
}

// PipelineError is the user-visible failure of a pipeline run
type PipelineError struct {
	Step    string    `json:"step"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("step %s failed (%s): %s", e.Step, e.Kind, e.Message)
}

// NewPipelineError classifies err as the failure of step
func NewPipelineError(step string, err error) *PipelineError {
	return &PipelineError{
		Step:    step,
		Kind:    KindOf(err),
		Message: err.Error(),
	}
}

// AsError returns e as an error, or nil when e is nil
func (e *PipelineError) AsError() error {
	if e == nil {
		return nil
	}
	return e
}
