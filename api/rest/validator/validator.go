package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/core/steps"
)

type ValidationRule struct {
	Rule func(v *validator.Validate)
}

// Validator is a wrapper around the actual validator.
// It sets up the validator and turns its field errors into a ConfigError.
type Validator struct {
	validator *validator.Validate
	rules     []ValidationRule
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validator: v}
}

func (v *Validator) Register(rules ...ValidationRule) {
	for _, validationRule := range rules {
		validationRule.Rule(v.validator)
	}
	v.rules = append(v.rules, rules...)
}

// Struct validates s and reports every failed field in one ConfigError
func (v *Validator) Struct(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return models.NewConfigError("invalid request", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return models.NewConfigError(strings.Join(msgs, "; "), nil)
}

// NewRequestValidationRules returns the rules pipeline requests use
func NewRequestValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: func(v *validator.Validate) {
				_ = v.RegisterValidation("s3uri", func(fl validator.FieldLevel) bool {
					return steps.ValidateS3URI(fl.FieldName(), fl.Field().String()) == nil
				})
			},
		},
		{
			Rule: func(v *validator.Validate) {
				_ = v.RegisterValidation("model_name", func(fl validator.FieldLevel) bool {
					return steps.ValidateModelName(fl.Field().String()) == nil
				})
			},
		},
	}
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "s3uri":
		return fmt.Sprintf("%s %q is not an s3:// location", field, fe.Value())
	case "model_name":
		return fmt.Sprintf("%s %q must be at most %d letters, digits and hyphens", field, fe.Value(), steps.MaxModelNameLength)
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
