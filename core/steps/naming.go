package steps

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"sagemaker-orchestrator/core/models"
)

const (
	timestampLayout = "2006-01-02-15-04-05"
	suffixLength    = 8

	// maxJobNameLength is the compute service's limit on job and model names
	maxJobNameLength = 63

	// MaxModelNameLength leaves room for "-<timestamp>-<suffix>"
	MaxModelNameLength = maxJobNameLength - len(timestampLayout) - suffixLength - 2
)

var modelNamePattern = regexp.MustCompile(`^[a-zA-Z0-9](-*[a-zA-Z0-9])*$`)

// NameGenerator derives unique compute-service names from a model name.
// Names are "{model}-{YYYY-MM-DD-HH-MM-SS}-{suffix}"; the random suffix keeps
// two submissions within the same second apart.
type NameGenerator struct {
	Now    func() time.Time
	Suffix func() string
}

// NewNameGenerator returns a generator using the wall clock and random UUIDs
func NewNameGenerator() NameGenerator {
	return NameGenerator{
		Now: time.Now,
		Suffix: func() string {
			return strings.ReplaceAll(uuid.New().String(), "-", "")[:suffixLength]
		},
	}
}

// JobName returns a new unique job name for modelName
func (g NameGenerator) JobName(modelName string) (string, error) {
	if err := ValidateModelName(modelName); err != nil {
		return "", err
	}
	now := g.Now
	if now == nil {
		now = time.Now
	}
	name := fmt.Sprintf("%s-%s", modelName, now().UTC().Format(timestampLayout))
	if g.Suffix != nil {
		name += "-" + g.Suffix()
	}
	return name, nil
}

// ValidateModelName checks that modelName can prefix a compute-service name
func ValidateModelName(modelName string) error {
	if modelName == "" {
		return models.NewConfigError("model_name is required", nil)
	}
	if len(modelName) > MaxModelNameLength {
		return models.NewConfigError(fmt.Sprintf("model_name %q is longer than %d characters", modelName, MaxModelNameLength), nil)
	}
	if !modelNamePattern.MatchString(modelName) {
		return models.NewConfigError(fmt.Sprintf("model_name %q may only contain letters, digits and hyphens", modelName), nil)
	}
	return nil
}
