package steps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sagemaker-orchestrator/core/compute"
	"sagemaker-orchestrator/core/models"
)

// ArtifactVerifier checks that a model artifact actually exists in object storage
type ArtifactVerifier interface {
	Verify(ctx context.Context, uri string) error
}

// ArtifactStep turns a completed training job into a ResolvedArtifact
type ArtifactStep struct {
	client   compute.Client
	verifier ArtifactVerifier
}

// NewArtifactStep creates an artifact step. verifier may be nil.
func NewArtifactStep(client compute.Client, verifier ArtifactVerifier) *ArtifactStep {
	return &ArtifactStep{client: client, verifier: verifier}
}

// Resolve describes the job behind handle. Only a Completed job with an image
// and a model artifact resolves; anything else is an IncompleteJobError.
func (s *ArtifactStep) Resolve(ctx context.Context, handle string) (models.ResolvedArtifact, error) {
	job, err := s.client.DescribeJob(ctx, handle)
	if err != nil {
		return models.ResolvedArtifact{}, err
	}

	artifact, err := models.NewResolvedArtifact(job)
	if err != nil {
		return models.ResolvedArtifact{}, err
	}

	if s.verifier != nil {
		if err := s.verifier.Verify(ctx, artifact.ArtifactURI()); err != nil {
			if models.IsKind(err, models.KindNotFound) {
				return models.ResolvedArtifact{}, fmt.Errorf("%w: %v", models.NewIncompleteJobError(artifact.JobName(), models.JobStatusCompleted), err)
			}
			return models.ResolvedArtifact{}, err
		}
	}

	zap.S().Named("artifact_step").Infof("Resolved artifact of %s: %s (image %s)",
		artifact.JobName(), artifact.ArtifactURI(), artifact.Image())
	return artifact, nil
}
