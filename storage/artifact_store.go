// Package storage checks model artifacts in S3 and reads the per-run
// artifact ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"sagemaker-orchestrator/core/models"
)

// S3HeadAPI is the subset of the S3 client used to check objects
type S3HeadAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// ArtifactLedger lists what runs produced
type ArtifactLedger interface {
	GetRunArtifacts(ctx context.Context, runID string, artifactType *models.ArtifactType) ([]models.RunArtifact, error)
}

// ArtifactStore verifies model artifacts and looks up recorded ones
type ArtifactStore struct {
	s3     S3HeadAPI
	ledger ArtifactLedger
}

// NewArtifactStore creates an artifact store. Either argument may be nil if
// the corresponding operation is not used.
func NewArtifactStore(s3 S3HeadAPI, ledger ArtifactLedger) *ArtifactStore {
	return &ArtifactStore{
		s3:     s3,
		ledger: ledger,
	}
}

// Verify checks that the object at uri exists. A missing object is a NotFoundError.
func (as *ArtifactStore) Verify(ctx context.Context, uri string) error {
	if as.s3 == nil {
		return fmt.Errorf("no S3 client configured to verify %s", uri)
	}
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return err
	}

	out, err := as.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isMissingObject(err) {
			return models.NewNotFoundError("artifact "+uri, err)
		}
		return fmt.Errorf("failed to check artifact %s: %w", uri, err)
	}

	zap.S().Named("artifact_store").Debugf("Artifact %s exists (%d bytes)", uri, aws.ToInt64(out.ContentLength))
	return nil
}

// LatestArtifact returns the most recently recorded artifact of artifactType for a run
func (as *ArtifactStore) LatestArtifact(ctx context.Context, runID string, artifactType models.ArtifactType) (models.RunArtifact, error) {
	artifacts, err := as.ledger.GetRunArtifacts(ctx, runID, &artifactType)
	if err != nil {
		return models.RunArtifact{}, err
	}

	var latest *models.RunArtifact
	for i := range artifacts {
		a := &artifacts[i]
		if a.Type != artifactType {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) ||
			(a.CreatedAt.Equal(latest.CreatedAt) && a.ID > latest.ID) {
			latest = a
		}
	}
	if latest == nil {
		return models.RunArtifact{}, models.NewNotFoundError(fmt.Sprintf("%s artifact of run %s", artifactType, runID), nil)
	}
	return *latest, nil
}

// ParseS3URI splits s3://bucket/key
func ParseS3URI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", models.NewConfigError(fmt.Sprintf("%q is not an s3:// location", uri), nil)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", models.NewConfigError(fmt.Sprintf("%q does not name an object", uri), nil)
	}
	return bucket, key, nil
}

func isMissingObject(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey"
	}
	return false
}
