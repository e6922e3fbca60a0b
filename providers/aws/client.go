// Package aws implements the compute client on Amazon SageMaker and looks up
// SageMaker instance pricing.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
)

// DefaultPricingRegion is the only region hosting the Price List API
const DefaultPricingRegion = "us-east-1"

// Clients bundles the AWS service clients built from one shared config
type Clients struct {
	SageMaker *sagemaker.Client
	Pricing   *pricing.Client
	S3        *s3.Client
	Region    string
}

// NewClients loads the default AWS config for region. pricingRegion defaults
// to DefaultPricingRegion.
func NewClients(ctx context.Context, region, pricingRegion string) (*Clients, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if pricingRegion == "" {
		pricingRegion = DefaultPricingRegion
	}

	return &Clients{
		SageMaker: sagemaker.NewFromConfig(cfg),
		Pricing: pricing.NewFromConfig(cfg, func(o *pricing.Options) {
			o.Region = pricingRegion
		}),
		S3:     s3.NewFromConfig(cfg),
		Region: cfg.Region,
	}, nil
}
