// Package optimizer estimates what a training job may cost before it runs.
package optimizer

import (
	"context"
	"fmt"
	"time"

	"sagemaker-orchestrator/core/models"
)

// CostEstimate is the worst-case on-demand cost of a training job
type CostEstimate struct {
	InstanceType   string  `json:"instance_type"`
	InstanceCount  int     `json:"instance_count"`
	Region         string  `json:"region"`
	HourlyPriceUSD float64 `json:"hourly_price_usd"`
	MaxHours       float64 `json:"max_hours"`
	MaxCostUSD     float64 `json:"max_cost_usd"`
	Spot           bool    `json:"spot"`
}

// CostCalculator calculates training costs from instance prices
type CostCalculator struct {
	pricingFetcher *PricingFetcher
}

// NewCostCalculator creates a new cost calculator
func NewCostCalculator(pf *PricingFetcher) *CostCalculator {
	return &CostCalculator{
		pricingFetcher: pf,
	}
}

// EstimateTraining bounds the cost of a job on resources that runs for at most
// maxRuntime. Spot jobs are billed at most the on-demand price, so the bound
// holds for them too.
func (cc *CostCalculator) EstimateTraining(ctx context.Context, resources models.ResourceConfig, maxRuntime time.Duration, spot bool) (CostEstimate, error) {
	if err := resources.Validate(false); err != nil {
		return CostEstimate{}, err
	}
	price, err := cc.pricingFetcher.GetPrice(ctx, resources.InstanceType)
	if err != nil {
		return CostEstimate{}, fmt.Errorf("failed to price %s: %w", resources.InstanceType, err)
	}

	hours := maxRuntime.Hours()
	return CostEstimate{
		InstanceType:   resources.InstanceType,
		InstanceCount:  resources.InstanceCount,
		Region:         cc.pricingFetcher.Region(),
		HourlyPriceUSD: price,
		MaxHours:       hours,
		MaxCostUSD:     CalculateCost(price, resources.InstanceCount, hours),
		Spot:           spot,
	}, nil
}

// CalculateCost is price per instance-hour times instances times hours
func CalculateCost(pricePerHour float64, count int, hours float64) float64 {
	return pricePerHour * float64(count) * hours
}
