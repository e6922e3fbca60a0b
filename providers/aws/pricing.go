package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"go.uber.org/zap"

	"sagemaker-orchestrator/core/models"
)

const sageMakerServiceCode = "AmazonSageMaker"

// PricingAPI is the subset of the Price List client used for lookups
type PricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// PriceFinder looks up on-demand SageMaker instance prices
type PriceFinder struct {
	api PricingAPI
}

// NewPriceFinder creates a price finder over api
func NewPriceFinder(api PricingAPI) *PriceFinder {
	return &PriceFinder{api: api}
}

// HourlyPrice returns the on-demand USD price per instance-hour of a SageMaker
// training instance type in region
func (f *PriceFinder) HourlyPrice(ctx context.Context, instanceType, region string) (float64, error) {
	out, err := f.api.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: aws.String(sageMakerServiceCode),
		Filters: []types.Filter{
			termMatch("instanceName", instanceType),
			termMatch("regionCode", region),
		},
		MaxResults: aws.Int32(100),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get SageMaker prices for %s in %s: %w", instanceType, region, err)
	}

	var fallback float64
	for _, raw := range out.PriceList {
		component, price, err := parsePriceListItem(raw)
		if err != nil {
			zap.S().Named("pricing").Warnf("Skipping unparsable price list item for %s: %v", instanceType, err)
			continue
		}
		if strings.EqualFold(component, "Training") {
			return price, nil
		}
		if fallback == 0 {
			fallback = price
		}
	}
	if fallback > 0 {
		return fallback, nil
	}
	return 0, models.NewNotFoundError(fmt.Sprintf("price for %s in %s", instanceType, region), nil)
}

func termMatch(field, value string) types.Filter {
	return types.Filter{
		Type:  types.FilterTypeTermMatch,
		Field: aws.String(field),
		Value: aws.String(value),
	}
}

// priceListItem is the part of a Price List product document we read
type priceListItem struct {
	Product struct {
		Attributes struct {
			Component string `json:"component"`
		} `json:"attributes"`
	} `json:"product"`
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// parsePriceListItem returns the component and the first non-zero hourly USD
// on-demand price of one product document
func parsePriceListItem(raw string) (string, float64, error) {
	var item priceListItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return "", 0, err
	}
	for _, term := range item.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			usd, ok := dim.PricePerUnit["USD"]
			if !ok {
				continue
			}
			price, err := strconv.ParseFloat(usd, 64)
			if err != nil {
				return "", 0, err
			}
			if price > 0 {
				return item.Product.Attributes.Component, price, nil
			}
		}
	}
	return "", 0, fmt.Errorf("no on-demand USD price")
}
