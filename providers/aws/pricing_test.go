package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagemaker-orchestrator/core/models"
)

const (
	hostingItem = `{"product":{"attributes":{"component":"Hosting","instanceName":"ml.m5.large"}},
		"terms":{"OnDemand":{"A.JRTCKXETXF":{"priceDimensions":{"A.JRTCKXETXF.6YS6EN2CT7":{"unit":"Hrs","pricePerUnit":{"USD":"0.1150000000"}}}}}}}`
	trainingItem = `{"product":{"attributes":{"component":"Training","instanceName":"ml.m5.large"}},
		"terms":{"OnDemand":{"B.JRTCKXETXF":{"priceDimensions":{"B.JRTCKXETXF.6YS6EN2CT7":{"unit":"Hrs","pricePerUnit":{"USD":"0.1150000000"}}}}}}}`
	trainingItemPriced = `{"product":{"attributes":{"component":"Training"}},
		"terms":{"OnDemand":{"C":{"priceDimensions":{"C.1":{"unit":"Hrs","pricePerUnit":{"USD":"0.1380000000"}}}}}}}`
)

type fakePricing struct {
	input *pricing.GetProductsInput
	out   []string
	err   error
}

func (f *fakePricing) GetProducts(_ context.Context, in *pricing.GetProductsInput, _ ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &pricing.GetProductsOutput{PriceList: f.out}, nil
}

func TestHourlyPricePrefersTraining(t *testing.T) {
	api := &fakePricing{out: []string{hostingItem, "not json", trainingItemPriced}}

	price, err := NewPriceFinder(api).HourlyPrice(context.Background(), "ml.m5.large", "us-east-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.138, price, 1e-9)

	assert.Equal(t, "AmazonSageMaker", aws.ToString(api.input.ServiceCode))
	require.Len(t, api.input.Filters, 2)
	assert.Equal(t, "instanceName", aws.ToString(api.input.Filters[0].Field))
	assert.Equal(t, "ml.m5.large", aws.ToString(api.input.Filters[0].Value))
	assert.Equal(t, "us-east-1", aws.ToString(api.input.Filters[1].Value))
}

func TestHourlyPriceFallsBackToAnyComponent(t *testing.T) {
	price, err := NewPriceFinder(&fakePricing{out: []string{hostingItem}}).HourlyPrice(context.Background(), "ml.m5.large", "us-east-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.115, price, 1e-9)
}

func TestHourlyPriceNotFound(t *testing.T) {
	_, err := NewPriceFinder(&fakePricing{}).HourlyPrice(context.Background(), "ml.x99.huge", "us-east-1")
	assert.True(t, models.IsKind(err, models.KindNotFound))

	_, err = NewPriceFinder(&fakePricing{err: errors.New("throttled")}).HourlyPrice(context.Background(), "ml.m5.large", "us-east-1")
	require.Error(t, err)
	assert.False(t, models.IsKind(err, models.KindNotFound))
}

func TestParsePriceListItem(t *testing.T) {
	component, price, err := parsePriceListItem(trainingItem)
	require.NoError(t, err)
	assert.Equal(t, "Training", component)
	assert.InDelta(t, 0.115, price, 1e-9)

	_, _, err = parsePriceListItem(`{"terms":{"OnDemand":{}}}`)
	assert.Error(t, err)
}
