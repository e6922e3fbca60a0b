package optimizer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPriceTTL is how long a fetched price is reused
const DefaultPriceTTL = 15 * time.Minute

// PriceSource returns the on-demand USD price per instance-hour
type PriceSource interface {
	HourlyPrice(ctx context.Context, instanceType, region string) (float64, error)
}

type cachedPrice struct {
	price     float64
	fetchedAt time.Time
}

// PricingFetcher caches instance prices from a PriceSource for one region
type PricingFetcher struct {
	source   PriceSource
	region   string
	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedPrice
}

// NewPricingFetcher creates a pricing fetcher for region
func NewPricingFetcher(source PriceSource, region string) *PricingFetcher {
	return &PricingFetcher{
		source:   source,
		region:   region,
		cacheTTL: DefaultPriceTTL,
		now:      time.Now,
		cache:    make(map[string]cachedPrice),
	}
}

// GetPrice returns the hourly price of instanceType, fetching it when the
// cached value is missing or stale
func (pf *PricingFetcher) GetPrice(ctx context.Context, instanceType string) (float64, error) {
	pf.mu.RLock()
	cached, ok := pf.cache[instanceType]
	pf.mu.RUnlock()
	if ok && pf.now().Sub(cached.fetchedAt) < pf.cacheTTL {
		return cached.price, nil
	}

	price, err := pf.source.HourlyPrice(ctx, instanceType, pf.region)
	if err != nil {
		if ok {
			zap.S().Named("pricing_fetcher").Warnf("Using stale price for %s: %v", instanceType, err)
			return cached.price, nil
		}
		return 0, err
	}

	pf.mu.Lock()
	pf.cache[instanceType] = cachedPrice{price: price, fetchedAt: pf.now()}
	pf.mu.Unlock()
	return price, nil
}

// Region is the region prices are looked up in
func (pf *PricingFetcher) Region() string {
	return pf.region
}
