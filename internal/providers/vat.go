package providers

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"landed-cost-service/internal/cache"
	"landed-cost-service/internal/models"
	"landed-cost-service/internal/repository"
)

// VatProvider resolves the standard import VAT rate per destination
// country from a remote VAT API, with a DB fallback table.
type VatProvider struct {
	cache     cache.JSONCache
	snapshots repository.RateSnapshotRepository
	fallback  repository.FallbackRepository
	fetcher   jsonGetter
	breaker   breaker
	baseURL   string
	apiKey    string
	log       *logrus.Entry
}

func NewVatProvider(c cache.JSONCache, snapshots repository.RateSnapshotRepository,
	fallback repository.FallbackRepository, fetcher jsonGetter, br breaker,
	baseURL, apiKey string, log *logrus.Logger) *VatProvider {
	return &VatProvider{
		cache:     c,
		snapshots: snapshots,
		fallback:  fallback,
		fetcher:   fetcher,
		breaker:   br,
		baseURL:   baseURL,
		apiKey:    apiKey,
		log:       log.WithField("component", "vat_provider"),
	}
}

// StandardRate returns the standard VAT rate for a country code
func (p *VatProvider) StandardRate(ctx context.Context, countryCode string, shipmentID *uuid.UUID) (VatRateResult, error) {
	countryCode = strings.ToUpper(countryCode)
	key := cache.VatKey(countryCode)

	var cached VatRateResult
	if hit, err := p.cache.Get(ctx, key, &cached); err == nil && hit {
		cached.Source = SourceRedis
		return cached, nil
	}

	if row, err := p.fallback.GetVatRate(ctx, countryCode); err == nil {
		rate := row.Rate
		result := VatRateResult{Rate: &rate, IsEstimated: true, Source: SourceDB}
		if err := p.cache.Set(ctx, key, result, CacheTTL); err != nil {
			p.log.WithError(err).Warn("cache write failed")
		}
		return result, nil
	}

	if p.baseURL != "" && p.breaker.Allow() {
		result, err := p.fetchRemote(ctx, countryCode)
		if err == nil {
			p.breaker.RecordSuccess()
			if err := p.cache.Set(ctx, key, result, CacheTTL); err != nil {
				p.log.WithError(err).Warn("cache write failed")
			}
			saveSnapshot(ctx, p.snapshots, p.log, shipmentID, models.ProviderVAT,
				map[string]string{"country_code": countryCode}, result)
			return result, nil
		}
		p.breaker.RecordFailure()
		p.log.WithError(err).WithField("country_code", countryCode).Warn("vat api failed")
	}

	return missingVat(), nil
}

func (p *VatProvider) fetchRemote(ctx context.Context, countryCode string) (VatRateResult, error) {
	var resp map[string]interface{}
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["x-api-key"] = p.apiKey
	}
	params := map[string]string{"country_code": countryCode, "rate_type": "GOODS"}
	if err := p.fetcher.GetJSON(ctx, p.baseURL+"/vat-rate-check", headers, params, &resp); err != nil {
		return VatRateResult{}, err
	}

	raw, ok := extractVatRate(resp)
	if !ok {
		return VatRateResult{Missing: true, IsEstimated: true, Source: SourceVatAPI}, nil
	}
	rate := decimal.NewFromFloat(raw)
	// percentages arrive as e.g. 20, fractions as 0.20
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		rate = rate.Shift(-2)
	}
	return VatRateResult{Rate: &rate, Source: SourceVatAPI}, nil
}

// extractVatRate tries the response shapes the common VAT APIs use:
// rates.standard.rate, rates.goods.rate, then a flat standard_rate.
func extractVatRate(resp map[string]interface{}) (float64, bool) {
	if rates, ok := resp["rates"].(map[string]interface{}); ok {
		for _, bucket := range []string{"standard", "goods"} {
			if entry, ok := rates[bucket].(map[string]interface{}); ok {
				if v, ok := entry["rate"].(float64); ok {
					return v, true
				}
			}
		}
	}
	if v, ok := resp["standard_rate"].(float64); ok {
		return v, true
	}
	return 0, false
}
