package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"landed-cost-service/internal/cache"
	"landed-cost-service/internal/models"
	"landed-cost-service/internal/repository"
)

var percentExpr = regexp.MustCompile(`([0-9.]+)\s*%`)

// UKTariffProvider resolves UK import duty rates from the Online Trade
// Tariff API, with snapshot and override-table fallbacks.
type UKTariffProvider struct {
	cache     cache.JSONCache
	snapshots repository.RateSnapshotRepository
	fallback  repository.FallbackRepository
	fetcher   jsonGetter
	breaker   breaker
	baseURL   string
	log       *logrus.Entry
}

func NewUKTariffProvider(c cache.JSONCache, snapshots repository.RateSnapshotRepository,
	fallback repository.FallbackRepository, fetcher jsonGetter, br breaker,
	baseURL string, log *logrus.Logger) *UKTariffProvider {
	return &UKTariffProvider{
		cache:     c,
		snapshots: snapshots,
		fallback:  fallback,
		fetcher:   fetcher,
		breaker:   br,
		baseURL:   baseURL,
		log:       log.WithField("component", "uk_tariff_provider"),
	}
}

type ukCommodityResponse struct {
	Included []struct {
		Type       string                 `json:"type"`
		Attributes map[string]interface{} `json:"attributes"`
	} `json:"included"`
}

// Rate looks up the ad-valorem duty rate for a UK commodity code
func (p *UKTariffProvider) Rate(ctx context.Context, commodityCode string, shipmentID *uuid.UUID) (DutyRateResult, error) {
	key := cache.UKTariffKey(commodityCode)

	var cached DutyRateResult
	if hit, err := p.cache.Get(ctx, key, &cached); err == nil && hit {
		cached.Source = SourceRedis
		return cached, nil
	}

	reqKey := map[string]string{"commodity_code": commodityCode}
	if shipmentID != nil && p.snapshots != nil {
		if keyJSON, err := json.Marshal(reqKey); err == nil {
			if snap, err := p.snapshots.GetValid(ctx, *shipmentID, models.ProviderUKTariff, keyJSON); err == nil {
				var stored ukCommodityResponse
				if err := jsonUnmarshal(snap.ResponsePayload, &stored); err == nil {
					result := parseCommodityMeasures(&stored)
					result.Source = SourceSnapshot
					return result, nil
				}
			}
		}
	}

	if p.breaker.Allow() {
		result, raw, err := p.fetchRemote(ctx, commodityCode)
		if err == nil {
			p.breaker.RecordSuccess()
			if err := p.cache.Set(ctx, key, result, CacheTTL); err != nil {
				p.log.WithError(err).Warn("cache write failed")
			}
			saveSnapshot(ctx, p.snapshots, p.log, shipmentID, models.ProviderUKTariff, reqKey, raw)
			return result, nil
		}
		p.breaker.RecordFailure()
		p.log.WithError(err).WithField("commodity_code", commodityCode).Warn("uk tariff api failed, trying override table")
	}

	if row, err := p.fallback.GetTariffOverride(ctx, commodityCode); err == nil {
		rate := row.DutyRate
		result := DutyRateResult{Rate: &rate, IsEstimated: true, Source: SourceOverride}
		if err := p.cache.Set(ctx, key, result, CacheTTL); err != nil {
			p.log.WithError(err).Warn("cache write failed")
		}
		return result, nil
	}

	return missingDuty(), nil
}

// fetchRemote returns both the parsed rate and the raw upstream
// response; the raw body is what the per-shipment snapshot keeps.
func (p *UKTariffProvider) fetchRemote(ctx context.Context, commodityCode string) (DutyRateResult, *ukCommodityResponse, error) {
	var resp ukCommodityResponse
	url := fmt.Sprintf("%s/commodities/%s", p.baseURL, commodityCode)
	if err := p.fetcher.GetJSON(ctx, url, nil, nil, &resp); err != nil {
		return DutyRateResult{}, nil, err
	}
	return parseCommodityMeasures(&resp), &resp, nil
}

// parseCommodityMeasures extracts the first ad-valorem duty expression
// from a commodity response
func parseCommodityMeasures(resp *ukCommodityResponse) DutyRateResult {
	for _, inc := range resp.Included {
		if inc.Type != "measure" {
			continue
		}
		expr := dutyExpressionText(inc.Attributes["duty_expression"])
		if expr == "" {
			continue
		}
		m := percentExpr.FindStringSubmatch(expr)
		if m == nil {
			continue
		}
		pct, err := decimal.NewFromString(m[1])
		if err != nil {
			continue
		}
		rate := pct.Shift(-2)
		return DutyRateResult{Rate: &rate, Source: SourceUKAPI}
	}
	return DutyRateResult{Missing: true, IsEstimated: true, Source: SourceUKAPI}
}

// dutyExpressionText accepts either the plain-string or the object form
// the tariff API uses for duty expressions
func dutyExpressionText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if s, ok := t["base"].(string); ok {
			return s
		}
		if s, ok := t["formatted_base"].(string); ok {
			return s
		}
	}
	return ""
}
