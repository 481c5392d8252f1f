package providers

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"landed-cost-service/internal/cache"
	"landed-cost-service/internal/models"
	"landed-cost-service/internal/repository"
)

// EUTaricProvider is the fallback duty source for EU imports. The
// primary EU path is the local TARIC resolver; this provider serves the
// fallback table and an optional remote duty API when no snapshot data
// covers a code.
type EUTaricProvider struct {
	cache     cache.JSONCache
	snapshots repository.RateSnapshotRepository
	fallback  repository.FallbackRepository
	fetcher   jsonGetter
	breaker   breaker
	baseURL   string
	apiKey    string
	log       *logrus.Entry
}

func NewEUTaricProvider(c cache.JSONCache, snapshots repository.RateSnapshotRepository,
	fallback repository.FallbackRepository, fetcher jsonGetter, br breaker,
	baseURL, apiKey string, log *logrus.Logger) *EUTaricProvider {
	return &EUTaricProvider{
		cache:     c,
		snapshots: snapshots,
		fallback:  fallback,
		fetcher:   fetcher,
		breaker:   br,
		baseURL:   baseURL,
		apiKey:    apiKey,
		log:       log.WithField("component", "eu_taric_provider"),
	}
}

// Rate looks up the EU duty rate for an HS code and origin
func (p *EUTaricProvider) Rate(ctx context.Context, hsCode, origin string, preferential bool, shipmentID *uuid.UUID) (DutyRateResult, error) {
	origin = strings.ToUpper(origin)
	key := cache.EUTaricKey(hsCode, origin, preferential)

	var cached DutyRateResult
	if hit, err := p.cache.Get(ctx, key, &cached); err == nil && hit {
		cached.Source = SourceRedis
		return cached, nil
	}

	if row, err := p.fallback.GetEuTaricRate(ctx, hsCode, origin, preferential); err == nil {
		rate := row.DutyRate
		result := DutyRateResult{Rate: &rate, IsEstimated: true, Source: SourceDB}
		if err := p.cache.Set(ctx, key, result, CacheTTL); err != nil {
			p.log.WithError(err).Warn("cache write failed")
		}
		return result, nil
	}

	if p.baseURL != "" && p.breaker.Allow() {
		result, err := p.fetchRemote(ctx, hsCode, origin, preferential)
		if err == nil {
			p.breaker.RecordSuccess()
			if err := p.cache.Set(ctx, key, result, CacheTTL); err != nil {
				p.log.WithError(err).Warn("cache write failed")
			}
			saveSnapshot(ctx, p.snapshots, p.log, shipmentID, models.ProviderEUTaric,
				map[string]string{"hs_code": hsCode, "origin": origin, "preferential": strconv.FormatBool(preferential)}, result)
			return result, nil
		}
		p.breaker.RecordFailure()
		p.log.WithError(err).WithField("hs_code", hsCode).Warn("eu taric api failed")
	}

	return missingDuty(), nil
}

func (p *EUTaricProvider) fetchRemote(ctx context.Context, hsCode, origin string, preferential bool) (DutyRateResult, error) {
	var resp struct {
		DutyRate *float64 `json:"duty_rate"`
	}
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	params := map[string]string{
		"hs_code":    hsCode,
		"origin":     origin,
		"preference": strconv.FormatBool(preferential),
	}
	if err := p.fetcher.GetJSON(ctx, p.baseURL+"/taric", headers, params, &resp); err != nil {
		return DutyRateResult{}, err
	}
	if resp.DutyRate == nil {
		return DutyRateResult{Missing: true, IsEstimated: true, Source: SourceEUAPI}, nil
	}
	rate := decimal.NewFromFloat(*resp.DutyRate)
	return DutyRateResult{Rate: &rate, Source: SourceEUAPI}, nil
}
