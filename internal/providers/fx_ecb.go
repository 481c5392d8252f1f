package providers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"landed-cost-service/internal/cache"
	"landed-cost-service/internal/models"
	"landed-cost-service/internal/repository"
)

// SourceIdentity tags same-currency conversions
const SourceIdentity = "identity"

// FxProvider resolves daily FX rates from the ECB reference-rate feed,
// keeping a durable per-day ledger so repeated lookups stay off the API.
type FxProvider struct {
	cache     cache.JSONCache
	snapshots repository.RateSnapshotRepository
	fallback  repository.FallbackRepository
	fetcher   jsonGetter
	breaker   breaker
	baseURL   string
	log       *logrus.Entry

	now func() time.Time
}

func NewFxProvider(c cache.JSONCache, snapshots repository.RateSnapshotRepository,
	fallback repository.FallbackRepository, fetcher jsonGetter, br breaker,
	baseURL string, log *logrus.Logger) *FxProvider {
	return &FxProvider{
		cache:     c,
		snapshots: snapshots,
		fallback:  fallback,
		fetcher:   fetcher,
		breaker:   br,
		baseURL:   baseURL,
		log:       log.WithField("component", "fx_provider"),
		now:       time.Now,
	}
}

// Rate returns the base→quote conversion rate
func (p *FxProvider) Rate(ctx context.Context, base, quote string, shipmentID *uuid.UUID) (FxRateResult, error) {
	if base == quote {
		one := decimal.NewFromInt(1)
		return FxRateResult{Rate: &one, Source: SourceIdentity}, nil
	}
	key := cache.FxKey(base, quote)

	var cached FxRateResult
	if hit, err := p.cache.Get(ctx, key, &cached); err == nil && hit {
		cached.Source = SourceRedis
		return cached, nil
	}

	today := p.now().UTC().Truncate(24 * time.Hour)
	if row, err := p.fallback.GetFxRate(ctx, base, quote, today); err == nil {
		rate := row.Rate
		result := FxRateResult{Rate: &rate, RateDate: row.RateDate.Format("2006-01-02"), Source: SourceDB}
		if err := p.cache.Set(ctx, key, result, CacheTTL); err != nil {
			p.log.WithError(err).Warn("cache write failed")
		}
		return result, nil
	}

	if p.breaker.Allow() {
		result, err := p.fetchRemote(ctx, base, quote)
		if err == nil {
			p.breaker.RecordSuccess()
			p.persistDaily(ctx, base, quote, result)
			if err := p.cache.Set(ctx, key, result, CacheTTL); err != nil {
				p.log.WithError(err).Warn("cache write failed")
			}
			saveSnapshot(ctx, p.snapshots, p.log, shipmentID, models.ProviderFX,
				map[string]string{"base": base, "quote": quote}, result)
			return result, nil
		}
		p.breaker.RecordFailure()
		p.log.WithError(err).WithFields(logrus.Fields{"base": base, "quote": quote}).Warn("ecb api failed")
	}

	return missingFx(), nil
}

type ecbResponse struct {
	DataSets []struct {
		Series map[string]struct {
			Observations map[string][]*float64 `json:"observations"`
		} `json:"series"`
	} `json:"dataSets"`
	Structure struct {
		Dimensions struct {
			Observation []struct {
				Values []struct {
					ID string `json:"id"`
				} `json:"values"`
			} `json:"observation"`
		} `json:"dimensions"`
	} `json:"structure"`
}

// fetchRemote reads the most recent observation of the daily reference
// series for the currency pair from the ECB SDMX-JSON endpoint
func (p *FxProvider) fetchRemote(ctx context.Context, base, quote string) (FxRateResult, error) {
	url := fmt.Sprintf("%s/D.%s.%s.SP00.A", p.baseURL, base, quote)
	params := map[string]string{
		"format":            "jsondata",
		"lastNObservations": "1",
	}
	var resp ecbResponse
	if err := p.fetcher.GetJSON(ctx, url, nil, params, &resp); err != nil {
		return FxRateResult{}, err
	}
	if len(resp.DataSets) == 0 || len(resp.DataSets[0].Series) == 0 {
		return FxRateResult{}, fmt.Errorf("ecb response has no series for %s/%s", base, quote)
	}

	for _, series := range resp.DataSets[0].Series {
		keys := make([]string, 0, len(series.Observations))
		for k := range series.Observations {
			keys = append(keys, k)
		}
		if len(keys) == 0 {
			break
		}
		sort.Strings(keys)
		last := keys[len(keys)-1]
		obs := series.Observations[last]
		if len(obs) == 0 || obs[0] == nil {
			break
		}
		rate := decimal.NewFromFloat(*obs[0])
		result := FxRateResult{Rate: &rate, Source: SourceECB}
		if idx, err := strconv.Atoi(last); err == nil {
			dims := resp.Structure.Dimensions.Observation
			if len(dims) > 0 && idx < len(dims[0].Values) {
				result.RateDate = dims[0].Values[idx].ID
			}
		}
		return result, nil
	}
	return FxRateResult{}, fmt.Errorf("ecb response has no observations for %s/%s", base, quote)
}

func (p *FxProvider) persistDaily(ctx context.Context, base, quote string, result FxRateResult) {
	if result.Rate == nil {
		return
	}
	rateDate := p.now().UTC().Truncate(24 * time.Hour)
	if result.RateDate != "" {
		if d, err := time.Parse("2006-01-02", result.RateDate); err == nil {
			rateDate = d
		}
	}
	row := &models.FxRateDaily{
		BaseCurrency:  base,
		QuoteCurrency: quote,
		RateDate:      rateDate,
		Rate:          *result.Rate,
		Source:        SourceECB,
	}
	if err := p.fallback.UpsertFxRate(ctx, row); err != nil {
		p.log.WithError(err).Warn("fx daily upsert failed")
	}
}
