// Package providers implements the external rate lookups (UK tariff,
// EU TARIC fallback, VAT, ECB FX). Every provider walks the same
// fallback ladder: fast Redis cache, durable per-shipment snapshot or
// DB fallback table, remote API behind a circuit breaker, and finally
// an explicit "missing" result. Degraded sources are flagged estimated;
// a missing rate is never an error.
package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"landed-cost-service/internal/models"
	"landed-cost-service/internal/repository"
)

// CacheTTL bounds both the Redis entries and the durable snapshots
const CacheTTL = 86400 * time.Second

// Source tags recorded on results
const (
	SourceRedis    = "redis"
	SourceSnapshot = "snapshot"
	SourceDB       = "db"
	SourceOverride = "override"
	SourceUKAPI    = "uk_api"
	SourceEUAPI    = "eu_api"
	SourceECB      = "ecb"
	SourceVatAPI   = "vatapi"
	SourceNone     = "none"
)

// DutyRateResult is the uniform duty lookup outcome
type DutyRateResult struct {
	Rate        *decimal.Decimal `json:"rate"`
	Missing     bool             `json:"missing"`
	IsEstimated bool             `json:"isEstimated"`
	Source      string           `json:"source"`
}

// VatRateResult is the uniform VAT lookup outcome
type VatRateResult struct {
	Rate        *decimal.Decimal `json:"rate"`
	Missing     bool             `json:"missing"`
	IsEstimated bool             `json:"isEstimated"`
	Source      string           `json:"source"`
}

// FxRateResult is the uniform FX lookup outcome
type FxRateResult struct {
	Rate        *decimal.Decimal `json:"rate"`
	RateDate    string           `json:"rateDate,omitempty"`
	Missing     bool             `json:"missing"`
	IsEstimated bool             `json:"isEstimated"`
	Source      string           `json:"source"`
}

func missingDuty() DutyRateResult {
	return DutyRateResult{Missing: true, IsEstimated: true, Source: SourceNone}
}

func missingVat() VatRateResult {
	return VatRateResult{Missing: true, IsEstimated: true, Source: SourceNone}
}

func missingFx() FxRateResult {
	return FxRateResult{Missing: true, IsEstimated: true, Source: SourceNone}
}

// jsonGetter is the fetcher surface providers depend on
type jsonGetter interface {
	GetJSON(ctx context.Context, rawURL string, headers map[string]string, params map[string]string, dest interface{}) error
}

// breaker guards remote calls
type breaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
}

func jsonUnmarshal(raw []byte, dest interface{}) error {
	return json.Unmarshal(raw, dest)
}

// saveSnapshot persists a provider response for the shipment; snapshot
// failures are logged, they never fail a lookup.
func saveSnapshot(ctx context.Context, snapshots repository.RateSnapshotRepository, log *logrus.Entry,
	shipmentID *uuid.UUID, provider models.ProviderType, requestKey, payload interface{}) {
	if shipmentID == nil || snapshots == nil {
		return
	}
	keyJSON, err := json.Marshal(requestKey)
	if err != nil {
		return
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return
	}
	snap := &models.RateSnapshot{
		ShipmentID:      *shipmentID,
		Provider:        provider,
		RequestKey:      datatypes.JSON(keyJSON),
		ResponsePayload: datatypes.JSON(payloadJSON),
		TTLSeconds:      int(CacheTTL / time.Second),
	}
	if err := snapshots.Save(ctx, snap); err != nil {
		log.WithError(err).WithField("provider", provider).Warn("rate snapshot write failed")
	}
}
