package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"landed-cost-service/internal/models"
)

// FallbackRepository serves the operator-maintained rate tables used
// when remote providers are unavailable, plus the daily FX ledger.
type FallbackRepository interface {
	GetTariffOverride(ctx context.Context, commodityCode string) (*models.TariffRateOverride, error)
	GetVatRate(ctx context.Context, countryCode string) (*models.VatRate, error)
	GetEuTaricRate(ctx context.Context, hsCode, origin string, preferential bool) (*models.EuTaricRate, error)
	GetFxRate(ctx context.Context, base, quote string, date time.Time) (*models.FxRateDaily, error)
	UpsertFxRate(ctx context.Context, row *models.FxRateDaily) error
}

type fallbackRepository struct {
	db *gorm.DB
}

func NewFallbackRepository(db *gorm.DB) FallbackRepository {
	return &fallbackRepository{db: db}
}

func (r *fallbackRepository) GetTariffOverride(ctx context.Context, commodityCode string) (*models.TariffRateOverride, error) {
	var row models.TariffRateOverride
	err := r.db.WithContext(ctx).
		Where("commodity_code = ?", commodityCode).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tariff override: %w", err)
	}
	return &row, nil
}

func (r *fallbackRepository) GetVatRate(ctx context.Context, countryCode string) (*models.VatRate, error) {
	var row models.VatRate
	err := r.db.WithContext(ctx).
		Where("country_code = ? AND rate_type = ?", countryCode, "standard").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vat rate: %w", err)
	}
	return &row, nil
}

func (r *fallbackRepository) GetEuTaricRate(ctx context.Context, hsCode, origin string, preferential bool) (*models.EuTaricRate, error) {
	var row models.EuTaricRate
	err := r.db.WithContext(ctx).
		Where("hs_code = ? AND origin_country = ? AND preferential = ?", hsCode, origin, preferential).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get eu taric rate: %w", err)
	}
	return &row, nil
}

func (r *fallbackRepository) GetFxRate(ctx context.Context, base, quote string, date time.Time) (*models.FxRateDaily, error) {
	var row models.FxRateDaily
	err := r.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ? AND rate_date = ?", base, quote, date.Format("2006-01-02")).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fx rate: %w", err)
	}
	return &row, nil
}

func (r *fallbackRepository) UpsertFxRate(ctx context.Context, row *models.FxRateDaily) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "base_currency"}, {Name: "quote_currency"}, {Name: "rate_date"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"rate", "source", "fetched_at"}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert fx rate: %w", err)
	}
	return nil
}
