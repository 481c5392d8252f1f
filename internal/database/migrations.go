package database

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"landed-cost-service/internal/models"
)

// RunMigrations applies the schema via GORM AutoMigrate and ensures the
// unique indexes the upsert paths rely on
func RunMigrations(db *gorm.DB, log *logrus.Logger) error {
	log.Info("running database migrations")

	modelsToMigrate := []struct {
		name  string
		model interface{}
	}{
		{"User", &models.User{}},
		{"Shipment", &models.Shipment{}},
		{"ShipmentItem", &models.ShipmentItem{}},
		{"ShipmentCosts", &models.ShipmentCosts{}},
		{"Calculation", &models.Calculation{}},
		{"RateSnapshot", &models.RateSnapshot{}},
		{"TaricSnapshot", &models.TaricSnapshot{}},
		{"GoodsNomenclature", &models.GoodsNomenclature{}},
		{"GoodsDescription", &models.GoodsDescription{}},
		{"GeoArea", &models.GeoArea{}},
		{"GeoAreaMember", &models.GeoAreaMember{}},
		{"Measure", &models.Measure{}},
		{"DutyExpression", &models.DutyExpression{}},
		{"MeasureDutyExpression", &models.MeasureDutyExpression{}},
		{"AdditionalCode", &models.AdditionalCode{}},
		{"MeasureAdditionalCode", &models.MeasureAdditionalCode{}},
		{"MeasureCondition", &models.MeasureCondition{}},
		{"Regulation", &models.Regulation{}},
		{"TaricResolvedCache", &models.TaricResolvedCache{}},
		{"TariffRateOverride", &models.TariffRateOverride{}},
		{"VatRate", &models.VatRate{}},
		{"EuTaricRate", &models.EuTaricRate{}},
		{"FxRateDaily", &models.FxRateDaily{}},
	}
	for _, m := range modelsToMigrate {
		if err := db.AutoMigrate(m.model); err != nil {
			return fmt.Errorf("failed to auto-migrate %s: %w", m.name, err)
		}
		log.WithField("model", m.name).Debug("migrated")
	}

	if err := ensureUniqueIndexes(db, log); err != nil {
		return fmt.Errorf("failed to create unique indexes: %w", err)
	}

	log.Info("database migrations complete")
	return nil
}

// ensureUniqueIndexes creates the unique indexes required for ON
// CONFLICT clauses. AutoMigrate does not add indexes to tables that
// predate the model tags, so they are created explicitly.
func ensureUniqueIndexes(db *gorm.DB, log *logrus.Logger) error {
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_taric_snapshot ON taric_snapshots (snapshot_date, files_hash)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_taric_resolved ON taric_resolved_caches (snapshot_date, goods_code, origin_country, as_of_date, additional_code)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tariff_rate_overrides_commodity_code ON tariff_rate_overrides (commodity_code)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_vat_rate ON vat_rates (country_code, rate_type)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_eu_taric_rate ON eu_taric_rates (hs_code, origin_country, preferential)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_fx_daily ON fx_rate_dailies (base_currency, quote_currency, rate_date)`,
	}

	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return err
		}
	}
	log.Debug("unique indexes verified")
	return nil
}
