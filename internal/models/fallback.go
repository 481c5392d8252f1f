package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TariffRateOverride is an operator-maintained UK duty rate used when the
// live tariff API is unavailable or a manual correction is needed.
type TariffRateOverride struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	CommodityCode string          `json:"commodityCode" gorm:"type:varchar(10);not null;uniqueIndex"`
	DutyRate      decimal.Decimal `json:"dutyRate" gorm:"type:numeric(18,8);not null"`
	Source        string          `json:"source" gorm:"type:varchar(64);not null;default:'manual'"`
	Notes         string          `json:"notes" gorm:"type:varchar(512)"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// VatRate is the fallback standard VAT rate per destination country
type VatRate struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	CountryCode string          `json:"countryCode" gorm:"type:varchar(2);not null;uniqueIndex:uq_vat_rate,priority:1"`
	RateType    string          `json:"rateType" gorm:"type:varchar(16);not null;default:'standard';uniqueIndex:uq_vat_rate,priority:2"`
	Rate        decimal.Decimal `json:"rate" gorm:"type:numeric(18,8);not null"`
	Source      string          `json:"source" gorm:"type:varchar(64);not null;default:'manual'"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// EuTaricRate is the fallback EU duty rate keyed by HS code and origin
type EuTaricRate struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	HSCode        string          `json:"hsCode" gorm:"type:varchar(10);not null;uniqueIndex:uq_eu_taric_rate,priority:1"`
	OriginCountry string          `json:"originCountry" gorm:"type:varchar(2);not null;uniqueIndex:uq_eu_taric_rate,priority:2"`
	Preferential  bool            `json:"preferential" gorm:"not null;default:false;uniqueIndex:uq_eu_taric_rate,priority:3"`
	DutyRate      decimal.Decimal `json:"dutyRate" gorm:"type:numeric(18,8);not null"`
	Source        string          `json:"source" gorm:"type:varchar(64);not null;default:'manual'"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// FxRateDaily stores one observed daily FX rate per currency pair and date
type FxRateDaily struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	BaseCurrency  string          `json:"baseCurrency" gorm:"type:varchar(3);not null;uniqueIndex:uq_fx_daily,priority:1"`
	QuoteCurrency string          `json:"quoteCurrency" gorm:"type:varchar(3);not null;uniqueIndex:uq_fx_daily,priority:2"`
	RateDate      time.Time       `json:"rateDate" gorm:"type:date;not null;uniqueIndex:uq_fx_daily,priority:3"`
	Rate          decimal.Decimal `json:"rate" gorm:"type:numeric(18,8);not null"`
	Source        string          `json:"source" gorm:"type:varchar(64);not null;default:'ecb'"`
	FetchedAt     time.Time       `json:"fetchedAt" gorm:"autoCreateTime"`
}
