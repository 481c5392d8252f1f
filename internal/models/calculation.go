package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Calculation is the persisted result of a landed-cost run (1:1 with shipment)
type Calculation struct {
	ShipmentID uuid.UUID `json:"shipmentId" gorm:"type:uuid;primary_key"`

	CustomsValue      decimal.Decimal `json:"customsValue" gorm:"type:numeric(18,4);not null"`
	DutyTotal         decimal.Decimal `json:"dutyTotal" gorm:"type:numeric(18,4);not null"`
	VatBase           decimal.Decimal `json:"vatBase" gorm:"type:numeric(18,4);not null"`
	VatTotal          decimal.Decimal `json:"vatTotal" gorm:"type:numeric(18,4);not null"`
	OtherDutiesTotal  decimal.Decimal `json:"otherDutiesTotal" gorm:"type:numeric(18,4);not null;default:0"`
	AuthoritiesTotal  decimal.Decimal `json:"authoritiesTotal" gorm:"type:numeric(18,4);not null"`
	LandedCostTotal   decimal.Decimal `json:"landedCostTotal" gorm:"type:numeric(18,4);not null"`
	LandedCostPerUnit decimal.Decimal `json:"landedCostPerUnit" gorm:"type:numeric(18,4);not null"`

	// Ordered provenance of every estimate and degraded lookup.
	Assumptions datatypes.JSON `json:"assumptions" gorm:"type:jsonb;not null"`
	Warnings    datatypes.JSON `json:"warnings" gorm:"type:jsonb;not null"`

	CalculatedAt  time.Time `json:"calculatedAt" gorm:"autoCreateTime"`
	EngineVersion string    `json:"engineVersion" gorm:"type:varchar(32);not null"`
}

// RateSnapshot is a per-shipment persisted provider response with explicit TTL.
// A snapshot is valid while now < fetched_at + ttl_seconds.
type RateSnapshot struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ShipmentID uuid.UUID `json:"shipmentId" gorm:"type:uuid;not null;index:idx_rate_snapshot_lookup,priority:1"`

	Provider        ProviderType   `json:"provider" gorm:"type:varchar(16);not null;index:idx_rate_snapshot_lookup,priority:2"`
	RequestKey      datatypes.JSON `json:"requestKey" gorm:"type:jsonb;not null"`
	ResponsePayload datatypes.JSON `json:"responsePayload" gorm:"type:jsonb;not null"`
	FetchedAt       time.Time      `json:"fetchedAt" gorm:"autoCreateTime"`
	TTLSeconds      int            `json:"ttlSeconds" gorm:"not null"`
}

// ExpiresAt returns the instant the snapshot stops being served
func (s *RateSnapshot) ExpiresAt() time.Time {
	return s.FetchedAt.Add(time.Duration(s.TTLSeconds) * time.Second)
}
