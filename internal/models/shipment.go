package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User owns shipments. Authentication is handled at the gateway; this
// service only needs the JWT subject to scope queries.
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Email        string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"createdAt"`

	Shipments []Shipment `json:"shipments,omitempty" gorm:"foreignKey:UserID"`
}

// Shipment represents one international consignment being costed
type Shipment struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID uuid.UUID `json:"userId" gorm:"type:uuid;not null;index"`

	Direction            Direction  `json:"direction" gorm:"type:varchar(16);not null"`
	DestinationCountry   *string    `json:"destinationCountry" gorm:"type:varchar(2)"`
	OriginCountryDefault string     `json:"originCountryDefault" gorm:"type:varchar(2);not null"`
	Incoterm             Incoterm   `json:"incoterm" gorm:"type:varchar(3);not null"`
	Currency             string     `json:"currency" gorm:"type:varchar(3);not null"`
	ImportDate           *time.Time `json:"importDate" gorm:"type:date"`

	// Persisted FX overrides; preferred over a provider lookup when set.
	FxRateToGBP *decimal.Decimal `json:"fxRateToGbp" gorm:"type:numeric(18,8)"`
	FxRateToEUR *decimal.Decimal `json:"fxRateToEur" gorm:"type:numeric(18,8)"`

	Status ShipmentStatus `json:"status" gorm:"type:varchar(16);not null;default:'DRAFT'"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Items       []ShipmentItem `json:"items,omitempty" gorm:"foreignKey:ShipmentID"`
	Costs       *ShipmentCosts `json:"costs,omitempty" gorm:"foreignKey:ShipmentID"`
	Calculation *Calculation   `json:"calculation,omitempty" gorm:"foreignKey:ShipmentID"`
}

// QuoteCurrency returns the settlement currency implied by the direction
func (s *Shipment) QuoteCurrency() string {
	if s.Direction == DirectionImportUK {
		return "GBP"
	}
	return "EUR"
}

// ShipmentItem is a single commodity line on a shipment
type ShipmentItem struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ShipmentID uuid.UUID `json:"shipmentId" gorm:"type:uuid;not null;index"`

	Description    string  `json:"description" gorm:"type:varchar(255);not null"`
	HSCode         string  `json:"hsCode" gorm:"type:varchar(16);not null"`
	OriginCountry  string  `json:"originCountry" gorm:"type:varchar(2);not null"`
	AdditionalCode *string `json:"additionalCode" gorm:"type:varchar(8)"`

	Quantity  decimal.Decimal `json:"quantity" gorm:"type:numeric(18,4);not null"`
	UnitPrice decimal.Decimal `json:"unitPrice" gorm:"type:numeric(18,4);not null"`
	// GoodsValue is materialized as quantity * unit_price on first read.
	GoodsValue  *decimal.Decimal `json:"goodsValue" gorm:"type:numeric(18,4)"`
	WeightNetKg *decimal.Decimal `json:"weightNetKg" gorm:"type:numeric(18,4)"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ShipmentCosts holds the incidental cost inputs for a shipment (1:1)
type ShipmentCosts struct {
	ShipmentID uuid.UUID `json:"shipmentId" gorm:"type:uuid;primary_key"`

	FreightAmount         *decimal.Decimal `json:"freightAmount" gorm:"type:numeric(18,4)"`
	InsuranceAmount       *decimal.Decimal `json:"insuranceAmount" gorm:"type:numeric(18,4)"`
	InsuranceIsEstimated  bool             `json:"insuranceIsEstimated" gorm:"default:false"`
	BrokerageAmount       *decimal.Decimal `json:"brokerageAmount" gorm:"type:numeric(18,4)"`
	PortFeesAmount        *decimal.Decimal `json:"portFeesAmount" gorm:"type:numeric(18,4)"`
	InlandTransportAmount *decimal.Decimal `json:"inlandTransportAmount" gorm:"type:numeric(18,4)"`
	OtherIncidentalAmount *decimal.Decimal `json:"otherIncidentalAmount" gorm:"type:numeric(18,4)"`
	Notes                 string           `json:"notes" gorm:"type:varchar(1024)"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
