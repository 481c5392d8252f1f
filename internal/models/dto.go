package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Calculation statuses returned to clients
const (
	CalcStatusOK         = "ok"
	CalcStatusNeedsInput = "needs_input"
	CalcStatusNotFound   = "not_found"
)

// Duty component kinds
const (
	DutyKindAdValorem   = "ad_valorem"
	DutyKindSpecific    = "specific"
	DutyKindAntiDumping = "anti_dumping"
	DutyKindUnknown     = "unknown"
)

// DutyComponent is one contributor to an item's duty amount
type DutyComponent struct {
	Type       string           `json:"type"`
	Rate       *decimal.Decimal `json:"rate,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	Expression string           `json:"expression,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// ItemBreakdown is the per-item slice of a calculation result
type ItemBreakdown struct {
	ItemID         uuid.UUID        `json:"item_id"`
	HSCode         string           `json:"hs_code"`
	CustomsValue   decimal.Decimal  `json:"customs_value"`
	DutyRate       *decimal.Decimal `json:"duty_rate,omitempty"`
	DutyAmount     decimal.Decimal  `json:"duty_amount"`
	DutyComponents []DutyComponent  `json:"duty_components"`
}

// CalculationBreakdown holds the shipment-level totals
type CalculationBreakdown struct {
	CustomsValue      decimal.Decimal `json:"customs_value"`
	DutyTotal         decimal.Decimal `json:"duty_total"`
	VatBase           decimal.Decimal `json:"vat_base"`
	VatTotal          decimal.Decimal `json:"vat_total"`
	OtherDutiesTotal  decimal.Decimal `json:"other_duties_total"`
	AuthoritiesTotal  decimal.Decimal `json:"authorities_total"`
	LandedCostTotal   decimal.Decimal `json:"landed_cost_total"`
	LandedCostPerUnit decimal.Decimal `json:"landed_cost_per_unit"`
}

// CalculationResult is the full response of a calculation run
type CalculationResult struct {
	Status         string                `json:"status"`
	Message        string                `json:"message,omitempty"`
	RequiredFields []string              `json:"required_fields,omitempty"`
	Currency       string                `json:"currency,omitempty"`
	FxRate         *decimal.Decimal      `json:"fx_rate,omitempty"`
	Breakdown      *CalculationBreakdown `json:"breakdown,omitempty"`
	PerItem        []ItemBreakdown       `json:"per_item,omitempty"`
	Assumptions    []string              `json:"assumptions,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
	EngineVersion  string                `json:"engine_version"`
}

// ResolvedExpression is one parsed duty expression on a resolved measure
type ResolvedExpression struct {
	Type       string           `json:"type"`
	Rate       *decimal.Decimal `json:"rate,omitempty"`
	Expression string           `json:"expression"`
}

// ResolvedMeasure is one applicable measure in a resolver result
type ResolvedMeasure struct {
	MeasureSID             string               `json:"measure_sid"`
	MeasureTypeID          string               `json:"measure_type_id"`
	GeoAreaCode            string               `json:"geo_area_code"`
	Preferential           bool                 `json:"preferential"`
	AntiDumping            bool                 `json:"anti_dumping"`
	AdditionalCodeRequired bool                 `json:"additional_code_required"`
	AdditionalCodes        []string             `json:"additional_codes,omitempty"`
	Components             []ResolvedExpression `json:"components"`
	Requirements           []string             `json:"requirements,omitempty"`
	LegalRefs              []string             `json:"legal_refs,omitempty"`
}

// EffectiveRate is the single ad-valorem rate picked by the tie-break
type EffectiveRate struct {
	AdValoremRate decimal.Decimal `json:"ad_valorem_rate"`
	Preferential  bool            `json:"preferential"`
	MeasureSID    string          `json:"measure_sid"`
}

// ResolvedRate is the resolver's answer for one goods-code lookup.
// It serializes to the payload stored in taric_resolved_cache, so its
// JSON form must rehydrate to an identical value.
type ResolvedRate struct {
	GoodsCode      string            `json:"goods_code"`
	MatchedCode    string            `json:"matched_code,omitempty"`
	OriginCountry  string            `json:"origin_country"`
	AsOf           string            `json:"as_of"`
	SnapshotDate   string            `json:"snapshot_date"`
	AdditionalCode string            `json:"additional_code,omitempty"`
	Found          bool              `json:"found"`
	Note           string            `json:"note,omitempty"`
	Measures       []ResolvedMeasure `json:"measures,omitempty"`
	Effective      *EffectiveRate    `json:"effective,omitempty"`
}

// CreateShipmentRequest is the payload for creating a shipment
type CreateShipmentRequest struct {
	Direction            string  `json:"direction" binding:"required"`
	DestinationCountry   *string `json:"destinationCountry"`
	OriginCountryDefault string  `json:"originCountryDefault" binding:"required"`
	Incoterm             string  `json:"incoterm" binding:"required"`
	Currency             string  `json:"currency" binding:"required"`
	ImportDate           *string `json:"importDate"`
	FxRateToGBP          *string `json:"fxRateToGbp"`
	FxRateToEUR          *string `json:"fxRateToEur"`
}

// UpdateShipmentRequest carries optional shipment field updates
type UpdateShipmentRequest struct {
	Direction            *string `json:"direction"`
	DestinationCountry   *string `json:"destinationCountry"`
	OriginCountryDefault *string `json:"originCountryDefault"`
	Incoterm             *string `json:"incoterm"`
	Currency             *string `json:"currency"`
	ImportDate           *string `json:"importDate"`
	FxRateToGBP          *string `json:"fxRateToGbp"`
	FxRateToEUR          *string `json:"fxRateToEur"`
}

// ItemRequest is the payload for creating or updating a shipment item
type ItemRequest struct {
	Description    string  `json:"description" binding:"required"`
	HSCode         string  `json:"hsCode" binding:"required"`
	OriginCountry  string  `json:"originCountry" binding:"required"`
	AdditionalCode *string `json:"additionalCode"`
	Quantity       string  `json:"quantity" binding:"required"`
	UnitPrice      string  `json:"unitPrice" binding:"required"`
	WeightNetKg    *string `json:"weightNetKg"`
}

// CostsRequest is the payload for upserting shipment costs
type CostsRequest struct {
	FreightAmount         *string `json:"freightAmount"`
	InsuranceAmount       *string `json:"insuranceAmount"`
	BrokerageAmount       *string `json:"brokerageAmount"`
	PortFeesAmount        *string `json:"portFeesAmount"`
	InlandTransportAmount *string `json:"inlandTransportAmount"`
	OtherIncidentalAmount *string `json:"otherIncidentalAmount"`
	Notes                 *string `json:"notes"`
}

// ImportSummary reports the outcome of a TARIC snapshot import
type ImportSummary struct {
	SnapshotID   uuid.UUID `json:"snapshotId"`
	SnapshotDate string    `json:"snapshotDate"`
	FilesHash    string    `json:"filesHash"`
	Goods        int       `json:"goods"`
	Measures     int       `json:"measures"`
	GeoAreas     int       `json:"geoAreas"`
	Regulations  int       `json:"regulations"`
	Reused       bool      `json:"reused"`
}

// ErrorResponse is the uniform error body for HTTP handlers
type ErrorResponse struct {
	Error string `json:"error"`
}
