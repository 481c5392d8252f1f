package models

// Direction represents the trade direction of a shipment
type Direction string

const (
	DirectionImportUK Direction = "IMPORT_UK"
	DirectionImportEU Direction = "IMPORT_EU"
	DirectionExportUK Direction = "EXPORT_UK"
	DirectionExportEU Direction = "EXPORT_EU"
)

// ShipmentStatus represents the lifecycle state of a shipment
type ShipmentStatus string

const (
	ShipmentStatusDraft      ShipmentStatus = "DRAFT"
	ShipmentStatusNeedsInput ShipmentStatus = "NEEDS_INPUT"
	ShipmentStatusReady      ShipmentStatus = "READY"
	ShipmentStatusCalculated ShipmentStatus = "CALCULATED"
)

// Incoterm represents the trade term governing who pays freight and insurance
type Incoterm string

const (
	IncotermEXW Incoterm = "EXW"
	IncotermFOB Incoterm = "FOB"
	IncotermCIF Incoterm = "CIF"
	IncotermCFR Incoterm = "CFR"
	IncotermDDP Incoterm = "DDP"
	IncotermFCA Incoterm = "FCA"
	IncotermCPT Incoterm = "CPT"
	IncotermCIP Incoterm = "CIP"
	IncotermDAP Incoterm = "DAP"
)

// ValidIncoterm reports whether s is one of the supported incoterms
func ValidIncoterm(s string) bool {
	switch Incoterm(s) {
	case IncotermEXW, IncotermFOB, IncotermCIF, IncotermCFR, IncotermDDP,
		IncotermFCA, IncotermCPT, IncotermCIP, IncotermDAP:
		return true
	}
	return false
}

// ValidDirection reports whether s is one of the supported directions
func ValidDirection(s string) bool {
	switch Direction(s) {
	case DirectionImportUK, DirectionImportEU, DirectionExportUK, DirectionExportEU:
		return true
	}
	return false
}

// ProviderType identifies the external rate provider a snapshot came from
type ProviderType string

const (
	ProviderUKTariff ProviderType = "UK_TARIFF"
	ProviderEUTaric  ProviderType = "EU_TARIC"
	ProviderVAT      ProviderType = "VAT"
	ProviderFX       ProviderType = "FX"
)
