package models

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaricSnapshot marks one imported TARIC dataset. Exactly one snapshot
// is active at a time; resolution always runs against the active one.
type TaricSnapshot struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SnapshotDate time.Time `json:"snapshotDate" gorm:"type:date;not null;uniqueIndex:uq_taric_snapshot,priority:1"`
	Source       string    `json:"source" gorm:"type:varchar(64);not null"`
	FilesHash    string    `json:"filesHash" gorm:"type:varchar(64);not null;uniqueIndex:uq_taric_snapshot,priority:2"`
	LoadedAt     time.Time `json:"loadedAt" gorm:"autoCreateTime"`
	Active       bool      `json:"active" gorm:"not null;default:false;index"`
}

// GoodsNomenclature is a node of the goods-code hierarchy
type GoodsNomenclature struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SnapshotID uuid.UUID `json:"snapshotId" gorm:"type:uuid;not null;index:idx_goods_code,priority:1"`

	GoodsCode     string     `json:"goodsCode" gorm:"type:varchar(10);not null;index:idx_goods_code,priority:2"`
	ProductLine   string     `json:"productLine" gorm:"type:varchar(2)"`
	ValidityStart *time.Time `json:"validityStart" gorm:"type:date"`
	ValidityEnd   *time.Time `json:"validityEnd" gorm:"type:date"`

	Descriptions []GoodsDescription `json:"descriptions,omitempty" gorm:"foreignKey:NomenclatureID"`
}

// GoodsDescription is a language-tagged description of a nomenclature node
type GoodsDescription struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	NomenclatureID uuid.UUID `json:"nomenclatureId" gorm:"type:uuid;not null;index"`
	Language       string    `json:"language" gorm:"type:varchar(2);not null;default:'EN'"`
	Description    string    `json:"description" gorm:"type:text;not null"`
}

// GeoArea is a country or country group referenced by measures
type GeoArea struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SnapshotID uuid.UUID `json:"snapshotId" gorm:"type:uuid;not null;index:idx_geo_code,priority:1"`

	Code        string `json:"code" gorm:"type:varchar(16);not null;index:idx_geo_code,priority:2"`
	IsGroup     bool   `json:"isGroup" gorm:"not null;default:false"`
	Description string `json:"description" gorm:"type:varchar(255)"`
}

// GeoAreaMember links a member country into a geo group by code
type GeoAreaMember struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SnapshotID uuid.UUID `json:"snapshotId" gorm:"type:uuid;not null"`
	GroupCode  string    `json:"groupCode" gorm:"type:varchar(16);not null;index:idx_geo_member,priority:1"`
	MemberCode string    `json:"memberCode" gorm:"type:varchar(16);not null;index:idx_geo_member,priority:2"`

	ValidityStart *time.Time `json:"validityStart" gorm:"type:date"`
	ValidityEnd   *time.Time `json:"validityEnd" gorm:"type:date"`
}

// Measure ties a duty to a goods code, geography and measure type
type Measure struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SnapshotID uuid.UUID `json:"snapshotId" gorm:"type:uuid;not null;index:idx_measure_goods,priority:1"`

	MeasureSID      string  `json:"measureSid" gorm:"type:varchar(16);not null"`
	GoodsCode       string  `json:"goodsCode" gorm:"type:varchar(10);not null;index:idx_measure_goods,priority:2"`
	MeasureTypeID   string  `json:"measureTypeId" gorm:"type:varchar(4);not null"`
	GeoAreaCode     string  `json:"geoAreaCode" gorm:"type:varchar(16);not null"`
	OrderNumber     *string `json:"orderNumber" gorm:"type:varchar(16)"`
	RegulationID    *string `json:"regulationId" gorm:"type:varchar(16)"`
	ReductionIndVal *string `json:"reductionIndicator" gorm:"type:varchar(2)"`

	ValidityStart *time.Time `json:"validityStart" gorm:"type:date"`
	ValidityEnd   *time.Time `json:"validityEnd" gorm:"type:date"`

	DutyExpressions []MeasureDutyExpression `json:"dutyExpressions,omitempty" gorm:"foreignKey:MeasureID"`
	AdditionalCodes []MeasureAdditionalCode `json:"additionalCodes,omitempty" gorm:"foreignKey:MeasureID"`
	Conditions      []MeasureCondition      `json:"conditions,omitempty" gorm:"foreignKey:MeasureID"`
}

// DutyExpression is a reusable duty formula component definition
type DutyExpression struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SnapshotID  uuid.UUID `json:"snapshotId" gorm:"type:uuid;not null;index"`
	Code        string    `json:"code" gorm:"type:varchar(4);not null"`
	Description string    `json:"description" gorm:"type:varchar(255)"`
}

// MeasureDutyExpression is one duty component attached to a measure
type MeasureDutyExpression struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeasureID uuid.UUID `json:"measureId" gorm:"type:uuid;not null;index"`

	ExpressionCode  string           `json:"expressionCode" gorm:"type:varchar(4)"`
	DutyAmount      *decimal.Decimal `json:"dutyAmount" gorm:"type:numeric(18,4)"`
	MonetaryUnit    *string          `json:"monetaryUnit" gorm:"type:varchar(3)"`
	MeasurementUnit *string          `json:"measurementUnit" gorm:"type:varchar(8)"`
	RawExpression   string           `json:"rawExpression" gorm:"type:varchar(255);not null"`
	Sequence        int              `json:"sequence" gorm:"not null;default:0"`
}

// AdditionalCode identifies product subsets within a goods code
type AdditionalCode struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SnapshotID  uuid.UUID `json:"snapshotId" gorm:"type:uuid;not null;index"`
	Code        string    `json:"code" gorm:"type:varchar(8);not null"`
	CodeType    string    `json:"codeType" gorm:"type:varchar(2)"`
	Description string    `json:"description" gorm:"type:varchar(255)"`
}

// MeasureAdditionalCode links a measure to the additional code it requires
type MeasureAdditionalCode struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeasureID      uuid.UUID `json:"measureId" gorm:"type:uuid;not null;index"`
	AdditionalCode string    `json:"additionalCode" gorm:"type:varchar(8);not null"`
}

// MeasureCondition is a certificate/threshold condition on a measure
type MeasureCondition struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	MeasureID uuid.UUID `json:"measureId" gorm:"type:uuid;not null;index"`

	ConditionCode   string           `json:"conditionCode" gorm:"type:varchar(2)"`
	CertificateType *string          `json:"certificateType" gorm:"type:varchar(4)"`
	CertificateCode *string          `json:"certificateCode" gorm:"type:varchar(8)"`
	ActionCode      *string          `json:"actionCode" gorm:"type:varchar(4)"`
	DutyAmount      *decimal.Decimal `json:"dutyAmount" gorm:"type:numeric(18,4)"`
}

// Regulation is the legal act a measure derives from
type Regulation struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SnapshotID uuid.UUID `json:"snapshotId" gorm:"type:uuid;not null;index"`

	RegulationID  string     `json:"regulationId" gorm:"type:varchar(16);not null"`
	RoleType      *string    `json:"roleType" gorm:"type:varchar(2)"`
	OfficialTitle string     `json:"officialTitle" gorm:"type:text"`
	PublishedDate *time.Time `json:"publishedDate" gorm:"type:date"`
}

// TaricResolvedCache is the write-through cache of resolver outcomes,
// unique per (snapshot_date, goods_code, origin, as_of, additional_code).
type TaricResolvedCache struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	SnapshotDate   time.Time `json:"snapshotDate" gorm:"type:date;not null;uniqueIndex:uq_taric_resolved,priority:1"`
	GoodsCode      string    `json:"goodsCode" gorm:"type:varchar(16);not null;uniqueIndex:uq_taric_resolved,priority:2"`
	OriginCountry  string    `json:"originCountry" gorm:"type:varchar(8);not null;uniqueIndex:uq_taric_resolved,priority:3"`
	AsOfDate       time.Time `json:"asOfDate" gorm:"type:date;not null;uniqueIndex:uq_taric_resolved,priority:4"`
	AdditionalCode string    `json:"additionalCode" gorm:"type:varchar(8);not null;default:'';uniqueIndex:uq_taric_resolved,priority:5"`

	ResolvedJSON []byte    `json:"resolvedJson" gorm:"type:jsonb;not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// NormalizeGoodsCode strips everything but digits from a goods code
func NormalizeGoodsCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
