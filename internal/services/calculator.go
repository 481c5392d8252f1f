package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"landed-cost-service/internal/models"
	"landed-cost-service/internal/money"
	"landed-cost-service/internal/providers"
	"landed-cost-service/internal/repository"
)

// EngineVersion is stamped on every persisted calculation
const EngineVersion = "1.0.0"

var insuranceEstimateRate = decimal.RequireFromString("0.005")

// DutySource resolves UK duty rates for a commodity code
type DutySource interface {
	Rate(ctx context.Context, commodityCode string, shipmentID *uuid.UUID) (providers.DutyRateResult, error)
}

// VatSource resolves standard VAT rates per country
type VatSource interface {
	StandardRate(ctx context.Context, countryCode string, shipmentID *uuid.UUID) (providers.VatRateResult, error)
}

// FxSource resolves base→quote FX rates
type FxSource interface {
	Rate(ctx context.Context, base, quote string, shipmentID *uuid.UUID) (providers.FxRateResult, error)
}

// CalculationNotifier publishes completed calculations; implementations
// must never fail the calculation.
type CalculationNotifier interface {
	CalculationCompleted(ctx context.Context, shipmentID uuid.UUID, result *models.CalculationResult)
}

// Calculator orchestrates the landed-cost computation for a shipment
type Calculator struct {
	shipments repository.ShipmentRepository
	resolver  TaricResolver
	ukDuty    DutySource
	vat       VatSource
	fx        FxSource
	notifier  CalculationNotifier
	log       *logrus.Entry

	now func() time.Time
}

func NewCalculator(shipments repository.ShipmentRepository, resolver TaricResolver,
	ukDuty DutySource, vat VatSource, fx FxSource, notifier CalculationNotifier,
	log *logrus.Logger) *Calculator {
	return &Calculator{
		shipments: shipments,
		resolver:  resolver,
		ukDuty:    ukDuty,
		vat:       vat,
		fx:        fx,
		notifier:  notifier,
		log:       log.WithField("component", "calculator"),
		now:       time.Now,
	}
}

// Calculate computes and persists the landed cost of a shipment. Data
// quality problems degrade to warnings; only infrastructure failures
// return an error.
func (c *Calculator) Calculate(ctx context.Context, userID, shipmentID uuid.UUID) (*models.CalculationResult, error) {
	log := c.log.WithField("shipment_id", shipmentID)

	shipment, err := c.shipments.GetWithDetails(ctx, userID, shipmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.CalculationResult{
			Status:        models.CalcStatusNotFound,
			Message:       "Shipment not found.",
			EngineVersion: EngineVersion,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var assumptions, warnings []string

	if err := c.materializeGoodsValues(ctx, shipment); err != nil {
		return nil, err
	}

	// incoterm gating
	costs := shipment.Costs
	if shipment.Incoterm == models.IncotermEXW || shipment.Incoterm == models.IncotermFOB {
		var required []string
		if costs == nil || costs.FreightAmount == nil {
			required = append(required, "freight_amount")
		}
		if costs == nil || costs.InsuranceAmount == nil {
			required = append(required, "insurance_amount")
		}
		if len(required) > 0 {
			if err := c.shipments.UpdateStatus(ctx, shipment.ID, models.ShipmentStatusNeedsInput); err != nil {
				return nil, err
			}
			return &models.CalculationResult{
				Status:         models.CalcStatusNeedsInput,
				Message:        "Freight and insurance are required for EXW/FOB to compute customs value.",
				RequiredFields: required,
				EngineVersion:  EngineVersion,
			}, nil
		}
	}
	switch shipment.Incoterm {
	case models.IncotermCIF, models.IncotermCFR, models.IncotermDDP:
		assumptions = append(assumptions, "Incoterm implies shipping/insurance included unless overridden.")
	}

	goodsValueLocal := decimal.Zero
	for _, item := range shipment.Items {
		if item.GoodsValue != nil {
			goodsValueLocal = goodsValueLocal.Add(*item.GoodsValue)
		}
	}

	// insurance estimation
	if costs == nil {
		costs = &models.ShipmentCosts{ShipmentID: shipment.ID}
	}
	if costs.InsuranceAmount == nil {
		estimate := money.Round4(goodsValueLocal.Mul(insuranceEstimateRate))
		costs.InsuranceAmount = &estimate
		costs.InsuranceIsEstimated = true
		if err := c.shipments.UpsertCosts(ctx, costs); err != nil {
			return nil, err
		}
		assumptions = append(assumptions, "Insurance estimated at 0.5% of goods value.")
	}

	fxRate, fxWarning, err := c.resolveFx(ctx, shipment)
	if err != nil {
		return nil, err
	}
	if fxWarning != "" {
		warnings = append(warnings, fxWarning)
	}

	// quote-currency totals
	itemValues := make([]decimal.Decimal, len(shipment.Items))
	goodsTotal := decimal.Zero
	for i, item := range shipment.Items {
		v := decimal.Zero
		if item.GoodsValue != nil {
			v = money.Convert(*item.GoodsValue, fxRate)
		}
		itemValues[i] = v
		goodsTotal = goodsTotal.Add(v)
	}
	freight := convertOptional(costs.FreightAmount, fxRate)
	insurance := convertOptional(costs.InsuranceAmount, fxRate)
	incidental := convertOptional(costs.BrokerageAmount, fxRate).
		Add(convertOptional(costs.PortFeesAmount, fxRate)).
		Add(convertOptional(costs.InlandTransportAmount, fxRate)).
		Add(convertOptional(costs.OtherIncidentalAmount, fxRate))

	customsValue := goodsTotal.Add(freight).Add(insurance)

	asOf := c.now().UTC().Truncate(24 * time.Hour)
	if shipment.ImportDate != nil {
		asOf = *shipment.ImportDate
	}

	// per-item loop is serial: duty totals and warnings accumulate in order
	dutyTotal := decimal.Zero
	totalQuantity := decimal.Zero
	perItem := make([]models.ItemBreakdown, 0, len(shipment.Items))
	for i, item := range shipment.Items {
		totalQuantity = totalQuantity.Add(item.Quantity)
		ratio := money.Ratio(itemValues[i], goodsTotal)
		itemCustoms := money.Round4(itemValues[i].Add(freight.Mul(ratio)).Add(insurance.Mul(ratio)))

		breakdown := models.ItemBreakdown{
			ItemID:         item.ID,
			HSCode:         item.HSCode,
			CustomsValue:   itemCustoms,
			DutyComponents: []models.DutyComponent{},
		}

		switch shipment.Direction {
		case models.DirectionImportEU:
			if err := c.applyEUDuty(ctx, shipment, item, itemCustoms, asOf, &breakdown, &warnings); err != nil {
				return nil, err
			}
		case models.DirectionImportUK:
			if err := c.applyUKDuty(ctx, shipment.ID, item, itemCustoms, &breakdown, &warnings); err != nil {
				return nil, err
			}
		default:
			// exports carry no import duty
		}

		dutyTotal = dutyTotal.Add(breakdown.DutyAmount)
		perItem = append(perItem, breakdown)
	}
	dutyTotal = money.Round4(dutyTotal)

	vatRate, vatWarning, err := c.resolveVat(ctx, shipment)
	if err != nil {
		return nil, err
	}
	if vatWarning != "" {
		warnings = append(warnings, vatWarning)
	}

	otherDuties := decimal.Zero
	vatBase := money.Round4(customsValue.Add(dutyTotal).Add(otherDuties).Add(incidental))
	vatTotal := money.Round4(vatBase.Mul(vatRate))

	authoritiesTotal := dutyTotal.Add(vatTotal).Add(otherDuties)
	landedTotal := money.Round4(goodsTotal.Add(freight).Add(insurance).Add(incidental).Add(authoritiesTotal))

	divisor := totalQuantity
	if divisor.LessThanOrEqual(decimal.Zero) {
		warnings = append(warnings, "Total quantity is zero; per-unit cost uses 1 as divisor.")
		divisor = decimal.NewFromInt(1)
	}
	perUnit := money.Round4(landedTotal.Div(divisor))

	calc := &models.Calculation{
		ShipmentID:        shipment.ID,
		CustomsValue:      money.Round4(customsValue),
		DutyTotal:         dutyTotal,
		VatBase:           vatBase,
		VatTotal:          vatTotal,
		OtherDutiesTotal:  otherDuties,
		AuthoritiesTotal:  money.Round4(authoritiesTotal),
		LandedCostTotal:   landedTotal,
		LandedCostPerUnit: perUnit,
		Assumptions:       mustJSON(assumptions),
		Warnings:          mustJSON(warnings),
		EngineVersion:     EngineVersion,
	}
	if err := c.shipments.UpsertCalculation(ctx, calc); err != nil {
		return nil, err
	}
	if err := c.shipments.UpdateStatus(ctx, shipment.ID, models.ShipmentStatusCalculated); err != nil {
		return nil, err
	}

	result := &models.CalculationResult{
		Status:   models.CalcStatusOK,
		Currency: shipment.QuoteCurrency(),
		FxRate:   &fxRate,
		Breakdown: &models.CalculationBreakdown{
			CustomsValue:      calc.CustomsValue,
			DutyTotal:         calc.DutyTotal,
			VatBase:           calc.VatBase,
			VatTotal:          calc.VatTotal,
			OtherDutiesTotal:  calc.OtherDutiesTotal,
			AuthoritiesTotal:  calc.AuthoritiesTotal,
			LandedCostTotal:   calc.LandedCostTotal,
			LandedCostPerUnit: calc.LandedCostPerUnit,
		},
		PerItem:       perItem,
		Assumptions:   assumptions,
		Warnings:      warnings,
		EngineVersion: EngineVersion,
	}

	if c.notifier != nil {
		c.notifier.CalculationCompleted(ctx, shipment.ID, result)
	}
	log.WithFields(logrus.Fields{
		"landed_cost_total": calc.LandedCostTotal.String(),
		"warnings":          len(warnings),
	}).Info("calculation completed")
	return result, nil
}

// materializeGoodsValues caches quantity × unit_price on items that have
// not been priced yet
func (c *Calculator) materializeGoodsValues(ctx context.Context, shipment *models.Shipment) error {
	for i := range shipment.Items {
		item := &shipment.Items[i]
		if item.GoodsValue != nil {
			continue
		}
		v := money.Round4(item.Quantity.Mul(item.UnitPrice))
		item.GoodsValue = &v
		if err := c.shipments.UpdateItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// resolveFx picks the conversion rate into the quote currency: identity,
// then the persisted shipment override, then the FX provider. A missing
// rate degrades to 1 with a warning; a fresh rate is persisted back.
func (c *Calculator) resolveFx(ctx context.Context, shipment *models.Shipment) (decimal.Decimal, string, error) {
	base := money.NormalizeCurrency(shipment.Currency)
	quote := shipment.QuoteCurrency()
	if base == quote {
		return decimal.NewFromInt(1), "", nil
	}

	override := shipment.FxRateToEUR
	if quote == "GBP" {
		override = shipment.FxRateToGBP
	}
	if override != nil {
		return *override, "", nil
	}

	res, err := c.fx.Rate(ctx, base, quote, &shipment.ID)
	if err != nil {
		return decimal.Decimal{}, "", err
	}
	if res.Missing || res.Rate == nil {
		return decimal.NewFromInt(1), "FX rate unavailable; calculation uses 1.0.", nil
	}

	if quote == "GBP" {
		shipment.FxRateToGBP = res.Rate
	} else {
		shipment.FxRateToEUR = res.Rate
	}
	if err := c.shipments.Update(ctx, shipment); err != nil {
		return decimal.Decimal{}, "", err
	}
	return *res.Rate, "", nil
}

func (c *Calculator) applyEUDuty(ctx context.Context, shipment *models.Shipment, item models.ShipmentItem,
	itemCustoms decimal.Decimal, asOf time.Time, breakdown *models.ItemBreakdown, warnings *[]string) error {
	resolved, err := c.resolver.Resolve(ctx, item.HSCode, item.OriginCountry, asOf, item.AdditionalCode)
	if err != nil {
		return err
	}
	if resolved.Note != "" {
		appendUnique(warnings, resolved.Note)
	}

	duty := decimal.Zero
	if resolved.Effective != nil {
		rate := resolved.Effective.AdValoremRate
		breakdown.DutyRate = &rate
		amount := money.Round4(itemCustoms.Mul(rate))
		duty = duty.Add(amount)
		breakdown.DutyComponents = append(breakdown.DutyComponents, models.DutyComponent{
			Type:   models.DutyKindAdValorem,
			Rate:   &rate,
			Amount: amount,
		})
	} else {
		*warnings = append(*warnings, fmt.Sprintf("No TARIC duty rate found for HS %s; treated as 0.", item.HSCode))
	}

	for _, m := range resolved.Measures {
		if m.AdditionalCodeRequired {
			*warnings = append(*warnings, fmt.Sprintf("Additional code required for measure %s on HS %s.", m.MeasureSID, item.HSCode))
		}
		for _, comp := range m.Components {
			switch {
			case m.AntiDumping && comp.Type == models.DutyKindAdValorem && comp.Rate != nil:
				amount := money.Round4(itemCustoms.Mul(*comp.Rate))
				duty = duty.Add(amount)
				breakdown.DutyComponents = append(breakdown.DutyComponents, models.DutyComponent{
					Type:       models.DutyKindAntiDumping,
					Rate:       comp.Rate,
					Amount:     amount,
					Expression: comp.Expression,
				})
			case comp.Type == models.DutyKindSpecific:
				amount, reason := ComputeSpecificDuty(comp.Expression, item.WeightNetKg)
				if amount == nil {
					*warnings = append(*warnings, reason)
					continue
				}
				duty = duty.Add(*amount)
				breakdown.DutyComponents = append(breakdown.DutyComponents, models.DutyComponent{
					Type:       models.DutyKindSpecific,
					Amount:     *amount,
					Expression: comp.Expression,
				})
			}
		}
	}

	breakdown.DutyAmount = money.Round4(duty)
	return nil
}

func (c *Calculator) applyUKDuty(ctx context.Context, shipmentID uuid.UUID, item models.ShipmentItem,
	itemCustoms decimal.Decimal, breakdown *models.ItemBreakdown, warnings *[]string) error {
	res, err := c.ukDuty.Rate(ctx, item.HSCode, &shipmentID)
	if err != nil {
		return err
	}

	rate := decimal.Zero
	switch {
	case res.Missing || res.Rate == nil:
		*warnings = append(*warnings, fmt.Sprintf("Missing duty rate for HS %s; treated as 0.", item.HSCode))
	default:
		rate = *res.Rate
		if res.IsEstimated {
			*warnings = append(*warnings, fmt.Sprintf("Duty rate for HS %s is estimated.", item.HSCode))
		}
	}

	breakdown.DutyRate = &rate
	breakdown.DutyAmount = money.Round4(itemCustoms.Mul(rate))
	breakdown.DutyComponents = append(breakdown.DutyComponents, models.DutyComponent{
		Type:   models.DutyKindAdValorem,
		Rate:   &rate,
		Amount: breakdown.DutyAmount,
	})
	return nil
}

// resolveVat returns the applicable VAT rate and an optional warning
func (c *Calculator) resolveVat(ctx context.Context, shipment *models.Shipment) (decimal.Decimal, string, error) {
	var country string
	switch shipment.Direction {
	case models.DirectionImportUK:
		country = "GB"
	case models.DirectionImportEU:
		if shipment.DestinationCountry == nil || *shipment.DestinationCountry == "" {
			return decimal.Zero, "Missing VAT rate; treated as 0.", nil
		}
		country = *shipment.DestinationCountry
	default:
		return decimal.Zero, "", nil
	}

	res, err := c.vat.StandardRate(ctx, country, &shipment.ID)
	if err != nil {
		return decimal.Decimal{}, "", err
	}
	if res.Missing || res.Rate == nil {
		return decimal.Zero, "Missing VAT rate; treated as 0.", nil
	}
	return *res.Rate, "", nil
}

func convertOptional(v *decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return money.Convert(*v, rate)
}

func appendUnique(list *[]string, s string) {
	for _, existing := range *list {
		if existing == s {
			return
		}
	}
	*list = append(*list, s)
}

func mustJSON(list []string) datatypes.JSON {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		raw = []byte("[]")
	}
	return datatypes.JSON(raw)
}
