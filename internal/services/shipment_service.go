package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"landed-cost-service/internal/models"
	"landed-cost-service/internal/money"
	"landed-cost-service/internal/repository"
)

// ErrInvalidInput marks validation failures the HTTP layer maps to 400
var ErrInvalidInput = errors.New("invalid input")

// ShipmentService owns the shipment lifecycle: CRUD for shipments,
// items and costs, with status transitions. Any mutation of a
// CALCULATED shipment returns it to READY so the stale calculation is
// visibly outdated.
type ShipmentService struct {
	shipments repository.ShipmentRepository
	log       *logrus.Entry
}

func NewShipmentService(shipments repository.ShipmentRepository, log *logrus.Logger) *ShipmentService {
	return &ShipmentService{
		shipments: shipments,
		log:       log.WithField("component", "shipment_service"),
	}
}

func (s *ShipmentService) Create(ctx context.Context, userID uuid.UUID, req models.CreateShipmentRequest) (*models.Shipment, error) {
	if !models.ValidDirection(req.Direction) {
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, req.Direction)
	}
	if !models.ValidIncoterm(strings.ToUpper(req.Incoterm)) {
		return nil, fmt.Errorf("%w: unknown incoterm %q", ErrInvalidInput, req.Incoterm)
	}
	currency := money.NormalizeCurrency(req.Currency)
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidInput)
	}

	shipment := &models.Shipment{
		UserID:               userID,
		Direction:            models.Direction(req.Direction),
		DestinationCountry:   normalizeCountryPtr(req.DestinationCountry),
		OriginCountryDefault: strings.ToUpper(strings.TrimSpace(req.OriginCountryDefault)),
		Incoterm:             models.Incoterm(strings.ToUpper(req.Incoterm)),
		Currency:             currency,
		Status:               models.ShipmentStatusDraft,
	}

	var err error
	if shipment.ImportDate, err = parseDatePtr(req.ImportDate); err != nil {
		return nil, err
	}
	if shipment.FxRateToGBP, err = parseDecimalPtr(req.FxRateToGBP, "fxRateToGbp"); err != nil {
		return nil, err
	}
	if shipment.FxRateToEUR, err = parseDecimalPtr(req.FxRateToEUR, "fxRateToEur"); err != nil {
		return nil, err
	}

	if err := s.shipments.Create(ctx, shipment); err != nil {
		return nil, err
	}
	s.log.WithField("shipment_id", shipment.ID).Info("shipment created")
	return shipment, nil
}

func (s *ShipmentService) List(ctx context.Context, userID uuid.UUID) ([]models.Shipment, error) {
	return s.shipments.ListByUser(ctx, userID)
}

func (s *ShipmentService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Shipment, error) {
	return s.shipments.GetWithDetails(ctx, userID, id)
}

func (s *ShipmentService) Update(ctx context.Context, userID, id uuid.UUID, req models.UpdateShipmentRequest) (*models.Shipment, error) {
	shipment, err := s.shipments.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Direction != nil {
		if !models.ValidDirection(*req.Direction) {
			return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, *req.Direction)
		}
		shipment.Direction = models.Direction(*req.Direction)
	}
	if req.Incoterm != nil {
		upper := strings.ToUpper(*req.Incoterm)
		if !models.ValidIncoterm(upper) {
			return nil, fmt.Errorf("%w: unknown incoterm %q", ErrInvalidInput, *req.Incoterm)
		}
		shipment.Incoterm = models.Incoterm(upper)
	}
	if req.Currency != nil {
		currency := money.NormalizeCurrency(*req.Currency)
		if len(currency) != 3 {
			return nil, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidInput)
		}
		shipment.Currency = currency
	}
	if req.DestinationCountry != nil {
		shipment.DestinationCountry = normalizeCountryPtr(req.DestinationCountry)
	}
	if req.OriginCountryDefault != nil {
		shipment.OriginCountryDefault = strings.ToUpper(strings.TrimSpace(*req.OriginCountryDefault))
	}
	if req.ImportDate != nil {
		if shipment.ImportDate, err = parseDatePtr(req.ImportDate); err != nil {
			return nil, err
		}
	}
	if req.FxRateToGBP != nil {
		if shipment.FxRateToGBP, err = parseDecimalPtr(req.FxRateToGBP, "fxRateToGbp"); err != nil {
			return nil, err
		}
	}
	if req.FxRateToEUR != nil {
		if shipment.FxRateToEUR, err = parseDecimalPtr(req.FxRateToEUR, "fxRateToEur"); err != nil {
			return nil, err
		}
	}

	shipment.Status = afterMutation(shipment.Status)
	if err := s.shipments.Update(ctx, shipment); err != nil {
		return nil, err
	}
	return shipment, nil
}

func (s *ShipmentService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.shipments.Delete(ctx, userID, id)
}

func (s *ShipmentService) AddItem(ctx context.Context, userID, shipmentID uuid.UUID, req models.ItemRequest) (*models.ShipmentItem, error) {
	shipment, err := s.shipments.GetByID(ctx, userID, shipmentID)
	if err != nil {
		return nil, err
	}

	item, err := buildItem(shipmentID, req)
	if err != nil {
		return nil, err
	}
	if err := s.shipments.AddItem(ctx, item); err != nil {
		return nil, err
	}
	if err := s.revertCalculated(ctx, shipment); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *ShipmentService) UpdateItem(ctx context.Context, userID, shipmentID, itemID uuid.UUID, req models.ItemRequest) (*models.ShipmentItem, error) {
	shipment, err := s.shipments.GetByID(ctx, userID, shipmentID)
	if err != nil {
		return nil, err
	}
	existing, err := s.shipments.GetItem(ctx, shipmentID, itemID)
	if err != nil {
		return nil, err
	}

	updated, err := buildItem(shipmentID, req)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	if err := s.shipments.UpdateItem(ctx, updated); err != nil {
		return nil, err
	}
	if err := s.revertCalculated(ctx, shipment); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *ShipmentService) DeleteItem(ctx context.Context, userID, shipmentID, itemID uuid.UUID) error {
	shipment, err := s.shipments.GetByID(ctx, userID, shipmentID)
	if err != nil {
		return err
	}
	if err := s.shipments.DeleteItem(ctx, shipmentID, itemID); err != nil {
		return err
	}
	return s.revertCalculated(ctx, shipment)
}

// UpsertCosts replaces the cost inputs for a shipment. The estimated
// flag always resets: it only ever means "auto-computed during the last
// calculation", never a stale leftover from an earlier run.
func (s *ShipmentService) UpsertCosts(ctx context.Context, userID, shipmentID uuid.UUID, req models.CostsRequest) (*models.ShipmentCosts, error) {
	shipment, err := s.shipments.GetByID(ctx, userID, shipmentID)
	if err != nil {
		return nil, err
	}

	costs := &models.ShipmentCosts{ShipmentID: shipmentID, InsuranceIsEstimated: false}
	fields := []struct {
		src  *string
		dst  **decimal.Decimal
		name string
	}{
		{req.FreightAmount, &costs.FreightAmount, "freightAmount"},
		{req.InsuranceAmount, &costs.InsuranceAmount, "insuranceAmount"},
		{req.BrokerageAmount, &costs.BrokerageAmount, "brokerageAmount"},
		{req.PortFeesAmount, &costs.PortFeesAmount, "portFeesAmount"},
		{req.InlandTransportAmount, &costs.InlandTransportAmount, "inlandTransportAmount"},
		{req.OtherIncidentalAmount, &costs.OtherIncidentalAmount, "otherIncidentalAmount"},
	}
	for _, f := range fields {
		v, err := parseDecimalPtr(f.src, f.name)
		if err != nil {
			return nil, err
		}
		if v != nil && v.IsNegative() {
			return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalidInput, f.name)
		}
		*f.dst = v
	}
	if req.Notes != nil {
		costs.Notes = *req.Notes
	}

	if err := s.shipments.UpsertCosts(ctx, costs); err != nil {
		return nil, err
	}
	if err := s.revertCalculated(ctx, shipment); err != nil {
		return nil, err
	}
	return costs, nil
}

func (s *ShipmentService) GetCosts(ctx context.Context, userID, shipmentID uuid.UUID) (*models.ShipmentCosts, error) {
	if _, err := s.shipments.GetByID(ctx, userID, shipmentID); err != nil {
		return nil, err
	}
	return s.shipments.GetCosts(ctx, shipmentID)
}

func (s *ShipmentService) GetCalculation(ctx context.Context, userID, shipmentID uuid.UUID) (*models.Calculation, error) {
	if _, err := s.shipments.GetByID(ctx, userID, shipmentID); err != nil {
		return nil, err
	}
	return s.shipments.GetCalculation(ctx, shipmentID)
}

func (s *ShipmentService) revertCalculated(ctx context.Context, shipment *models.Shipment) error {
	next := afterMutation(shipment.Status)
	if next == shipment.Status {
		return nil
	}
	return s.shipments.UpdateStatus(ctx, shipment.ID, next)
}

// afterMutation maps a post-edit status: a calculated shipment drops
// back to READY, everything else keeps its status
func afterMutation(status models.ShipmentStatus) models.ShipmentStatus {
	if status == models.ShipmentStatusCalculated {
		return models.ShipmentStatusReady
	}
	return status
}

func buildItem(shipmentID uuid.UUID, req models.ItemRequest) (*models.ShipmentItem, error) {
	hs := models.NormalizeGoodsCode(req.HSCode)
	if hs == "" || len(hs) > 10 {
		return nil, fmt.Errorf("%w: hsCode must contain 1-10 digits", ErrInvalidInput)
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil || quantity.IsNegative() {
		return nil, fmt.Errorf("%w: quantity must be a non-negative number", ErrInvalidInput)
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || unitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unitPrice must be a non-negative number", ErrInvalidInput)
	}
	weight, err := parseDecimalPtr(req.WeightNetKg, "weightNetKg")
	if err != nil {
		return nil, err
	}

	goodsValue := quantity.Mul(unitPrice).Round(4)
	item := &models.ShipmentItem{
		ShipmentID:    shipmentID,
		Description:   strings.TrimSpace(req.Description),
		HSCode:        hs,
		OriginCountry: strings.ToUpper(strings.TrimSpace(req.OriginCountry)),
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		GoodsValue:    &goodsValue,
		WeightNetKg:   weight,
	}
	if req.AdditionalCode != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.AdditionalCode))
		if code != "" {
			item.AdditionalCode = &code
		}
	}
	return item, nil
}

func parseDecimalPtr(s *string, field string) (*decimal.Decimal, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*s))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid number", ErrInvalidInput, field)
	}
	return &d, nil
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", strings.TrimSpace(*s))
	if err != nil {
		return nil, fmt.Errorf("%w: importDate must be YYYY-MM-DD", ErrInvalidInput)
	}
	return &d, nil
}

func normalizeCountryPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*s))
	if v == "" {
		return nil
	}
	return &v
}
