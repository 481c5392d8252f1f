package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"landed-cost-service/internal/models"
)

func strPtr(s string) *string { return &s }

func TestCreateShipmentValidation(t *testing.T) {
	svc := NewShipmentService(&mockShipmentRepo{}, resolverLogger())
	userID := uuid.New()

	cases := []struct {
		name string
		req  models.CreateShipmentRequest
	}{
		{"bad direction", models.CreateShipmentRequest{
			Direction: "SIDEWAYS", OriginCountryDefault: "CN", Incoterm: "FOB", Currency: "USD",
		}},
		{"bad incoterm", models.CreateShipmentRequest{
			Direction: "IMPORT_UK", OriginCountryDefault: "CN", Incoterm: "XXX", Currency: "USD",
		}},
		{"bad currency", models.CreateShipmentRequest{
			Direction: "IMPORT_UK", OriginCountryDefault: "CN", Incoterm: "FOB", Currency: "DOLLARS",
		}},
		{"bad import date", models.CreateShipmentRequest{
			Direction: "IMPORT_UK", OriginCountryDefault: "CN", Incoterm: "FOB", Currency: "USD",
			ImportDate: strPtr("01/06/2025"),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), userID, tc.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCreateShipmentNormalizes(t *testing.T) {
	repo := &mockShipmentRepo{}
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	svc := NewShipmentService(repo, resolverLogger())

	shipment, err := svc.Create(context.Background(), uuid.New(), models.CreateShipmentRequest{
		Direction:            "IMPORT_UK",
		OriginCountryDefault: " cn ",
		Incoterm:             "fob",
		Currency:             "£",
		ImportDate:           strPtr("2025-06-01"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.ShipmentStatusDraft, shipment.Status)
	assert.Equal(t, "CN", shipment.OriginCountryDefault)
	assert.Equal(t, models.Incoterm("FOB"), shipment.Incoterm)
	assert.Equal(t, "GBP", shipment.Currency)
	require.NotNil(t, shipment.ImportDate)
}

func TestUpdateRevertsCalculatedStatus(t *testing.T) {
	repo := &mockShipmentRepo{}
	userID, id := uuid.New(), uuid.New()
	repo.On("GetByID", mock.Anything, userID, id).Return(&models.Shipment{
		ID: id, UserID: userID, Status: models.ShipmentStatusCalculated,
		Direction: models.DirectionImportUK, Incoterm: models.IncotermFOB, Currency: "USD",
	}, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.Shipment) bool {
		return s.Status == models.ShipmentStatusReady
	})).Return(nil)
	svc := NewShipmentService(repo, resolverLogger())

	shipment, err := svc.Update(context.Background(), userID, id, models.UpdateShipmentRequest{
		Currency: strPtr("EUR"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentStatusReady, shipment.Status)
	assert.Equal(t, "EUR", shipment.Currency)
	repo.AssertExpectations(t)
}

func TestAddItemValidatesHSCode(t *testing.T) {
	repo := &mockShipmentRepo{}
	userID, id := uuid.New(), uuid.New()
	repo.On("GetByID", mock.Anything, userID, id).Return(&models.Shipment{
		ID: id, UserID: userID, Status: models.ShipmentStatusDraft,
	}, nil)
	svc := NewShipmentService(repo, resolverLogger())

	_, err := svc.AddItem(context.Background(), userID, id, models.ItemRequest{
		Description: "widgets", HSCode: "no-digits", OriginCountry: "CN",
		Quantity: "10", UnitPrice: "2.50",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddItem(context.Background(), userID, id, models.ItemRequest{
		Description: "widgets", HSCode: "123456789012", OriginCountry: "CN",
		Quantity: "10", UnitPrice: "2.50",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddItemMaterializesGoodsValue(t *testing.T) {
	repo := &mockShipmentRepo{}
	userID, id := uuid.New(), uuid.New()
	repo.On("GetByID", mock.Anything, userID, id).Return(&models.Shipment{
		ID: id, UserID: userID, Status: models.ShipmentStatusDraft,
	}, nil)
	repo.On("AddItem", mock.Anything, mock.Anything).Return(nil)
	svc := NewShipmentService(repo, resolverLogger())

	item, err := svc.AddItem(context.Background(), userID, id, models.ItemRequest{
		Description:    "widgets",
		HSCode:         "1234.56.78.90",
		OriginCountry:  "cn",
		AdditionalCode: strPtr(" b999 "),
		Quantity:       "10",
		UnitPrice:      "2.505",
	})
	require.NoError(t, err)

	assert.Equal(t, "1234567890", item.HSCode)
	assert.Equal(t, "CN", item.OriginCountry)
	require.NotNil(t, item.AdditionalCode)
	assert.Equal(t, "B999", *item.AdditionalCode)
	require.NotNil(t, item.GoodsValue)
	assert.True(t, item.GoodsValue.Equal(dec("25.05")))
}

func TestUpsertCostsRejectsNegative(t *testing.T) {
	repo := &mockShipmentRepo{}
	userID, id := uuid.New(), uuid.New()
	repo.On("GetByID", mock.Anything, userID, id).Return(&models.Shipment{
		ID: id, UserID: userID, Status: models.ShipmentStatusDraft,
	}, nil)
	svc := NewShipmentService(repo, resolverLogger())

	_, err := svc.UpsertCosts(context.Background(), userID, id, models.CostsRequest{
		FreightAmount: strPtr("-10"),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpsertCostsResetsEstimatedFlag(t *testing.T) {
	repo := &mockShipmentRepo{}
	userID, id := uuid.New(), uuid.New()
	repo.On("GetByID", mock.Anything, userID, id).Return(&models.Shipment{
		ID: id, UserID: userID, Status: models.ShipmentStatusCalculated,
	}, nil)
	repo.On("UpsertCosts", mock.Anything, mock.MatchedBy(func(c *models.ShipmentCosts) bool {
		return !c.InsuranceIsEstimated && c.InsuranceAmount != nil
	})).Return(nil)
	repo.On("UpdateStatus", mock.Anything, id, models.ShipmentStatusReady).Return(nil)
	svc := NewShipmentService(repo, resolverLogger())

	costs, err := svc.UpsertCosts(context.Background(), userID, id, models.CostsRequest{
		InsuranceAmount: strPtr("12.50"),
	})
	require.NoError(t, err)
	assert.False(t, costs.InsuranceIsEstimated)
	repo.AssertExpectations(t)
}
