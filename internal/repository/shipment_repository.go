package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"landed-cost-service/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// ShipmentRepository is the persistence surface for shipments and their
// child rows
type ShipmentRepository interface {
	Create(ctx context.Context, s *models.Shipment) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Shipment, error)
	GetWithDetails(ctx context.Context, userID, id uuid.UUID) (*models.Shipment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Shipment, error)
	Update(ctx context.Context, s *models.Shipment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ShipmentStatus) error
	Delete(ctx context.Context, userID, id uuid.UUID) error

	AddItem(ctx context.Context, item *models.ShipmentItem) error
	UpdateItem(ctx context.Context, item *models.ShipmentItem) error
	GetItem(ctx context.Context, shipmentID, itemID uuid.UUID) (*models.ShipmentItem, error)
	DeleteItem(ctx context.Context, shipmentID, itemID uuid.UUID) error

	UpsertCosts(ctx context.Context, costs *models.ShipmentCosts) error
	GetCosts(ctx context.Context, shipmentID uuid.UUID) (*models.ShipmentCosts, error)

	UpsertCalculation(ctx context.Context, calc *models.Calculation) error
	GetCalculation(ctx context.Context, shipmentID uuid.UUID) (*models.Calculation, error)
}

type shipmentRepository struct {
	db *gorm.DB
}

func NewShipmentRepository(db *gorm.DB) ShipmentRepository {
	return &shipmentRepository{db: db}
}

func (r *shipmentRepository) Create(ctx context.Context, s *models.Shipment) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("create shipment: %w", err)
	}
	return nil
}

func (r *shipmentRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Shipment, error) {
	var s models.Shipment
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	return &s, nil
}

func (r *shipmentRepository) GetWithDetails(ctx context.Context, userID, id uuid.UUID) (*models.Shipment, error) {
	var s models.Shipment
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Costs").
		Preload("Calculation").
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get shipment details: %w", err)
	}
	return &s, nil
}

func (r *shipmentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Shipment, error) {
	var shipments []models.Shipment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&shipments).Error
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	return shipments, nil
}

func (r *shipmentRepository) Update(ctx context.Context, s *models.Shipment) error {
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return fmt.Errorf("update shipment: %w", err)
	}
	return nil
}

func (r *shipmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ShipmentStatus) error {
	err := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("update shipment status: %w", err)
	}
	return nil
}

func (r *shipmentRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Shipment{})
	if res.Error != nil {
		return fmt.Errorf("delete shipment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *shipmentRepository) AddItem(ctx context.Context, item *models.ShipmentItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	return nil
}

func (r *shipmentRepository) UpdateItem(ctx context.Context, item *models.ShipmentItem) error {
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func (r *shipmentRepository) GetItem(ctx context.Context, shipmentID, itemID uuid.UUID) (*models.ShipmentItem, error) {
	var item models.ShipmentItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND shipment_id = ?", itemID, shipmentID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

func (r *shipmentRepository) DeleteItem(ctx context.Context, shipmentID, itemID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND shipment_id = ?", itemID, shipmentID).
		Delete(&models.ShipmentItem{})
	if res.Error != nil {
		return fmt.Errorf("delete item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *shipmentRepository) UpsertCosts(ctx context.Context, costs *models.ShipmentCosts) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shipment_id"}},
			UpdateAll: true,
		}).
		Create(costs).Error
	if err != nil {
		return fmt.Errorf("upsert costs: %w", err)
	}
	return nil
}

func (r *shipmentRepository) GetCosts(ctx context.Context, shipmentID uuid.UUID) (*models.ShipmentCosts, error) {
	var costs models.ShipmentCosts
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		First(&costs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get costs: %w", err)
	}
	return &costs, nil
}

func (r *shipmentRepository) UpsertCalculation(ctx context.Context, calc *models.Calculation) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shipment_id"}},
			UpdateAll: true,
		}).
		Create(calc).Error
	if err != nil {
		return fmt.Errorf("upsert calculation: %w", err)
	}
	return nil
}

func (r *shipmentRepository) GetCalculation(ctx context.Context, shipmentID uuid.UUID) (*models.Calculation, error) {
	var calc models.Calculation
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		First(&calc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get calculation: %w", err)
	}
	return &calc, nil
}
