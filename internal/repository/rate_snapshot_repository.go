package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"landed-cost-service/internal/models"
)

// RateSnapshotRepository stores durable provider responses per shipment
type RateSnapshotRepository interface {
	Save(ctx context.Context, snap *models.RateSnapshot) error
	GetValid(ctx context.Context, shipmentID uuid.UUID, provider models.ProviderType, requestKey datatypes.JSON) (*models.RateSnapshot, error)
}

type rateSnapshotRepository struct {
	db *gorm.DB
}

func NewRateSnapshotRepository(db *gorm.DB) RateSnapshotRepository {
	return &rateSnapshotRepository{db: db}
}

func (r *rateSnapshotRepository) Save(ctx context.Context, snap *models.RateSnapshot) error {
	if err := r.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("save rate snapshot: %w", err)
	}
	return nil
}

// GetValid returns the newest unexpired snapshot for the exact request
// key. jsonb equality ignores member order, so key maps built the same
// way always match. A shipment can hold one live snapshot per lookup.
func (r *rateSnapshotRepository) GetValid(ctx context.Context, shipmentID uuid.UUID, provider models.ProviderType, requestKey datatypes.JSON) (*models.RateSnapshot, error) {
	var snap models.RateSnapshot
	err := r.db.WithContext(ctx).
		Where("shipment_id = ? AND provider = ?", shipmentID, provider).
		Where("request_key = ?", requestKey).
		Where("fetched_at + make_interval(secs => ttl_seconds) > NOW()").
		Order("fetched_at DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rate snapshot: %w", err)
	}
	return &snap, nil
}
