package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"landed-cost-service/internal/models"
)

// ErgaOmnes is the TARIC geographical area covering all countries
const ErgaOmnes = "ERGA_OMNES"

// TaricRepository is the temporal query surface over an imported TARIC
// snapshot. Every validity-windowed table is filtered through the same
// scope: a row applies when its window contains as_of, with NULL bounds
// treated as open.
type TaricRepository interface {
	ActiveSnapshot(ctx context.Context) (*models.TaricSnapshot, error)
	SnapshotByHash(ctx context.Context, snapshotDate time.Time, filesHash string) (*models.TaricSnapshot, error)
	CreateSnapshot(ctx context.Context, snap *models.TaricSnapshot) error
	ActivateSnapshot(ctx context.Context, id uuid.UUID) error

	GoodsCandidates(ctx context.Context, snapshotID uuid.UUID, codes []string, asOf time.Time) ([]models.GoodsNomenclature, error)
	GoodsDescription(ctx context.Context, nomenclatureID uuid.UUID, language string) (*models.GoodsDescription, error)
	MeasuresForCodes(ctx context.Context, snapshotID uuid.UUID, goodsCodes []string, asOf time.Time) ([]models.Measure, error)
	GeoApplies(ctx context.Context, snapshotID uuid.UUID, geoAreaCode, origin string, asOf time.Time) (bool, error)

	DutyExpressions(ctx context.Context, measureIDs []uuid.UUID) (map[uuid.UUID][]models.MeasureDutyExpression, error)
	ExpressionTexts(ctx context.Context, snapshotID uuid.UUID) (map[string]string, error)
	AdditionalCodes(ctx context.Context, measureIDs []uuid.UUID) (map[uuid.UUID][]models.MeasureAdditionalCode, error)
	Conditions(ctx context.Context, measureIDs []uuid.UUID) (map[uuid.UUID][]models.MeasureCondition, error)
	Regulation(ctx context.Context, snapshotID uuid.UUID, regulationID string) (*models.Regulation, error)

	ResolvedCacheGet(ctx context.Context, snapshotDate time.Time, goodsCode, origin string, asOf time.Time, additionalCode string) (*models.TaricResolvedCache, error)
	ResolvedCacheUpsert(ctx context.Context, row *models.TaricResolvedCache) error

	BulkInsertGoods(ctx context.Context, rows []models.GoodsNomenclature) error
	BulkInsertDescriptions(ctx context.Context, rows []models.GoodsDescription) error
	BulkInsertGeoAreas(ctx context.Context, rows []models.GeoArea) error
	BulkInsertGeoMembers(ctx context.Context, rows []models.GeoAreaMember) error
	BulkInsertMeasures(ctx context.Context, rows []models.Measure) error
	BulkInsertMeasureExpressions(ctx context.Context, rows []models.MeasureDutyExpression) error
	BulkInsertDutyExpressions(ctx context.Context, rows []models.DutyExpression) error
	BulkInsertMeasureAdditionalCodes(ctx context.Context, rows []models.MeasureAdditionalCode) error
	BulkInsertRegulations(ctx context.Context, rows []models.Regulation) error
}

type taricRepository struct {
	db *gorm.DB
}

func NewTaricRepository(db *gorm.DB) TaricRepository {
	return &taricRepository{db: db}
}

// validAt scopes a query to rows whose validity window contains asOf
func validAt(db *gorm.DB, asOf time.Time) *gorm.DB {
	d := asOf.Format("2006-01-02")
	return db.
		Where("(validity_start IS NULL OR validity_start <= ?)", d).
		Where("(validity_end IS NULL OR validity_end >= ?)", d)
}

func (r *taricRepository) ActiveSnapshot(ctx context.Context) (*models.TaricSnapshot, error) {
	var snap models.TaricSnapshot
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("snapshot_date DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active taric snapshot: %w", err)
	}
	return &snap, nil
}

func (r *taricRepository) SnapshotByHash(ctx context.Context, snapshotDate time.Time, filesHash string) (*models.TaricSnapshot, error) {
	var snap models.TaricSnapshot
	err := r.db.WithContext(ctx).
		Where("snapshot_date = ? AND files_hash = ?", snapshotDate.Format("2006-01-02"), filesHash).
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taric snapshot by hash: %w", err)
	}
	return &snap, nil
}

func (r *taricRepository) CreateSnapshot(ctx context.Context, snap *models.TaricSnapshot) error {
	if err := r.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("create taric snapshot: %w", err)
	}
	return nil
}

// ActivateSnapshot flips the active flag to the given snapshot atomically
func (r *taricRepository) ActivateSnapshot(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.TaricSnapshot{}).
			Where("active = ?", true).
			Update("active", false).Error; err != nil {
			return fmt.Errorf("deactivate snapshots: %w", err)
		}
		if err := tx.Model(&models.TaricSnapshot{}).
			Where("id = ?", id).
			Update("active", true).Error; err != nil {
			return fmt.Errorf("activate snapshot: %w", err)
		}
		return nil
	})
}

func (r *taricRepository) GoodsCandidates(ctx context.Context, snapshotID uuid.UUID, codes []string, asOf time.Time) ([]models.GoodsNomenclature, error) {
	var rows []models.GoodsNomenclature
	q := r.db.WithContext(ctx).
		Where("snapshot_id = ? AND goods_code IN ?", snapshotID, codes)
	err := validAt(q, asOf).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("goods candidates: %w", err)
	}
	return rows, nil
}

func (r *taricRepository) GoodsDescription(ctx context.Context, nomenclatureID uuid.UUID, language string) (*models.GoodsDescription, error) {
	if language == "" {
		language = "EN"
	}
	var row models.GoodsDescription
	err := r.db.WithContext(ctx).
		Where("nomenclature_id = ? AND language = ?", nomenclatureID, language).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("goods description: %w", err)
	}
	return &row, nil
}

func (r *taricRepository) MeasuresForCodes(ctx context.Context, snapshotID uuid.UUID, goodsCodes []string, asOf time.Time) ([]models.Measure, error) {
	var rows []models.Measure
	q := r.db.WithContext(ctx).
		Where("snapshot_id = ? AND goods_code IN ?", snapshotID, goodsCodes)
	err := validAt(q, asOf).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("measures for codes: %w", err)
	}
	return rows, nil
}

// GeoApplies reports whether a measure scoped to geoAreaCode covers
// origin: an exact match, the erga omnes area, or membership of a geo
// group valid at asOf.
func (r *taricRepository) GeoApplies(ctx context.Context, snapshotID uuid.UUID, geoAreaCode, origin string, asOf time.Time) (bool, error) {
	if geoAreaCode == origin || geoAreaCode == ErgaOmnes {
		return true, nil
	}
	var count int64
	q := r.db.WithContext(ctx).
		Model(&models.GeoAreaMember{}).
		Where("snapshot_id = ? AND group_code = ? AND member_code = ?", snapshotID, geoAreaCode, origin)
	if err := validAt(q, asOf).Count(&count).Error; err != nil {
		return false, fmt.Errorf("geo membership lookup: %w", err)
	}
	return count > 0, nil
}

func (r *taricRepository) DutyExpressions(ctx context.Context, measureIDs []uuid.UUID) (map[uuid.UUID][]models.MeasureDutyExpression, error) {
	var rows []models.MeasureDutyExpression
	err := r.db.WithContext(ctx).
		Where("measure_id IN ?", measureIDs).
		Order("measure_id, sequence").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("duty expressions: %w", err)
	}
	out := make(map[uuid.UUID][]models.MeasureDutyExpression, len(measureIDs))
	for _, row := range rows {
		out[row.MeasureID] = append(out[row.MeasureID], row)
	}
	return out, nil
}

// ExpressionTexts returns the snapshot's duty-expression lookup table
// keyed by expression code
func (r *taricRepository) ExpressionTexts(ctx context.Context, snapshotID uuid.UUID) (map[string]string, error) {
	var rows []models.DutyExpression
	err := r.db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("duty expression lookup: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Code] = row.Description
	}
	return out, nil
}

func (r *taricRepository) AdditionalCodes(ctx context.Context, measureIDs []uuid.UUID) (map[uuid.UUID][]models.MeasureAdditionalCode, error) {
	var rows []models.MeasureAdditionalCode
	err := r.db.WithContext(ctx).
		Where("measure_id IN ?", measureIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("additional codes: %w", err)
	}
	out := make(map[uuid.UUID][]models.MeasureAdditionalCode, len(measureIDs))
	for _, row := range rows {
		out[row.MeasureID] = append(out[row.MeasureID], row)
	}
	return out, nil
}

func (r *taricRepository) Conditions(ctx context.Context, measureIDs []uuid.UUID) (map[uuid.UUID][]models.MeasureCondition, error) {
	var rows []models.MeasureCondition
	err := r.db.WithContext(ctx).
		Where("measure_id IN ?", measureIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("measure conditions: %w", err)
	}
	out := make(map[uuid.UUID][]models.MeasureCondition, len(measureIDs))
	for _, row := range rows {
		out[row.MeasureID] = append(out[row.MeasureID], row)
	}
	return out, nil
}

func (r *taricRepository) Regulation(ctx context.Context, snapshotID uuid.UUID, regulationID string) (*models.Regulation, error) {
	var row models.Regulation
	err := r.db.WithContext(ctx).
		Where("snapshot_id = ? AND regulation_id = ?", snapshotID, regulationID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("regulation: %w", err)
	}
	return &row, nil
}

func (r *taricRepository) ResolvedCacheGet(ctx context.Context, snapshotDate time.Time, goodsCode, origin string, asOf time.Time, additionalCode string) (*models.TaricResolvedCache, error) {
	var row models.TaricResolvedCache
	err := r.db.WithContext(ctx).
		Where("snapshot_date = ? AND goods_code = ? AND origin_country = ? AND as_of_date = ? AND additional_code = ?",
			snapshotDate.Format("2006-01-02"), goodsCode, origin, asOf.Format("2006-01-02"), additionalCode).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolved cache get: %w", err)
	}
	return &row, nil
}

func (r *taricRepository) ResolvedCacheUpsert(ctx context.Context, row *models.TaricResolvedCache) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "snapshot_date"}, {Name: "goods_code"}, {Name: "origin_country"},
				{Name: "as_of_date"}, {Name: "additional_code"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"resolved_json"}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("resolved cache upsert: %w", err)
	}
	return nil
}

func bulkInsert[T any](ctx context.Context, db *gorm.DB, rows []T, what string) error {
	if len(rows) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("bulk insert %s: %w", what, err)
	}
	return nil
}

func (r *taricRepository) BulkInsertGoods(ctx context.Context, rows []models.GoodsNomenclature) error {
	return bulkInsert(ctx, r.db, rows, "goods nomenclature")
}

func (r *taricRepository) BulkInsertDescriptions(ctx context.Context, rows []models.GoodsDescription) error {
	return bulkInsert(ctx, r.db, rows, "goods descriptions")
}

func (r *taricRepository) BulkInsertGeoAreas(ctx context.Context, rows []models.GeoArea) error {
	return bulkInsert(ctx, r.db, rows, "geo areas")
}

func (r *taricRepository) BulkInsertGeoMembers(ctx context.Context, rows []models.GeoAreaMember) error {
	return bulkInsert(ctx, r.db, rows, "geo members")
}

func (r *taricRepository) BulkInsertMeasures(ctx context.Context, rows []models.Measure) error {
	return bulkInsert(ctx, r.db, rows, "measures")
}

func (r *taricRepository) BulkInsertMeasureExpressions(ctx context.Context, rows []models.MeasureDutyExpression) error {
	return bulkInsert(ctx, r.db, rows, "measure duty expressions")
}

func (r *taricRepository) BulkInsertDutyExpressions(ctx context.Context, rows []models.DutyExpression) error {
	return bulkInsert(ctx, r.db, rows, "duty expressions")
}

func (r *taricRepository) BulkInsertMeasureAdditionalCodes(ctx context.Context, rows []models.MeasureAdditionalCode) error {
	return bulkInsert(ctx, r.db, rows, "measure additional codes")
}

func (r *taricRepository) BulkInsertRegulations(ctx context.Context, rows []models.Regulation) error {
	return bulkInsert(ctx, r.db, rows, "regulations")
}
