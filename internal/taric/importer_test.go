package taric

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"landed-cost-service/internal/models"
	"landed-cost-service/internal/repository"
)

// fakeTaricRepo records inserted rows in memory
type fakeTaricRepo struct {
	snapshots    []*models.TaricSnapshot
	activated    []uuid.UUID
	goods        []models.GoodsNomenclature
	descriptions []models.GoodsDescription
	geoAreas     []models.GeoArea
	geoMembers   []models.GeoAreaMember
	measures     []models.Measure
	expressions  []models.MeasureDutyExpression
	dutyExprs    []models.DutyExpression
	addCodes     []models.MeasureAdditionalCode
	regulations  []models.Regulation
}

var _ repository.TaricRepository = (*fakeTaricRepo)(nil)

func (f *fakeTaricRepo) ActiveSnapshot(ctx context.Context) (*models.TaricSnapshot, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeTaricRepo) SnapshotByHash(ctx context.Context, snapshotDate time.Time, filesHash string) (*models.TaricSnapshot, error) {
	for _, s := range f.snapshots {
		if s.SnapshotDate.Equal(snapshotDate) && s.FilesHash == filesHash {
			return s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTaricRepo) CreateSnapshot(ctx context.Context, snap *models.TaricSnapshot) error {
	snap.ID = uuid.New()
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeTaricRepo) ActivateSnapshot(ctx context.Context, id uuid.UUID) error {
	f.activated = append(f.activated, id)
	return nil
}

func (f *fakeTaricRepo) GoodsCandidates(ctx context.Context, snapshotID uuid.UUID, codes []string, asOf time.Time) ([]models.GoodsNomenclature, error) {
	return nil, nil
}

func (f *fakeTaricRepo) GoodsDescription(ctx context.Context, nomenclatureID uuid.UUID, language string) (*models.GoodsDescription, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeTaricRepo) MeasuresForCodes(ctx context.Context, snapshotID uuid.UUID, goodsCodes []string, asOf time.Time) ([]models.Measure, error) {
	return nil, nil
}

func (f *fakeTaricRepo) GeoApplies(ctx context.Context, snapshotID uuid.UUID, geoAreaCode, origin string, asOf time.Time) (bool, error) {
	return false, nil
}

func (f *fakeTaricRepo) DutyExpressions(ctx context.Context, measureIDs []uuid.UUID) (map[uuid.UUID][]models.MeasureDutyExpression, error) {
	return nil, nil
}

func (f *fakeTaricRepo) ExpressionTexts(ctx context.Context, snapshotID uuid.UUID) (map[string]string, error) {
	return nil, nil
}

func (f *fakeTaricRepo) AdditionalCodes(ctx context.Context, measureIDs []uuid.UUID) (map[uuid.UUID][]models.MeasureAdditionalCode, error) {
	return nil, nil
}

func (f *fakeTaricRepo) Conditions(ctx context.Context, measureIDs []uuid.UUID) (map[uuid.UUID][]models.MeasureCondition, error) {
	return nil, nil
}

func (f *fakeTaricRepo) Regulation(ctx context.Context, snapshotID uuid.UUID, regulationID string) (*models.Regulation, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeTaricRepo) ResolvedCacheGet(ctx context.Context, snapshotDate time.Time, goodsCode, origin string, asOf time.Time, additionalCode string) (*models.TaricResolvedCache, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeTaricRepo) ResolvedCacheUpsert(ctx context.Context, row *models.TaricResolvedCache) error {
	return nil
}

func (f *fakeTaricRepo) BulkInsertGoods(ctx context.Context, rows []models.GoodsNomenclature) error {
	f.goods = append(f.goods, rows...)
	return nil
}

func (f *fakeTaricRepo) BulkInsertDescriptions(ctx context.Context, rows []models.GoodsDescription) error {
	f.descriptions = append(f.descriptions, rows...)
	return nil
}

func (f *fakeTaricRepo) BulkInsertGeoAreas(ctx context.Context, rows []models.GeoArea) error {
	f.geoAreas = append(f.geoAreas, rows...)
	return nil
}

func (f *fakeTaricRepo) BulkInsertGeoMembers(ctx context.Context, rows []models.GeoAreaMember) error {
	f.geoMembers = append(f.geoMembers, rows...)
	return nil
}

func (f *fakeTaricRepo) BulkInsertMeasures(ctx context.Context, rows []models.Measure) error {
	f.measures = append(f.measures, rows...)
	return nil
}

func (f *fakeTaricRepo) BulkInsertMeasureExpressions(ctx context.Context, rows []models.MeasureDutyExpression) error {
	f.expressions = append(f.expressions, rows...)
	return nil
}

func (f *fakeTaricRepo) BulkInsertDutyExpressions(ctx context.Context, rows []models.DutyExpression) error {
	f.dutyExprs = append(f.dutyExprs, rows...)
	return nil
}

func (f *fakeTaricRepo) BulkInsertMeasureAdditionalCodes(ctx context.Context, rows []models.MeasureAdditionalCode) error {
	f.addCodes = append(f.addCodes, rows...)
	return nil
}

func (f *fakeTaricRepo) BulkInsertRegulations(ctx context.Context, rows []models.Regulation) error {
	f.regulations = append(f.regulations, rows...)
	return nil
}

func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()

	write := func(sheet string, rows [][]interface{}) {
		_, err := wb.NewSheet(sheet)
		require.NoError(t, err)
		for idx, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, idx+1)
			require.NoError(t, err)
			require.NoError(t, wb.SetSheetRow(sheet, cell, &row))
		}
	}

	write("goods", [][]interface{}{
		{"Goods Code", "Product Line", "Valid From", "Valid To"},
		{"1234567890", "80", "2020-01-01", ""},
		{"12345678", "80", "2020-01-01", ""},
	})
	write("descriptions", [][]interface{}{
		{"goods_code", "language", "description"},
		{"1234567890", "EN", "Widgets of iron or steel"},
	})
	write("geo_areas", [][]interface{}{
		{"geo_code", "is_group", "description"},
		{"EU_CUSTOMS", "true", "EU customs union"},
		{"CN", "false", "China"},
	})
	write("geo_members", [][]interface{}{
		{"group_geo_code", "member_geo_code", "valid_from", "valid_to"},
		{"EU_CUSTOMS", "DE", "2020-01-01", ""},
	})
	write("measures", [][]interface{}{
		{"measure_sid", "goods_code", "measure_type", "geo_code", "regulation_id", "valid_from", "valid_to"},
		{"M1", "1234567890", "103", "ERGA_OMNES", "R2020/1", "2020-01-01", ""},
	})
	write("duty_expressions", [][]interface{}{
		{"expression_code", "description"},
		{"01", "5.00 %"},
	})
	write("measure_duties", [][]interface{}{
		{"measure_sid", "expression_code", "duty_expression", "duty_amount"},
		{"M1", "01", "5.00 %", "5.00"},
	})
	write("measure_additional_codes", [][]interface{}{
		{"measure_sid", "additional_code"},
		{"M1", "B999"},
	})
	write("regulations", [][]interface{}{
		{"regulation_id", "official_title", "published_date"},
		{"R2020/1", "Council Regulation 2020/1", "2020-01-15"},
	})

	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))
	return buf.Bytes()
}

func importerLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestImportLoadsAllSheets(t *testing.T) {
	repo := &fakeTaricRepo{}
	imp := NewImporter(repo, importerLogger())
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	summary, err := imp.Import(context.Background(), date, "test", map[string][]byte{
		"taric.xlsx": buildWorkbook(t),
	})
	require.NoError(t, err)

	assert.False(t, summary.Reused)
	assert.Equal(t, 2, summary.Goods)
	assert.Equal(t, 1, summary.Measures)
	assert.Equal(t, 2, summary.GeoAreas)
	assert.Equal(t, 1, summary.Regulations)
	assert.Len(t, repo.activated, 1)

	require.Len(t, repo.goods, 2)
	assert.Equal(t, "1234567890", repo.goods[0].GoodsCode)
	require.NotNil(t, repo.goods[0].ValidityStart)
	assert.Nil(t, repo.goods[0].ValidityEnd)

	require.Len(t, repo.descriptions, 1)
	assert.Equal(t, repo.goods[0].ID, repo.descriptions[0].NomenclatureID)

	require.Len(t, repo.geoMembers, 1)
	assert.Equal(t, "EU_CUSTOMS", repo.geoMembers[0].GroupCode)
	assert.Equal(t, "DE", repo.geoMembers[0].MemberCode)

	require.Len(t, repo.measures, 1)
	m := repo.measures[0]
	assert.Equal(t, "103", m.MeasureTypeID)
	assert.Equal(t, "ERGA_OMNES", m.GeoAreaCode)
	require.NotNil(t, m.RegulationID)
	assert.Equal(t, "R2020/1", *m.RegulationID)

	require.Len(t, repo.expressions, 1)
	assert.Equal(t, m.ID, repo.expressions[0].MeasureID)
	assert.Equal(t, "5.00 %", repo.expressions[0].RawExpression)
	require.NotNil(t, repo.expressions[0].DutyAmount)

	require.Len(t, repo.addCodes, 1)
	assert.Equal(t, "B999", repo.addCodes[0].AdditionalCode)

	require.Len(t, repo.regulations, 1)
	assert.Equal(t, "Council Regulation 2020/1", repo.regulations[0].OfficialTitle)

	require.Len(t, repo.dutyExprs, 1)
	assert.Equal(t, "01", repo.dutyExprs[0].Code)
	assert.Equal(t, "5.00 %", repo.dutyExprs[0].Description)
	assert.Equal(t, summary.SnapshotID, repo.dutyExprs[0].SnapshotID)
}

func TestImportReusesMatchingSnapshot(t *testing.T) {
	repo := &fakeTaricRepo{}
	imp := NewImporter(repo, importerLogger())
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	files := map[string][]byte{"taric.xlsx": buildWorkbook(t)}

	first, err := imp.Import(context.Background(), date, "test", files)
	require.NoError(t, err)

	second, err := imp.Import(context.Background(), date, "test", files)
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.SnapshotID, second.SnapshotID)
	assert.Len(t, repo.snapshots, 1)
	assert.Len(t, repo.goods, 2)
}

func TestImportSameDateNewHashCreatesSnapshot(t *testing.T) {
	repo := &fakeTaricRepo{}
	imp := NewImporter(repo, importerLogger())
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	workbook := buildWorkbook(t)

	first, err := imp.Import(context.Background(), date, "test", map[string][]byte{
		"taric.xlsx": workbook,
	})
	require.NoError(t, err)

	// a corrected export for the same date gets its own snapshot and
	// takes over as the active one
	second, err := imp.Import(context.Background(), date, "test", map[string][]byte{
		"taric.xlsx":  workbook,
		"errata.xlsx": buildWorkbook(t),
	})
	require.NoError(t, err)

	assert.False(t, second.Reused)
	assert.NotEqual(t, first.SnapshotID, second.SnapshotID)
	assert.Len(t, repo.snapshots, 2)
	assert.Equal(t, second.SnapshotID, repo.activated[len(repo.activated)-1])
}

func TestHashFilesOrderIndependent(t *testing.T) {
	a := map[string][]byte{"a.xlsx": []byte("one"), "b.xlsx": []byte("two")}
	b := map[string][]byte{"b.xlsx": []byte("two"), "a.xlsx": []byte("one")}
	assert.Equal(t, hashFiles(a), hashFiles(b))
	assert.NotEqual(t, hashFiles(a), hashFiles(map[string][]byte{"a.xlsx": []byte("three")}))
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "goods_code", normalizeHeader("  Goods Code "))
	assert.Equal(t, "valid_from", normalizeHeader("Valid-From"))
}

func TestParseDateFormats(t *testing.T) {
	d := parseDate("2025-06-01")
	require.NotNil(t, d)
	assert.Equal(t, 2025, d.Year())

	d = parseDate("01/06/2025")
	require.NotNil(t, d)
	assert.Equal(t, time.June, d.Month())

	assert.Nil(t, parseDate(""))
	assert.Nil(t, parseDate("junk"))
}
