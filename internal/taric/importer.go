// Package taric loads TARIC dataset exports into the snapshot tables.
// Input is one or more Excel workbooks whose sheets carry the goods
// nomenclature, geography, measure and regulation data. Imports are
// idempotent per (snapshot_date, files_hash).
package taric

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"landed-cost-service/internal/models"
	"landed-cost-service/internal/repository"
)

// Sheet names recognized in uploaded workbooks
const (
	sheetGoods        = "goods"
	sheetDescriptions = "descriptions"
	sheetGeoAreas     = "geo_areas"
	sheetGeoMembers   = "geo_members"
	sheetMeasures     = "measures"
	sheetDutyExprs    = "duty_expressions"
	sheetMeasureDuty  = "measure_duties"
	sheetMeasureCodes = "measure_additional_codes"
	sheetRegulations  = "regulations"
)

// Importer populates a TARIC snapshot from Excel exports
type Importer struct {
	repo repository.TaricRepository
	log  *logrus.Entry
}

func NewImporter(repo repository.TaricRepository, log *logrus.Logger) *Importer {
	return &Importer{
		repo: repo,
		log:  log.WithField("component", "taric_importer"),
	}
}

// Import loads the given workbooks into a new snapshot and activates
// it. A snapshot with the same date and content hash is reused as-is.
func (i *Importer) Import(ctx context.Context, snapshotDate time.Time, source string, files map[string][]byte) (*models.ImportSummary, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files supplied")
	}
	hash := hashFiles(files)

	if existing, err := i.repo.SnapshotByHash(ctx, snapshotDate, hash); err == nil {
		return &models.ImportSummary{
			SnapshotID:   existing.ID,
			SnapshotDate: existing.SnapshotDate.Format("2006-01-02"),
			FilesHash:    existing.FilesHash,
			Reused:       true,
		}, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	snap := &models.TaricSnapshot{
		SnapshotDate: snapshotDate,
		Source:       source,
		FilesHash:    hash,
	}
	if err := i.repo.CreateSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	summary := &models.ImportSummary{
		SnapshotID:   snap.ID,
		SnapshotDate: snapshotDate.Format("2006-01-02"),
		FilesHash:    hash,
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		wb, err := excelize.OpenReader(bytes.NewReader(files[name]))
		if err != nil {
			return nil, fmt.Errorf("open workbook %s: %w", name, err)
		}
		if err := i.loadWorkbook(ctx, snap, wb, summary); err != nil {
			wb.Close()
			return nil, fmt.Errorf("load workbook %s: %w", name, err)
		}
		wb.Close()
	}

	if err := i.repo.ActivateSnapshot(ctx, snap.ID); err != nil {
		return nil, err
	}
	i.log.WithFields(logrus.Fields{
		"snapshot_date": summary.SnapshotDate,
		"goods":         summary.Goods,
		"measures":      summary.Measures,
	}).Info("taric snapshot imported")
	return summary, nil
}

func (i *Importer) loadWorkbook(ctx context.Context, snap *models.TaricSnapshot, wb *excelize.File, summary *models.ImportSummary) error {
	tables := make(map[string]*sheetTable)
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if table := newSheetTable(rows); table != nil {
			tables[strings.ToLower(strings.TrimSpace(sheet))] = table
		}
	}

	goodsIDs := map[string]uuid.UUID{}
	if table, ok := tables[sheetGoods]; ok {
		ids, err := i.loadGoods(ctx, snap, table)
		if err != nil {
			return err
		}
		goodsIDs = ids
		summary.Goods += len(ids)
	}
	if table, ok := tables[sheetDescriptions]; ok {
		if err := i.loadDescriptions(ctx, table, goodsIDs); err != nil {
			return err
		}
	}
	if table, ok := tables[sheetGeoAreas]; ok {
		n, err := i.loadGeoAreas(ctx, snap, table)
		if err != nil {
			return err
		}
		summary.GeoAreas += n
	}
	if table, ok := tables[sheetGeoMembers]; ok {
		if err := i.loadGeoMembers(ctx, snap, table); err != nil {
			return err
		}
	}
	if table, ok := tables[sheetRegulations]; ok {
		n, err := i.loadRegulations(ctx, snap, table)
		if err != nil {
			return err
		}
		summary.Regulations += n
	}
	if table, ok := tables[sheetDutyExprs]; ok {
		if err := i.loadDutyExpressions(ctx, snap, table); err != nil {
			return err
		}
	}
	if table, ok := tables[sheetMeasures]; ok {
		n, err := i.loadMeasures(ctx, snap, table, tables[sheetMeasureDuty], tables[sheetMeasureCodes])
		if err != nil {
			return err
		}
		summary.Measures += n
	}
	return nil
}

func (i *Importer) loadDescriptions(ctx context.Context, table *sheetTable, goodsIDs map[string]uuid.UUID) error {
	out := make([]models.GoodsDescription, 0, len(table.rows))
	for _, row := range table.rows {
		code := models.NormalizeGoodsCode(table.get(row, "goods_code"))
		desc := table.get(row, "description")
		nomID, ok := goodsIDs[code]
		if !ok || desc == "" {
			continue
		}
		lang := strings.ToUpper(table.get(row, "language"))
		if lang == "" {
			lang = "EN"
		}
		out = append(out, models.GoodsDescription{
			ID:             uuid.New(),
			NomenclatureID: nomID,
			Language:       lang,
			Description:    desc,
		})
	}
	return i.repo.BulkInsertDescriptions(ctx, out)
}

func (i *Importer) loadGoods(ctx context.Context, snap *models.TaricSnapshot, table *sheetTable) (map[string]uuid.UUID, error) {
	out := make([]models.GoodsNomenclature, 0, len(table.rows))
	ids := make(map[string]uuid.UUID, len(table.rows))
	for _, row := range table.rows {
		code := models.NormalizeGoodsCode(table.get(row, "goods_code"))
		if code == "" {
			continue
		}
		g := models.GoodsNomenclature{
			ID:            uuid.New(),
			SnapshotID:    snap.ID,
			GoodsCode:     code,
			ProductLine:   table.get(row, "product_line"),
			ValidityStart: parseDate(table.get(row, "valid_from")),
			ValidityEnd:   parseDate(table.get(row, "valid_to")),
		}
		ids[code] = g.ID
		out = append(out, g)
	}
	return ids, i.repo.BulkInsertGoods(ctx, out)
}

func (i *Importer) loadGeoAreas(ctx context.Context, snap *models.TaricSnapshot, table *sheetTable) (int, error) {
	out := make([]models.GeoArea, 0, len(table.rows))
	for _, row := range table.rows {
		code := strings.ToUpper(table.get(row, "geo_code"))
		if code == "" {
			continue
		}
		out = append(out, models.GeoArea{
			SnapshotID:  snap.ID,
			Code:        code,
			IsGroup:     parseBool(table.get(row, "is_group")),
			Description: table.get(row, "description"),
		})
	}
	return len(out), i.repo.BulkInsertGeoAreas(ctx, out)
}

func (i *Importer) loadGeoMembers(ctx context.Context, snap *models.TaricSnapshot, table *sheetTable) error {
	out := make([]models.GeoAreaMember, 0, len(table.rows))
	for _, row := range table.rows {
		group := strings.ToUpper(table.get(row, "group_geo_code"))
		member := strings.ToUpper(table.get(row, "member_geo_code"))
		if group == "" || member == "" {
			continue
		}
		out = append(out, models.GeoAreaMember{
			SnapshotID:    snap.ID,
			GroupCode:     group,
			MemberCode:    member,
			ValidityStart: parseDate(table.get(row, "valid_from")),
			ValidityEnd:   parseDate(table.get(row, "valid_to")),
		})
	}
	return i.repo.BulkInsertGeoMembers(ctx, out)
}

// loadDutyExpressions fills the expression lookup table the resolver
// consults for components that reference a formula by code
func (i *Importer) loadDutyExpressions(ctx context.Context, snap *models.TaricSnapshot, table *sheetTable) error {
	out := make([]models.DutyExpression, 0, len(table.rows))
	for _, row := range table.rows {
		code := table.get(row, "expression_code")
		if code == "" {
			continue
		}
		out = append(out, models.DutyExpression{
			SnapshotID:  snap.ID,
			Code:        code,
			Description: table.get(row, "description"),
		})
	}
	return i.repo.BulkInsertDutyExpressions(ctx, out)
}

// loadMeasures inserts measures together with their duty expressions
// and additional-code linkages, which ship as sibling sheets keyed by
// measure_sid within the same workbook.
func (i *Importer) loadMeasures(ctx context.Context, snap *models.TaricSnapshot, table, duties, addCodes *sheetTable) (int, error) {
	measures := make([]models.Measure, 0, len(table.rows))
	for _, row := range table.rows {
		code := models.NormalizeGoodsCode(table.get(row, "goods_code"))
		sid := table.get(row, "measure_sid")
		if code == "" || sid == "" {
			continue
		}
		m := models.Measure{
			ID:            uuid.New(),
			SnapshotID:    snap.ID,
			MeasureSID:    sid,
			GoodsCode:     code,
			MeasureTypeID: table.get(row, "measure_type"),
			GeoAreaCode:   strings.ToUpper(table.get(row, "geo_code")),
			ValidityStart: parseDate(table.get(row, "valid_from")),
			ValidityEnd:   parseDate(table.get(row, "valid_to")),
		}
		if reg := table.get(row, "regulation_id"); reg != "" {
			m.RegulationID = &reg
		}
		measures = append(measures, m)
	}
	if err := i.repo.BulkInsertMeasures(ctx, measures); err != nil {
		return 0, err
	}

	bySID := make(map[string]*models.Measure, len(measures))
	for idx := range measures {
		bySID[measures[idx].MeasureSID] = &measures[idx]
	}
	if err := i.loadMeasureDuties(ctx, duties, bySID); err != nil {
		return 0, err
	}
	if err := i.loadMeasureCodes(ctx, addCodes, bySID); err != nil {
		return 0, err
	}
	return len(measures), nil
}

func (i *Importer) loadMeasureDuties(ctx context.Context, table *sheetTable, bySID map[string]*models.Measure) error {
	if table == nil {
		return nil
	}
	out := make([]models.MeasureDutyExpression, 0, len(table.rows))
	seq := make(map[string]int)
	for _, row := range table.rows {
		sid := table.get(row, "measure_sid")
		measure, ok := bySID[sid]
		if !ok {
			continue
		}
		expr := table.get(row, "duty_expression")
		if expr == "" {
			continue
		}
		mde := models.MeasureDutyExpression{
			MeasureID:      measure.ID,
			ExpressionCode: table.get(row, "expression_code"),
			RawExpression:  expr,
			Sequence:       seq[sid],
		}
		if amount := table.get(row, "duty_amount"); amount != "" {
			if d, err := decimal.NewFromString(amount); err == nil {
				mde.DutyAmount = &d
			}
		}
		seq[sid]++
		out = append(out, mde)
	}
	return i.repo.BulkInsertMeasureExpressions(ctx, out)
}

func (i *Importer) loadMeasureCodes(ctx context.Context, table *sheetTable, bySID map[string]*models.Measure) error {
	if table == nil {
		return nil
	}
	out := make([]models.MeasureAdditionalCode, 0, len(table.rows))
	for _, row := range table.rows {
		measure, ok := bySID[table.get(row, "measure_sid")]
		if !ok {
			continue
		}
		code := strings.ToUpper(table.get(row, "additional_code"))
		if code == "" {
			continue
		}
		out = append(out, models.MeasureAdditionalCode{
			MeasureID:      measure.ID,
			AdditionalCode: code,
		})
	}
	return i.repo.BulkInsertMeasureAdditionalCodes(ctx, out)
}

func (i *Importer) loadRegulations(ctx context.Context, snap *models.TaricSnapshot, table *sheetTable) (int, error) {
	out := make([]models.Regulation, 0, len(table.rows))
	for _, row := range table.rows {
		id := table.get(row, "regulation_id")
		if id == "" {
			continue
		}
		out = append(out, models.Regulation{
			SnapshotID:    snap.ID,
			RegulationID:  id,
			OfficialTitle: table.get(row, "official_title"),
			PublishedDate: parseDate(table.get(row, "published_date")),
		})
	}
	return len(out), i.repo.BulkInsertRegulations(ctx, out)
}

// hashFiles digests file contents in name order so the hash does not
// depend on upload ordering
func hashFiles(files map[string][]byte) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write(files[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sheetTable is a header-indexed view over raw sheet rows
type sheetTable struct {
	columns map[string]int
	rows    [][]string
}

func newSheetTable(rows [][]string) *sheetTable {
	if len(rows) < 2 {
		return nil
	}
	columns := make(map[string]int, len(rows[0]))
	for idx, name := range rows[0] {
		columns[normalizeHeader(name)] = idx
	}
	return &sheetTable{columns: columns, rows: rows[1:]}
}

func (t *sheetTable) get(row []string, column string) string {
	idx, ok := t.columns[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// normalizeHeader folds header cells to snake_case identifiers
func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006", "2006-01-02 15:04:05"} {
		if d, err := time.Parse(layout, s); err == nil {
			return &d
		}
	}
	return nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
