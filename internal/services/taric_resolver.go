package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"landed-cost-service/internal/models"
	"landed-cost-service/internal/repository"
)

// NoSnapshotNote is returned when resolution runs before any TARIC
// dataset has been imported
const NoSnapshotNote = "No TARIC snapshot loaded."

// Measure types granting a reduced rate under a trade agreement
var preferentialTypes = map[string]bool{
	"103": true, "105": true, "106": true,
	"142": true, "143": true, "144": true, "145": true,
}

// Anti-dumping / countervailing measure types; never the effective base
var antiDumpingTypes = map[string]bool{
	"551": true, "552": true, "553": true, "554": true,
}

var adValoremExpr = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*%`)

// TaricResolver determines the applicable duty measures for a goods
// code, origin and date against the active TARIC snapshot.
type TaricResolver interface {
	Resolve(ctx context.Context, goodsCode, origin string, asOf time.Time, additionalCode *string) (*models.ResolvedRate, error)
}

type taricResolver struct {
	repo repository.TaricRepository
	log  *logrus.Entry
}

func NewTaricResolver(repo repository.TaricRepository, log *logrus.Logger) TaricResolver {
	return &taricResolver{
		repo: repo,
		log:  log.WithField("component", "taric_resolver"),
	}
}

// CandidateCodes derives the hierarchy fallback chain for a goods code:
// the digit-only code truncated to lengths 10, 8, 6, 4, 2, longest
// first, keeping only lengths the code actually reaches.
func CandidateCodes(goodsCode string) []string {
	digits := models.NormalizeGoodsCode(goodsCode)
	out := make([]string, 0, 5)
	for _, n := range []int{10, 8, 6, 4, 2} {
		if n <= len(digits) {
			out = append(out, digits[:n])
		}
	}
	return out
}

// ParseDutyExpression classifies a raw duty expression. Percentages are
// ad-valorem fractions; anything mentioning EUR is a specific duty the
// calculator prices per kilogram; the rest is unknown.
func ParseDutyExpression(expr string) models.ResolvedExpression {
	if m := adValoremExpr.FindStringSubmatch(expr); m != nil {
		if pct, err := decimal.NewFromString(m[1]); err == nil {
			// Shift keeps the representation canonical so cached
			// payloads rehydrate to identical values
			rate := pct.Shift(-2)
			return models.ResolvedExpression{Type: models.DutyKindAdValorem, Rate: &rate, Expression: expr}
		}
	}
	if strings.Contains(strings.ToUpper(expr), "EUR") {
		return models.ResolvedExpression{Type: models.DutyKindSpecific, Expression: expr}
	}
	return models.ResolvedExpression{Type: models.DutyKindUnknown, Expression: expr}
}

func (r *taricResolver) Resolve(ctx context.Context, goodsCode, origin string, asOf time.Time, additionalCode *string) (*models.ResolvedRate, error) {
	origin = strings.ToUpper(strings.TrimSpace(origin))
	normalized := models.NormalizeGoodsCode(goodsCode)
	suppliedCode := ""
	if additionalCode != nil {
		suppliedCode = strings.ToUpper(strings.TrimSpace(*additionalCode))
	}

	snap, err := r.repo.ActiveSnapshot(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.ResolvedRate{
			GoodsCode:     normalized,
			OriginCountry: origin,
			AsOf:          asOf.Format("2006-01-02"),
			Note:          NoSnapshotNote,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if row, err := r.repo.ResolvedCacheGet(ctx, snap.SnapshotDate, normalized, origin, asOf, suppliedCode); err == nil {
		var cached models.ResolvedRate
		if err := json.Unmarshal(row.ResolvedJSON, &cached); err == nil {
			return &cached, nil
		}
		r.log.WithField("goods_code", normalized).Warn("corrupt resolved cache row, recomputing")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	result, err := r.resolve(ctx, snap, normalized, origin, asOf, suppliedCode)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("serialize resolved rate: %w", err)
	}
	cacheRow := &models.TaricResolvedCache{
		SnapshotDate:   snap.SnapshotDate,
		GoodsCode:      normalized,
		OriginCountry:  origin,
		AsOfDate:       asOf,
		AdditionalCode: suppliedCode,
		ResolvedJSON:   payload,
	}
	if err := r.repo.ResolvedCacheUpsert(ctx, cacheRow); err != nil {
		r.log.WithError(err).WithField("goods_code", normalized).Warn("resolved cache write failed")
	}
	return result, nil
}

func (r *taricResolver) resolve(ctx context.Context, snap *models.TaricSnapshot, goodsCode, origin string, asOf time.Time, suppliedCode string) (*models.ResolvedRate, error) {
	result := &models.ResolvedRate{
		GoodsCode:      goodsCode,
		OriginCountry:  origin,
		AsOf:           asOf.Format("2006-01-02"),
		SnapshotDate:   snap.SnapshotDate.Format("2006-01-02"),
		AdditionalCode: suppliedCode,
	}

	candidates := CandidateCodes(goodsCode)
	if len(candidates) == 0 {
		return result, nil
	}

	goods, err := r.repo.GoodsCandidates(ctx, snap.ID, candidates, asOf)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(goods))
	for _, g := range goods {
		present[g.GoodsCode] = true
	}

	matched := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if present[c] {
			if result.MatchedCode == "" {
				result.MatchedCode = c
			}
			matched = append(matched, c)
		}
	}
	queryCodes := matched
	if len(queryCodes) == 0 {
		queryCodes = candidates
	}

	measures, err := r.repo.MeasuresForCodes(ctx, snap.ID, queryCodes, asOf)
	if err != nil {
		return nil, err
	}

	applicable := make([]models.Measure, 0, len(measures))
	for _, m := range measures {
		ok, err := r.repo.GeoApplies(ctx, snap.ID, m.GeoAreaCode, origin, asOf)
		if err != nil {
			return nil, err
		}
		if ok {
			applicable = append(applicable, m)
		}
	}
	// prefer measures on more specific codes, stable within a code
	sort.SliceStable(applicable, func(i, j int) bool {
		return len(applicable[i].GoodsCode) > len(applicable[j].GoodsCode)
	})
	if len(applicable) == 0 {
		return result, nil
	}
	result.Found = true

	measureIDs := make([]uuid.UUID, len(applicable))
	for i, m := range applicable {
		measureIDs[i] = m.ID
	}
	expressions, err := r.repo.DutyExpressions(ctx, measureIDs)
	if err != nil {
		return nil, err
	}
	// the lookup table is only consulted when a component references it
	exprTexts := map[string]string{}
	if referencesLookup(expressions) {
		exprTexts, err = r.repo.ExpressionTexts(ctx, snap.ID)
		if err != nil {
			return nil, err
		}
	}
	addCodes, err := r.repo.AdditionalCodes(ctx, measureIDs)
	if err != nil {
		return nil, err
	}
	conditions, err := r.repo.Conditions(ctx, measureIDs)
	if err != nil {
		return nil, err
	}

	seenRefs := make(map[string]bool)
	for _, m := range applicable {
		rm := models.ResolvedMeasure{
			MeasureSID:    m.MeasureSID,
			MeasureTypeID: m.MeasureTypeID,
			GeoAreaCode:   m.GeoAreaCode,
			Preferential:  preferentialTypes[m.MeasureTypeID],
			AntiDumping:   antiDumpingTypes[m.MeasureTypeID],
		}

		exprRows := expressions[m.ID]
		if len(exprRows) == 0 {
			rm.Components = []models.ResolvedExpression{ParseDutyExpression("0%")}
		} else {
			rm.Components = make([]models.ResolvedExpression, 0, len(exprRows))
			for _, row := range exprRows {
				rm.Components = append(rm.Components, ParseDutyExpression(expressionText(row, exprTexts)))
			}
		}

		if linked := addCodes[m.ID]; len(linked) > 0 {
			allowed := make(map[string]bool, len(linked))
			for _, l := range linked {
				rm.AdditionalCodes = append(rm.AdditionalCodes, l.AdditionalCode)
				allowed[l.AdditionalCode] = true
			}
			if suppliedCode == "" || !allowed[suppliedCode] {
				rm.AdditionalCodeRequired = true
			}
		}

		for _, c := range conditions[m.ID] {
			rm.Requirements = append(rm.Requirements, formatRequirement(m.MeasureSID, c))
		}

		if m.RegulationID != nil && *m.RegulationID != "" && !seenRefs[*m.RegulationID] {
			seenRefs[*m.RegulationID] = true
			rm.LegalRefs = append(rm.LegalRefs, *m.RegulationID)
		}

		result.Measures = append(result.Measures, rm)
	}

	result.Effective = selectEffective(result.Measures)
	return result, nil
}

func referencesLookup(expressions map[uuid.UUID][]models.MeasureDutyExpression) bool {
	for _, rows := range expressions {
		for _, row := range rows {
			if row.ExpressionCode != "" {
				return true
			}
		}
	}
	return false
}

// expressionText resolves a component through the duty-expression
// lookup table when its expression code is defined there, falling back
// to the raw text stored on the measure.
func expressionText(row models.MeasureDutyExpression, lookup map[string]string) string {
	if row.ExpressionCode != "" {
		if text, ok := lookup[row.ExpressionCode]; ok && text != "" {
			return text
		}
	}
	return row.RawExpression
}

// selectEffective applies the tie-break: the first preferential
// ad-valorem rate wins, else the first ad-valorem rate that is not an
// anti-dumping measure, else none.
func selectEffective(measures []models.ResolvedMeasure) *models.EffectiveRate {
	for _, m := range measures {
		if !m.Preferential {
			continue
		}
		for _, c := range m.Components {
			if c.Type == models.DutyKindAdValorem && c.Rate != nil {
				return &models.EffectiveRate{AdValoremRate: *c.Rate, Preferential: true, MeasureSID: m.MeasureSID}
			}
		}
	}
	for _, m := range measures {
		if m.AntiDumping {
			continue
		}
		for _, c := range m.Components {
			if c.Type == models.DutyKindAdValorem && c.Rate != nil {
				return &models.EffectiveRate{AdValoremRate: *c.Rate, MeasureSID: m.MeasureSID}
			}
		}
	}
	return nil
}

func formatRequirement(measureSID string, c models.MeasureCondition) string {
	parts := []string{fmt.Sprintf("measure %s condition %s", measureSID, c.ConditionCode)}
	if c.ActionCode != nil && *c.ActionCode != "" {
		parts = append(parts, fmt.Sprintf("action %s", *c.ActionCode))
	}
	if c.CertificateType != nil && *c.CertificateType != "" {
		cert := *c.CertificateType
		if c.CertificateCode != nil {
			cert += *c.CertificateCode
		}
		parts = append(parts, fmt.Sprintf("certificate %s", cert))
	}
	return strings.Join(parts, ", ")
}
