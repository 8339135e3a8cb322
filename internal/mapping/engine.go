// Package mapping resolves canonical schema fields to source columns via
// a layered decision ladder: partner rule, exact name, fuzzy name,
// semantic type, derivable, unmapped. Strategies are an ordered list
// evaluated first-match, so new strategies slot in without touching
// existing ones.
package mapping

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/harmonize-cli/internal/model"
	"github.com/sells-group/harmonize-cli/internal/semantic"
	"github.com/sells-group/harmonize-cli/internal/vocab"
)

// Config holds the ladder's tunable thresholds.
type Config struct {
	FuzzyDistance       int
	SemanticWeight      float64
	HighNullRate        float64
	RunnerUpGap         float64
	MinViableConfidence float64
	DefaultCurrency     string
	GenericTokens       []string
}

// Base confidences per method, before adjustments.
const (
	confPartnerRule = 0.95
	confExactName   = 0.95
	confFuzzyName   = 0.75
	confDerived     = 0.70
	confUnpivot     = 0.95
	confConstant    = 1.0
)

// Engine resolves one source's columns against the canonical schema.
type Engine struct {
	cfg    Config
	schema *model.SchemaRegistry
}

// New creates a mapping engine.
func New(cfg Config, schema *model.SchemaRegistry) *Engine {
	if cfg.FuzzyDistance <= 0 {
		cfg.FuzzyDistance = 2
	}
	if cfg.SemanticWeight == 0 {
		cfg.SemanticWeight = 0.8
	}
	if cfg.HighNullRate == 0 {
		cfg.HighNullRate = 0.20
	}
	if cfg.RunnerUpGap == 0 {
		cfg.RunnerUpGap = 0.15
	}
	if cfg.MinViableConfidence == 0 {
		cfg.MinViableConfidence = 0.3
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &Engine{cfg: cfg, schema: schema}
}

// column pairs a profile with its classification for strategy lookups.
type column struct {
	name    string
	norm    string
	pos     int
	profile model.ColumnProfile
	class   model.SemanticClassification
}

// resolveCtx carries shared state across strategies for one source.
type resolveCtx struct {
	cfg     Config
	src     model.RawSource
	cols    []column
	claimed map[int]bool

	partnerCanonical string
	partnerKnown     bool
	rules            []vocab.PartnerRule
	metricCols       map[string]string // source column -> canonical metric
}

func (rc *resolveCtx) byNorm(norm string) *column {
	for i := range rc.cols {
		if rc.cols[i].norm == norm && !rc.claimed[rc.cols[i].pos] {
			return &rc.cols[i]
		}
	}
	return nil
}

// Result is the engine output: the schema map plus the structured errors
// that are fatal to the auto-processing path (but not to the run).
type Result struct {
	SchemaMap *model.SchemaMap
	Errors    []model.EngineError
}

// Resolve maps every canonical field to at most one source column.
// Required fields that fail resolution produce a REQUIRED_FIELD_UNMAPPABLE
// error in the result; the partial schema map is still returned so the
// review path can work from it.
func (e *Engine) Resolve(
	src model.RawSource,
	profiles []model.ColumnProfile,
	classes []model.SemanticClassification,
	snap *vocab.Snapshot,
) *Result {
	log := zap.L().With(zap.String("component", "mapping"), zap.String("source", src.Ref()))

	rc := e.newContext(src, profiles, classes, snap)

	out := &model.SchemaMap{
		SchemaVersion:     model.SchemaVersion,
		SourceRef:         src.Ref(),
		VocabularyVersion: snap.Version,
		SourceColumns:     columnNames(profiles),
	}
	result := &Result{SchemaMap: out}

	// Wide inputs: claim the metric columns first so name/semantic
	// strategies cannot steal them for scalar fields.
	e.resolveMetrics(rc, out)

	strategies := e.strategies()

	for _, field := range e.schema.Fields {
		if out.Mapping(field.Name) != nil {
			continue // already resolved by the unpivot pass
		}
		if injected, ok := e.injectedMapping(field, rc); ok {
			out.Mappings = append(out.Mappings, injected)
			continue
		}

		var resolved *model.FieldMapping
		for _, s := range strategies {
			if m := s.resolve(field, rc); m != nil {
				resolved = m
				break
			}
		}

		if resolved == nil || resolved.Confidence <= e.cfg.MinViableConfidence {
			reason := "no candidate column matched"
			if resolved != nil {
				reason = fmt.Sprintf("best candidate %q below viability threshold (%.2f <= %.2f)",
					resolved.SourceColumn, resolved.Confidence, e.cfg.MinViableConfidence)
			}
			out.UnmappedFields = append(out.UnmappedFields, model.UnmappedField{
				Name:     field.Name,
				Required: field.Required,
				Reason:   reason,
			})
			if field.Required {
				result.Errors = append(result.Errors, model.EngineError{
					Code:           model.CodeRequiredFieldUnmappable,
					Message:        fmt.Sprintf("required field %q: %s", field.Name, reason),
					SourceRef:      src.Ref(),
					AffectedFields: []string{field.Name},
				})
				log.Warn("required field unmappable", zap.String("field", field.Name), zap.String("reason", reason))
			}
			continue
		}

		e.adjust(resolved, field, rc)
		if col := rc.byName(resolved.SourceColumn); col != nil {
			rc.claimed[col.pos] = true
		}
		out.Mappings = append(out.Mappings, *resolved)
	}

	e.collectUnmapped(rc, out)
	out.OverallConfidence = overallConfidence(out.Mappings)

	log.Info("mapping resolved",
		zap.Int("mapped", len(out.Mappings)),
		zap.Int("unmapped_columns", len(out.UnmappedColumns)),
		zap.Int("unmapped_fields", len(out.UnmappedFields)),
		zap.Float64("confidence", out.OverallConfidence),
	)
	return result
}

func (e *Engine) newContext(
	src model.RawSource,
	profiles []model.ColumnProfile,
	classes []model.SemanticClassification,
	snap *vocab.Snapshot,
) *resolveCtx {
	rc := &resolveCtx{
		cfg:     e.cfg,
		src:     src,
		claimed: make(map[int]bool),
		cols:    make([]column, len(profiles)),
	}

	classByName := make(map[string]model.SemanticClassification, len(classes))
	for _, c := range classes {
		classByName[c.ColumnName] = c
	}
	for i, p := range profiles {
		rc.cols[i] = column{
			name:    p.Name,
			norm:    NormalizeName(p.Name),
			pos:     p.Position,
			profile: p,
			class:   classByName[p.Name],
		}
	}

	if src.PartnerName != "" {
		rc.partnerCanonical, rc.partnerKnown = snap.ResolvePartner(src.PartnerName)
		if rc.partnerKnown {
			rc.rules = snap.RulesFor(rc.partnerCanonical)
		}
	}

	// Metric columns: vocabulary first, then the source's declared hints.
	rc.metricCols = snap.KnownMetricColumns(columnNames(profiles))
	for _, hint := range src.ExpectedMetrics {
		for _, col := range rc.cols {
			if col.norm == NormalizeName(hint) {
				if _, ok := rc.metricCols[col.name]; !ok {
					rc.metricCols[col.name] = NormalizeName(hint)
				}
			}
		}
	}
	return rc
}

// resolveMetrics decides wide vs long and, for wide inputs, emits the
// unpivot mapping pair for metric_name/metric_value.
func (e *Engine) resolveMetrics(rc *resolveCtx, out *model.SchemaMap) {
	// Long format: there is a literal metric-name column alongside a
	// value column, so the generic ladder handles both fields.
	if rc.byNorm("metric name") != nil || rc.byNorm("metric") != nil {
		return
	}
	if len(rc.metricCols) == 0 {
		return
	}

	cols := make([]string, 0, len(rc.metricCols))
	for name := range rc.metricCols {
		cols = append(cols, name)
	}
	// Column order, not map order.
	sort.Slice(cols, func(i, j int) bool {
		return rc.position(cols[i]) < rc.position(cols[j])
	})

	params := map[string]any{"metrics": rc.metricCols}
	out.Mappings = append(out.Mappings,
		model.FieldMapping{
			CanonicalField:  model.FieldMetricName,
			SourceColumns:   cols,
			Method:          model.MethodUnpivot,
			Confidence:      confUnpivot,
			Transform:       model.TransformUnpivot,
			TransformParams: params,
			Notes:           []string{fmt.Sprintf("unpivot of %d metric columns", len(cols))},
		},
		model.FieldMapping{
			CanonicalField:  model.FieldMetricValue,
			SourceColumns:   cols,
			Method:          model.MethodUnpivot,
			Confidence:      confUnpivot,
			Transform:       model.TransformParseNumber,
			TransformParams: params,
		},
	)
	for _, name := range cols {
		if col := rc.byName(name); col != nil {
			rc.claimed[col.pos] = true
		}
	}
}

// injectedMapping handles the canonical fields the engine itself supplies
// (lineage and provenance fields plus a partner name given out-of-band).
func (e *Engine) injectedMapping(field model.CanonicalField, rc *resolveCtx) (model.FieldMapping, bool) {
	constant := func(value string, note string) (model.FieldMapping, bool) {
		return model.FieldMapping{
			CanonicalField:  field.Name,
			Method:          model.MethodConstant,
			Confidence:      confConstant,
			Transform:       model.TransformConstant,
			TransformParams: map[string]any{"value": value},
			Notes:           []string{note},
		}, true
	}

	switch field.Name {
	case model.FieldSourceSystem:
		return constant(rc.src.SourceSystem, "injected from source descriptor")
	case model.FieldSourceLocation:
		return constant(rc.src.SourceLocation, "injected from source descriptor")
	case model.FieldSourceRecordID, model.FieldIngestedAt:
		// Synthesized per row by the transform executor.
		return model.FieldMapping{
			CanonicalField: field.Name,
			Method:         model.MethodConstant,
			Confidence:     confConstant,
			Notes:          []string{"synthesized by transform executor"},
		}, true
	case model.FieldPartnerName:
		// A column wins over the descriptor; fall through to the ladder
		// and only inject when nothing matches.
		if e.ladderHasCandidate(field, rc) {
			return model.FieldMapping{}, false
		}
		if rc.src.PartnerName != "" {
			name := rc.src.PartnerName
			if rc.partnerKnown {
				name = rc.partnerCanonical
			}
			m, _ := constant(name, "derived from source descriptor partner")
			m.Method = model.MethodDerived
			m.Confidence = confDerived
			return m, true
		}
	}
	return model.FieldMapping{}, false
}

// ladderHasCandidate reports whether any non-derived strategy would claim
// a column for the field.
func (e *Engine) ladderHasCandidate(field model.CanonicalField, rc *resolveCtx) bool {
	for _, s := range e.strategies() {
		if s.method == model.MethodDerived {
			continue
		}
		if m := s.resolve(field, rc); m != nil {
			return true
		}
	}
	return false
}

func (e *Engine) collectUnmapped(rc *resolveCtx, out *model.SchemaMap) {
	for _, col := range rc.cols {
		if rc.claimed[col.pos] {
			continue
		}
		reason := "no canonical field claimed this column"
		if col.class.Ambiguous {
			reason = "semantic classification ambiguous: " + strings.Join(col.class.Reasons, "; ")
		}
		out.UnmappedColumns = append(out.UnmappedColumns, model.UnmappedColumn{
			Name:   col.name,
			Reason: reason,
		})
	}
}

func (rc *resolveCtx) byName(name string) *column {
	for i := range rc.cols {
		if rc.cols[i].name == name {
			return &rc.cols[i]
		}
	}
	return nil
}

func (rc *resolveCtx) position(name string) int {
	if col := rc.byName(name); col != nil {
		return col.pos
	}
	return 1 << 30
}

func columnNames(profiles []model.ColumnProfile) []string {
	out := make([]string, len(profiles))
	for i, p := range profiles {
		out[i] = p.Name
	}
	return out
}

// overallConfidence is the minimum across all resolved mappings, the
// component that feeds run-level aggregation.
func overallConfidence(mappings []model.FieldMapping) float64 {
	if len(mappings) == 0 {
		return 0
	}
	lowest := 1.0
	for _, m := range mappings {
		if m.Confidence < lowest {
			lowest = m.Confidence
		}
	}
	return lowest
}

// NormalizeName lowercases, collapses whitespace, and strips punctuation
// so "Partner_Name", "partner name", and " PARTNER-NAME " all compare
// equal.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer("_", " ", "-", " ", ".", " ", "(", "", ")", "").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// IsGeneric reports whether the column name is one of the configured
// generic tokens.
func (rc *resolveCtx) isGeneric(name string) bool {
	return semantic.IsGenericName(name, rc.cfg.GenericTokens)
}
