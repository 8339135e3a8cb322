package mapping

import (
	"fmt"

	"github.com/agext/levenshtein"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// strategy is one rung of the decision ladder. resolve returns nil when
// the strategy has no candidate for the field.
type strategy struct {
	method  model.MappingMethod
	resolve func(field model.CanonicalField, rc *resolveCtx) *model.FieldMapping
}

// strategies returns the ladder in strict precedence order.
func (e *Engine) strategies() []strategy {
	return []strategy{
		{model.MethodPartnerRule, e.partnerRule},
		{model.MethodExactName, e.exactName},
		{model.MethodFuzzyName, e.fuzzyName},
		{model.MethodSemantic, e.semanticMatch},
		{model.MethodDerived, e.derivable},
	}
}

// partnerRule applies a forced source_column → canonical_field pairing
// from the vocabulary, short-circuiting the generic ladder.
func (e *Engine) partnerRule(field model.CanonicalField, rc *resolveCtx) *model.FieldMapping {
	for _, rule := range rc.rules {
		if rule.CanonicalField != field.Name {
			continue
		}
		col := rc.byNorm(NormalizeName(rule.SourceColumn))
		if col == nil {
			continue
		}
		return &model.FieldMapping{
			CanonicalField: field.Name,
			SourceColumn:   col.name,
			Method:         model.MethodPartnerRule,
			Confidence:     confPartnerRule,
			Transform:      transformFor(field),
			Notes:          []string{fmt.Sprintf("partner rule for %s", rc.partnerCanonical)},
		}
	}
	return nil
}

// exactName matches the canonical field name after case/whitespace
// normalization.
func (e *Engine) exactName(field model.CanonicalField, rc *resolveCtx) *model.FieldMapping {
	want := NormalizeName(field.Name)
	col := rc.byNorm(want)
	if col == nil && field.Name == model.FieldPackagePartnerName {
		// Common shorthand: partners label the package column "package".
		col = rc.byNorm("package")
	}
	if col == nil && field.Name == model.FieldPlacementPartnerName {
		col = rc.byNorm("placement")
	}
	if col == nil {
		return nil
	}
	return &model.FieldMapping{
		CanonicalField: field.Name,
		SourceColumn:   col.name,
		Method:         model.MethodExactName,
		Confidence:     confExactName,
		Transform:      transformFor(field),
	}
}

// fuzzyName matches within the configured edit distance. Required fields
// resolved this way are flagged for review.
func (e *Engine) fuzzyName(field model.CanonicalField, rc *resolveCtx) *model.FieldMapping {
	want := NormalizeName(field.Name)
	params := levenshtein.NewParams().MaxCost(e.cfg.FuzzyDistance + 1)

	type scored struct {
		col  *column
		dist int
	}
	var candidates []scored
	for i := range rc.cols {
		col := &rc.cols[i]
		if rc.claimed[col.pos] {
			continue
		}
		dist := levenshtein.Distance(want, col.norm, params)
		if dist <= e.cfg.FuzzyDistance {
			candidates = append(candidates, scored{col, dist})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// Smallest distance wins; leftmost column on ties.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.dist < best.dist || (c.dist == best.dist && c.col.pos < best.col.pos) {
			best = c
		}
	}

	m := &model.FieldMapping{
		CanonicalField: field.Name,
		SourceColumn:   best.col.name,
		Method:         model.MethodFuzzyName,
		Confidence:     confFuzzyName,
		Transform:      transformFor(field),
		Notes:          []string{fmt.Sprintf("edit distance %d from %q", best.dist, field.Name)},
	}
	for _, c := range candidates {
		if c.col != best.col {
			m.Alternatives = append(m.Alternatives, model.MappingAlternative{
				SourceColumn: c.col.name,
				Method:       model.MethodFuzzyName,
				Confidence:   confFuzzyName,
			})
		}
	}
	if field.Required {
		m.ReviewRequired = true
		m.ReviewReason = "required field resolved by fuzzy name match"
	}
	return m
}

// semanticMatch uses the classifier output: the highest-confidence column
// whose best candidate type matches the field wins, leftmost on ties.
func (e *Engine) semanticMatch(field model.CanonicalField, rc *resolveCtx) *model.FieldMapping {
	if field.SemanticType == "" {
		return nil
	}

	type scored struct {
		col        *column
		confidence float64
	}
	var candidates []scored
	for i := range rc.cols {
		col := &rc.cols[i]
		if rc.claimed[col.pos] {
			continue
		}
		for _, cand := range col.class.Candidates {
			if cand.Type == field.SemanticType {
				candidates = append(candidates, scored{col, cand.Confidence * e.cfg.SemanticWeight})
				break
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		// Strict greater-than keeps the leftmost column on ties; the
		// tie-break is load-bearing for reproducibility.
		if c.confidence > best.confidence {
			best = c
		}
	}

	m := &model.FieldMapping{
		CanonicalField: field.Name,
		SourceColumn:   best.col.name,
		Method:         model.MethodSemantic,
		Confidence:     model.Clamp(best.confidence),
		Transform:      transformFor(field),
		Notes:          []string{fmt.Sprintf("semantic type %s", field.SemanticType)},
	}
	runnerUps := 0
	for _, c := range candidates {
		if c.col == best.col {
			continue
		}
		m.Alternatives = append(m.Alternatives, model.MappingAlternative{
			SourceColumn: c.col.name,
			Method:       model.MethodSemantic,
			Confidence:   model.Clamp(c.confidence),
		})
		if best.confidence-c.confidence < e.cfg.RunnerUpGap {
			runnerUps++
		}
	}
	if runnerUps > 0 {
		m.Notes = append(m.Notes, fmt.Sprintf("%d runner-up column(s) within %.2f", runnerUps, e.cfg.RunnerUpGap))
	}
	return m
}

// derivable covers fields extractable from a differently-typed column or
// from run context: a date from a timestamp column, currency from config.
func (e *Engine) derivable(field model.CanonicalField, rc *resolveCtx) *model.FieldMapping {
	switch field.Name {
	case model.FieldDate:
		// A timestamp-looking column can yield the date part.
		for i := range rc.cols {
			col := &rc.cols[i]
			if rc.claimed[col.pos] {
				continue
			}
			if col.profile.InferredType == model.TypeDate {
				return &model.FieldMapping{
					CanonicalField:  field.Name,
					SourceColumn:    col.name,
					Method:          model.MethodDerived,
					Confidence:      confDerived,
					Transform:       model.TransformParseDate,
					TransformParams: map[string]any{"truncate": "day"},
					Notes:           []string{fmt.Sprintf("date derived from timestamp column %q", col.name)},
				}
			}
		}
	case model.FieldCurrency:
		return &model.FieldMapping{
			CanonicalField:  field.Name,
			Method:          model.MethodDerived,
			Confidence:      confDerived,
			Transform:       model.TransformConstant,
			TransformParams: map[string]any{"value": e.cfg.DefaultCurrency},
			Notes:           []string{"currency inferred from run context"},
		}
	}
	return nil
}

// transformFor picks the catalog entry implied by the field's type.
func transformFor(field model.CanonicalField) model.TransformKind {
	switch {
	case field.Name == model.FieldCurrency:
		return model.TransformExtractCurrency
	case field.Type == model.TypeDate:
		return model.TransformParseDate
	case field.Type == model.TypeNumeric:
		return model.TransformParseNumber
	default:
		return model.TransformRename
	}
}
