// Package semantic assigns each profiled column a semantic-type
// distribution using rule-weighted scoring. Output is deterministic for
// identical input: no randomness, stable candidate ordering.
package semantic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// Classify scores one column profile against the rule set and returns a
// confidence per candidate semantic type.
func Classify(p model.ColumnProfile, rs *Ruleset) model.SemanticClassification {
	scores := make(map[model.SemanticType]float64)
	reasons := make(map[model.SemanticType][]string)
	maxScore := make(map[model.SemanticType]float64)

	for _, rule := range rs.Rules {
		maxScore[rule.Target] += rule.Weight
		if matched, why := matches(rule, p); matched {
			scores[rule.Target] += rule.Weight
			reasons[rule.Target] = append(reasons[rule.Target], why)
		}
	}

	out := model.SemanticClassification{ColumnName: p.Name}
	for typ, score := range scores {
		confidence := score
		if maxScore[typ] > 0 {
			confidence = score / maxScore[typ]
		}
		out.Candidates = append(out.Candidates, model.SemanticCandidate{
			Type:       typ,
			Confidence: model.Clamp(confidence),
			Reasons:    reasons[typ],
		})
	}

	// Confidence descending, type name ascending on ties: reproducible
	// ordering is part of the contract.
	sort.Slice(out.Candidates, func(i, j int) bool {
		if out.Candidates[i].Confidence != out.Candidates[j].Confidence {
			return out.Candidates[i].Confidence > out.Candidates[j].Confidence
		}
		return out.Candidates[i].Type < out.Candidates[j].Type
	})

	flagAmbiguity(&out, rs)
	return out
}

// ClassifyAll classifies every profile, preserving column order.
func ClassifyAll(profiles []model.ColumnProfile, rs *Ruleset) []model.SemanticClassification {
	out := make([]model.SemanticClassification, len(profiles))
	for i, p := range profiles {
		out[i] = Classify(p, rs)
	}
	return out
}

func matches(rule Rule, p model.ColumnProfile) (bool, string) {
	switch rule.Kind {
	case KindNameContains:
		lower := strings.ToLower(p.Name)
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return true, fmt.Sprintf("column name contains %q", kw)
			}
		}
	case KindValuePattern:
		if rule.re == nil || len(p.SampleValues) == 0 {
			return false, ""
		}
		hit := 0
		for _, v := range p.SampleValues {
			if rule.re.MatchString(v) {
				hit++
			}
		}
		ratio := float64(hit) / float64(len(p.SampleValues))
		minRatio := rule.MinRatio
		if minRatio == 0 {
			minRatio = 0.8
		}
		if ratio >= minRatio {
			return true, fmt.Sprintf("%d/%d samples match %s", hit, len(p.SampleValues), rule.ID)
		}
	case KindCardinality:
		if p.Cardinality == rule.Cardinality {
			return true, fmt.Sprintf("cardinality is %s", p.Cardinality)
		}
	case KindInferredType:
		if p.InferredType == rule.Type {
			return true, fmt.Sprintf("inferred type is %s", p.InferredType)
		}
	}
	return false, ""
}

// flagAmbiguity raises the ambiguity flag when the top two candidates are
// within the configured gap, the best confidence is below the floor, or
// the column name is a generic token.
func flagAmbiguity(c *model.SemanticClassification, rs *Ruleset) {
	if len(c.Candidates) == 0 {
		c.Ambiguous = true
		c.Reasons = append(c.Reasons, "no semantic candidates matched")
		return
	}

	best := c.Candidates[0]
	if len(c.Candidates) > 1 && best.Confidence-c.Candidates[1].Confidence < rs.AmbiguityGap {
		c.Ambiguous = true
		c.Reasons = append(c.Reasons, fmt.Sprintf(
			"top candidates %s and %s within %.2f",
			best.Type, c.Candidates[1].Type, rs.AmbiguityGap))
	}
	if best.Confidence < rs.MinConfidence {
		c.Ambiguous = true
		c.Reasons = append(c.Reasons, fmt.Sprintf(
			"best confidence %.2f below %.2f", best.Confidence, rs.MinConfidence))
	}
	if IsGenericName(c.ColumnName, rs.GenericTokens) {
		c.Ambiguous = true
		c.Reasons = append(c.Reasons, fmt.Sprintf("column name %q is generic", c.ColumnName))
	}
}

// IsGenericName reports whether a column name is one of the configured
// generic tokens (after case/whitespace normalization).
func IsGenericName(name string, tokens []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, t := range tokens {
		if normalized == t {
			return true
		}
	}
	return false
}
