package semantic

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// RuleKind selects how a rule matches a column.
type RuleKind string

const (
	KindNameContains RuleKind = "name_contains"
	KindValuePattern RuleKind = "value_pattern"
	KindCardinality  RuleKind = "cardinality"
	KindInferredType RuleKind = "inferred_type"
)

// Rule is one weighted heuristic. Rules are data, not code: the rule set
// ships as YAML so weights and keyword lists evolve without touching the
// algorithm.
type Rule struct {
	ID          string             `yaml:"id"`
	Kind        RuleKind           `yaml:"kind"`
	Target      model.SemanticType `yaml:"target"`
	Weight      float64            `yaml:"weight"`
	Keywords    []string           `yaml:"keywords,omitempty"`
	Pattern     string             `yaml:"pattern,omitempty"`
	MinRatio    float64            `yaml:"min_ratio,omitempty"` // value_pattern: fraction of samples that must match
	Cardinality model.Cardinality  `yaml:"cardinality,omitempty"`
	Type        model.DataType     `yaml:"inferred_type,omitempty"`

	re *regexp.Regexp
}

// Ruleset is an ordered list of rules plus the ambiguity knobs.
type Ruleset struct {
	Rules         []Rule   `yaml:"rules"`
	AmbiguityGap  float64  `yaml:"ambiguity_gap"`
	MinConfidence float64  `yaml:"min_confidence"`
	GenericTokens []string `yaml:"generic_tokens"`
}

// Compile pre-compiles the value patterns. Called once at load.
func (rs *Ruleset) Compile() error {
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Kind != KindValuePattern {
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return eris.Wrapf(err, "semantic: compile rule %s pattern", r.ID)
		}
		r.re = re
	}
	return nil
}

// LoadRuleset reads a YAML rule file and compiles its patterns.
func LoadRuleset(path string) (*Ruleset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "semantic: read rules %s", path)
	}
	var rs Ruleset
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, eris.Wrapf(err, "semantic: parse rules %s", path)
	}
	if err := rs.Compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// DefaultRuleset mirrors the shipped rules.yaml. Used when no rules file
// is configured.
func DefaultRuleset() *Ruleset {
	rs := &Ruleset{
		AmbiguityGap:  0.15,
		MinConfidence: 0.5,
		GenericTokens: []string{"value", "id", "name", "data", "field", "column", "item"},
		Rules: []Rule{
			{ID: "date-name", Kind: KindNameContains, Target: model.SemanticDate, Weight: 0.5,
				Keywords: []string{"date", "day", "fecha", "datum", "period"}},
			{ID: "date-iso", Kind: KindValuePattern, Target: model.SemanticDate, Weight: 0.4,
				Pattern: `^\d{4}-\d{2}-\d{2}`, MinRatio: 0.8},
			{ID: "date-slash", Kind: KindValuePattern, Target: model.SemanticDate, Weight: 0.35,
				Pattern: `^\d{1,2}/\d{1,2}/\d{4}$`, MinRatio: 0.8},
			{ID: "date-type", Kind: KindInferredType, Target: model.SemanticDate, Weight: 0.1,
				Type: model.TypeDate},

			{ID: "partner-name", Kind: KindNameContains, Target: model.SemanticPartnerName, Weight: 0.6,
				Keywords: []string{"partner", "vendor", "publisher", "network", "socio"}},
			{ID: "partner-cardinality", Kind: KindCardinality, Target: model.SemanticPartnerName, Weight: 0.2,
				Cardinality: model.CardinalityLow},

			{ID: "package-name", Kind: KindNameContains, Target: model.SemanticPackageName, Weight: 0.6,
				Keywords: []string{"campaign", "package", "paquete", "program", "order", "io"}},
			{ID: "package-cardinality", Kind: KindCardinality, Target: model.SemanticPackageName, Weight: 0.15,
				Cardinality: model.CardinalityMedium},

			{ID: "placement-name", Kind: KindNameContains, Target: model.SemanticPlacementName, Weight: 0.6,
				Keywords: []string{"placement", "ad unit", "adunit", "slot", "creative", "position"}},

			{ID: "metric-name", Kind: KindNameContains, Target: model.SemanticMetricValue, Weight: 0.5,
				Keywords: []string{"impression", "click", "spend", "cost", "revenue", "conversion", "view", "install", "gasto", "ingresos"}},
			{ID: "metric-numeric", Kind: KindInferredType, Target: model.SemanticMetricValue, Weight: 0.3,
				Type: model.TypeNumeric},
			{ID: "metric-currency-like", Kind: KindValuePattern, Target: model.SemanticMetricValue, Weight: 0.2,
				Pattern: `^[$€£]?\s?-?[\d,]+(\.\d+)?$`, MinRatio: 0.8},

			{ID: "currency-name", Kind: KindNameContains, Target: model.SemanticCurrency, Weight: 0.6,
				Keywords: []string{"currency", "ccy", "moneda", "devise"}},
			{ID: "currency-code", Kind: KindValuePattern, Target: model.SemanticCurrency, Weight: 0.4,
				Pattern: `^[A-Z]{3}$`, MinRatio: 0.9},

			{ID: "identifier-name", Kind: KindNameContains, Target: model.SemanticIdentifier, Weight: 0.5,
				Keywords: []string{"id", "uuid", "key", "code", "ref"}},
			{ID: "identifier-cardinality", Kind: KindCardinality, Target: model.SemanticIdentifier, Weight: 0.3,
				Cardinality: model.CardinalityHigh},
		},
	}
	if err := rs.Compile(); err != nil {
		// The built-in patterns are static; a compile failure is a
		// programming error.
		panic(err)
	}
	return rs
}
