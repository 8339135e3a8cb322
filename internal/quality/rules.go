package quality

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// Kind selects the condition a rule evaluates. The set is closed: rules
// are declarative data choosing among known conditions, not expressions.
type Kind string

const (
	KindRequiredNonNull       Kind = "required_non_null"
	KindParseableDate         Kind = "parseable_date"
	KindNumericNonNegative    Kind = "numeric_non_negative"
	KindKnownPartner          Kind = "known_partner"
	KindKnownMetric           Kind = "known_metric"
	KindValidCurrencyCode     Kind = "valid_currency_code"
	KindDuplicateCompositeKey Kind = "duplicate_composite_key"
)

// Rule is one declarative validation rule.
type Rule struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Kind       Kind           `yaml:"kind"`
	Field      string         `yaml:"field,omitempty"`
	Severity   model.Severity `yaml:"severity"`
	ReviewOnly bool           `yaml:"review_only,omitempty"` // flags for review instead of excluding
	AutoFix    string         `yaml:"auto_fix,omitempty"`    // default value substituted on violation
	Enabled    *bool          `yaml:"enabled,omitempty"`
}

func (r Rule) enabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// ruleFile is the YAML shape of an external rule set.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule file, keeping only enabled rules.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "quality: read rules %s", path)
	}
	var f ruleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrapf(err, "quality: parse rules %s", path)
	}
	out := make([]Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		if r.enabled() {
			out = append(out, r)
		}
	}
	return out, nil
}

// DefaultRules is the shipped rule set, used when no rules file is
// configured.
func DefaultRules(defaultCurrency string) []Rule {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return []Rule{
		{ID: "DH-001", Name: "required fields present", Kind: KindRequiredNonNull, Severity: model.SeverityFail},
		{ID: "DH-002", Name: "date is a valid ISO date", Kind: KindParseableDate, Field: model.FieldDate, Severity: model.SeverityFail},
		{ID: "DH-003", Name: "metric value non-negative", Kind: KindNumericNonNegative, Field: model.FieldMetricValue, Severity: model.SeverityFail},
		{ID: "DH-004", Name: "no duplicate composite keys", Kind: KindDuplicateCompositeKey, Severity: model.SeverityFail},
		{ID: "DH-005", Name: "partner is known", Kind: KindKnownPartner, Field: model.FieldPartnerName, Severity: model.SeverityWarn, ReviewOnly: true},
		{ID: "DH-006", Name: "metric name is known", Kind: KindKnownMetric, Field: model.FieldMetricName, Severity: model.SeverityWarn, ReviewOnly: true},
		{ID: "DH-007", Name: "currency is a valid code", Kind: KindValidCurrencyCode, Field: model.FieldCurrency, Severity: model.SeverityWarn, AutoFix: defaultCurrency},
	}
}
