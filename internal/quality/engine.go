package quality

import (
	"fmt"
	"regexp"
	"time"

	"github.com/sells-group/harmonize-cli/internal/model"
	"github.com/sells-group/harmonize-cli/internal/vocab"
)

var currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Env supplies the reference data rules evaluate against. All fields are
// optional; rules needing absent data pass vacuously.
type Env struct {
	Vocab *vocab.Snapshot
	// NegativeMetricExceptions lists canonical metric names for which a
	// negative value is legitimate (refunds, adjustments).
	NegativeMetricExceptions []string
	RequiredFields           []string
}

func (e Env) negativeAllowed(metric string) bool {
	for _, m := range e.NegativeMetricExceptions {
		if m == metric {
			return true
		}
	}
	return false
}

func (e Env) required() []string {
	if len(e.RequiredFields) > 0 {
		return e.RequiredFields
	}
	var names []string
	for _, f := range model.DefaultSchema().Required() {
		names = append(names, f.Name)
	}
	return names
}

// Evaluate runs every per-row rule against a single row. It is pure: the
// input row is never mutated; auto-fixes are applied to the returned copy.
// Duplicate detection is table-scoped and handled by EvaluateTable.
func Evaluate(row model.HarmonizedRow, rules []Rule, env Env) ([]model.QualityFinding, model.HarmonizedRow) {
	fixed := row
	var findings []model.QualityFinding

	emit := func(r Rule, field, observed, expected, explain string, autoFixed bool) {
		findings = append(findings, model.QualityFinding{
			RecordKey:         fixed.SourceRecordID,
			RuleID:            r.ID,
			Severity:          r.Severity,
			Field:             field,
			ObservedValue:     observed,
			ExpectedCondition: expected,
			Explanation:       explain,
			AutoFixed:         autoFixed,
			ReviewOnly:        r.ReviewOnly,
		})
	}

	for _, r := range rules {
		switch r.Kind {
		case KindRequiredNonNull:
			for _, f := range env.required() {
				v, ok := fixed.Field(f)
				if !ok || v == "" {
					emit(r, f, "", "non-empty value", fmt.Sprintf("required field %q is empty", f), false)
				}
			}
		case KindParseableDate:
			v, _ := fixed.Field(r.Field)
			if v == "" {
				continue // DH-001 owns missing values
			}
			if _, err := time.Parse("2006-01-02", v); err != nil {
				emit(r, r.Field, v, "ISO 8601 date (YYYY-MM-DD)", "value does not parse as a calendar date", false)
			}
		case KindNumericNonNegative:
			if fixed.MetricValue == nil {
				continue
			}
			if *fixed.MetricValue < 0 && !env.negativeAllowed(fixed.MetricName) {
				emit(r, r.Field, fmt.Sprintf("%g", *fixed.MetricValue), ">= 0",
					fmt.Sprintf("negative value for metric %q which has no negative exception", fixed.MetricName), false)
			}
		case KindKnownPartner:
			if env.Vocab == nil || fixed.PartnerName == "" {
				continue
			}
			if _, ok := env.Vocab.ResolvePartner(fixed.PartnerName); !ok {
				emit(r, r.Field, fixed.PartnerName, "partner present in vocabulary",
					"partner name not found in the partner vocabulary", false)
			}
		case KindKnownMetric:
			if env.Vocab == nil || fixed.MetricName == "" {
				continue
			}
			if _, ok := env.Vocab.ResolveMetric(fixed.MetricName); !ok {
				emit(r, r.Field, fixed.MetricName, "metric present in vocabulary",
					"metric name not found in the metric vocabulary", false)
			}
		case KindValidCurrencyCode:
			v, _ := fixed.Field(r.Field)
			if v == "" || currencyCodeRe.MatchString(v) {
				continue
			}
			if r.AutoFix != "" {
				fixed.Currency = r.AutoFix
				fixed.Fixes = append(fixed.Fixes, fmt.Sprintf("%s: currency %q replaced with %q", r.ID, v, r.AutoFix))
				emit(r, r.Field, v, "3-letter ISO 4217 code", "invalid currency replaced with the configured default", true)
			} else {
				emit(r, r.Field, v, "3-letter ISO 4217 code", "currency is not a 3-letter code", false)
			}
		case KindDuplicateCompositeKey:
			// table-scoped, evaluated in EvaluateTable
		}
	}
	return findings, fixed
}

// TableResult is the outcome of evaluating a whole harmonized table.
type TableResult struct {
	Rows     []model.HarmonizedRow
	Findings []model.QualityFinding
	// RowsFailed and RowsWarned count distinct rows, not findings.
	RowsFailed int
	RowsWarned int
}

// EvaluateTable applies the rule set to every row, then runs the
// table-scoped duplicate rule over rows that survived per-row checks.
// Rows with a fail finding are retained but marked excluded; auto-fixed
// rows stay included. Of a duplicate group the first occurrence in row
// order is kept.
func EvaluateTable(rows []model.HarmonizedRow, rules []Rule, env Env) TableResult {
	res := TableResult{Rows: make([]model.HarmonizedRow, 0, len(rows))}

	var dupRule *Rule
	for i := range rules {
		if rules[i].Kind == KindDuplicateCompositeKey {
			dupRule = &rules[i]
			break
		}
	}

	seen := make(map[string]string, len(rows)) // composite key -> record id of first occurrence
	for _, row := range rows {
		findings, fixed := Evaluate(row, rules, env)

		if dupRule != nil && !hasFailure(findings) {
			key := fixed.CompositeKey()
			if first, dup := seen[key]; dup {
				findings = append(findings, model.QualityFinding{
					RecordKey:         fixed.SourceRecordID,
					RuleID:            dupRule.ID,
					Severity:          dupRule.Severity,
					Field:             model.FieldSourceRecordID,
					ObservedValue:     key,
					ExpectedCondition: "unique (date, package, placement, metric) per source",
					Explanation:       fmt.Sprintf("duplicate of record %s; first occurrence retained", first),
				})
			} else {
				seen[key] = fixed.SourceRecordID
			}
		}

		failed, warned := false, false
		for _, f := range findings {
			switch {
			case excludes(f):
				failed = true
			case f.Severity == model.SeverityWarn:
				warned = true
			}
		}
		if failed {
			fixed.Excluded = true
			fixed.ExclusionReason = firstFailRule(findings)
			res.RowsFailed++
		}
		if warned {
			res.RowsWarned++
		}

		res.Rows = append(res.Rows, fixed)
		res.Findings = append(res.Findings, findings...)
	}
	return res
}

// excludes reports whether a finding disqualifies its row. Auto-fixed
// findings keep the corrected row; review-only findings never exclude.
func excludes(f model.QualityFinding) bool {
	return f.Severity == model.SeverityFail && !f.AutoFixed && !f.ReviewOnly
}

func hasFailure(findings []model.QualityFinding) bool {
	for _, f := range findings {
		if excludes(f) {
			return true
		}
	}
	return false
}

func firstFailRule(findings []model.QualityFinding) string {
	for _, f := range findings {
		if excludes(f) {
			return f.RuleID
		}
	}
	return ""
}
