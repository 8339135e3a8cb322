package model

// Severity grades a quality finding.
type Severity string

const (
	SeverityPass Severity = "pass"
	SeverityWarn Severity = "warn"
	SeverityFail Severity = "fail"
)

// QualityFinding is the outcome of evaluating one rule against one row
// (or one partition, for composite-key rules).
type QualityFinding struct {
	RecordKey         string   `json:"record_key"`
	RuleID            string   `json:"rule_id"`
	Severity          Severity `json:"severity"`
	Field             string   `json:"field,omitempty"`
	ObservedValue     string   `json:"observed_value,omitempty"`
	ExpectedCondition string   `json:"expected_condition"`
	Explanation       string   `json:"explanation,omitempty"`
	AutoFixed         bool     `json:"auto_fixed,omitempty"`
	ReviewOnly        bool     `json:"review_only,omitempty"`
}
