package model

// DataType is the coarse type guess for a raw column.
type DataType string

const (
	TypeString  DataType = "string"
	TypeNumeric DataType = "numeric"
	TypeDate    DataType = "date"
	TypeBoolean DataType = "boolean"
)

// Cardinality buckets a column's distinct-value count relative to row count.
type Cardinality string

const (
	CardinalityHigh   Cardinality = "high"
	CardinalityMedium Cardinality = "medium"
	CardinalityLow    Cardinality = "low"
)

// ColumnProfile holds per-column statistics computed in a single pass.
// Created once per run per column and never mutated afterwards.
type ColumnProfile struct {
	Name          string      `json:"name"`
	Position      int         `json:"position"`
	InferredType  DataType    `json:"inferred_type"`
	NullRate      float64     `json:"null_rate"`
	DistinctCount int         `json:"distinct_count"`
	Cardinality   Cardinality `json:"cardinality"`
	SampleValues  []string    `json:"sample_values"`
	Min           string      `json:"min,omitempty"`
	Max           string      `json:"max,omitempty"`
	Mean          *float64    `json:"mean,omitempty"`
}

// SemanticType labels what a column means, independent of its data type.
type SemanticType string

const (
	SemanticDate          SemanticType = "date"
	SemanticPartnerName   SemanticType = "partner_name"
	SemanticPackageName   SemanticType = "package_name"
	SemanticPlacementName SemanticType = "placement_name"
	SemanticMetricValue   SemanticType = "metric_value"
	SemanticCurrency      SemanticType = "currency"
	SemanticIdentifier    SemanticType = "identifier"
	SemanticUnknown       SemanticType = "unknown"
)

// SemanticCandidate is one scored candidate type for a column.
type SemanticCandidate struct {
	Type       SemanticType `json:"type"`
	Confidence float64      `json:"confidence"`
	Reasons    []string     `json:"reasons,omitempty"`
}

// SemanticClassification is the classifier output for one column.
// Candidates are sorted by confidence descending, type name ascending on
// ties, so output is deterministic for identical input.
type SemanticClassification struct {
	ColumnName string              `json:"column_name"`
	Candidates []SemanticCandidate `json:"candidate_types"`
	Ambiguous  bool                `json:"ambiguous"`
	Reasons    []string            `json:"ambiguity_reasons,omitempty"`
}

// Best returns the top candidate, or a zero-confidence unknown when the
// classifier produced no candidates.
func (c SemanticClassification) Best() SemanticCandidate {
	if len(c.Candidates) == 0 {
		return SemanticCandidate{Type: SemanticUnknown}
	}
	return c.Candidates[0]
}
