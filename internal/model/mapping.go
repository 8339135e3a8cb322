package model

// MappingMethod names the strategy that resolved a field mapping.
type MappingMethod string

const (
	MethodPartnerRule MappingMethod = "partner_rule"
	MethodExactName   MappingMethod = "exact_name_match"
	MethodFuzzyName   MappingMethod = "fuzzy_name_match"
	MethodSemantic    MappingMethod = "semantic_match"
	MethodDerived     MappingMethod = "derived_field"
	MethodConstant    MappingMethod = "constant"
	MethodUnpivot     MappingMethod = "unpivot"
)

// TransformKind names an entry in the transform catalog.
type TransformKind string

const (
	TransformPassthrough     TransformKind = "passthrough"
	TransformRename          TransformKind = "rename"
	TransformParseDate       TransformKind = "parse_date"
	TransformParseNumber     TransformKind = "parse_number"
	TransformExtractCurrency TransformKind = "extract_currency"
	TransformSplitField      TransformKind = "split_field"
	TransformConcatenate     TransformKind = "concatenate"
	TransformLookup          TransformKind = "lookup"
	TransformConstant        TransformKind = "constant"
	TransformUnpivot         TransformKind = "unpivot"
)

// MappingAlternative is a losing candidate kept so a reviewer can correct
// a mapping without re-running discovery.
type MappingAlternative struct {
	SourceColumn string        `json:"source_column"`
	Method       MappingMethod `json:"method"`
	Confidence   float64       `json:"confidence"`
}

// FieldMapping resolves one canonical field to at most one source column.
// Immutable once created by the mapping engine.
type FieldMapping struct {
	CanonicalField  string               `json:"canonical_field"`
	SourceColumn    string               `json:"source_column,omitempty"`
	SourceColumns   []string             `json:"source_columns,omitempty"`
	Method          MappingMethod        `json:"method"`
	Confidence      float64              `json:"confidence"`
	Transform       TransformKind        `json:"transform,omitempty"`
	TransformParams map[string]any       `json:"transform_params,omitempty"`
	Notes           []string             `json:"notes,omitempty"`
	ReviewRequired  bool                 `json:"review_required,omitempty"`
	ReviewReason    string               `json:"review_reason,omitempty"`
	Alternatives    []MappingAlternative `json:"alternatives,omitempty"`
}

// UnmappedColumn is a source column no canonical field claimed.
type UnmappedColumn struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// UnmappedField is a canonical field no source column could satisfy.
type UnmappedField struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Reason   string `json:"reason"`
}

// SchemaMap documents the full column-to-field resolution for one source.
type SchemaMap struct {
	SchemaVersion     string           `json:"schema_version"`
	RunID             string           `json:"run_id"`
	SourceRef         string           `json:"source_ref"`
	VocabularyVersion int64            `json:"vocabulary_version"`
	SourceColumns     []string         `json:"source_columns"`
	Mappings          []FieldMapping   `json:"mappings"`
	UnmappedColumns   []UnmappedColumn `json:"unmapped_columns"`
	UnmappedFields    []UnmappedField  `json:"unmapped_fields,omitempty"`
	OverallConfidence float64          `json:"overall_mapping_confidence"`
}

// Mapping returns the mapping entry for a canonical field, or nil.
func (m *SchemaMap) Mapping(field string) *FieldMapping {
	for i := range m.Mappings {
		if m.Mappings[i].CanonicalField == field {
			return &m.Mappings[i]
		}
	}
	return nil
}

// Clamp bounds a confidence score to [0,1].
func Clamp(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
