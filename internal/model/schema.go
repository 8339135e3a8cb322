package model

// Canonical field names of the long-format fact schema. Every harmonized
// output row conforms to exactly this set.
const (
	FieldDate                 = "date"
	FieldPartnerName          = "partner_name"
	FieldPackagePartnerName   = "package_partner_name"
	FieldPlacementPartnerName = "placement_partner_name"
	FieldMetricName           = "metric_name"
	FieldMetricValue          = "metric_value"
	FieldCurrency             = "currency"
	FieldSourceSystem         = "source_system"
	FieldSourceLocation       = "source_location"
	FieldSourceRecordID       = "source_record_id"
	FieldIngestedAt           = "ingested_at"
)

// CanonicalField describes one target field of the canonical schema.
type CanonicalField struct {
	Name         string       `json:"name" yaml:"name"`
	Type         DataType     `json:"type" yaml:"type"`
	Required     bool         `json:"required" yaml:"required"`
	SemanticType SemanticType `json:"semantic_type,omitempty" yaml:"semantic_type,omitempty"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
}

// SchemaRegistry is an indexed collection of canonical fields.
type SchemaRegistry struct {
	Fields   []CanonicalField
	byName   map[string]*CanonicalField
	required []*CanonicalField
}

// NewSchemaRegistry creates a SchemaRegistry with indexed lookups.
func NewSchemaRegistry(fields []CanonicalField) *SchemaRegistry {
	r := &SchemaRegistry{
		Fields: fields,
		byName: make(map[string]*CanonicalField, len(fields)),
	}
	for i := range r.Fields {
		f := &r.Fields[i]
		r.byName[f.Name] = f
		if f.Required {
			r.required = append(r.required, f)
		}
	}
	return r
}

// ByName returns the canonical field with the given name, or nil.
func (r *SchemaRegistry) ByName(name string) *CanonicalField {
	return r.byName[name]
}

// Required returns all required canonical fields in schema order.
func (r *SchemaRegistry) Required() []*CanonicalField {
	return r.required
}

// Describe builds the table schema descriptor: one ColumnInfo per
// canonical field in schema order, with null counts tallied over rows.
func (r *SchemaRegistry) Describe(rows []HarmonizedRow) []ColumnInfo {
	cols := make([]ColumnInfo, len(r.Fields))
	for i, f := range r.Fields {
		cols[i] = ColumnInfo{Name: f.Name, Type: f.Type}
	}
	for i := range rows {
		for j, f := range r.Fields {
			if _, ok := rows[i].Field(f.Name); !ok {
				cols[j].NullCount++
			}
		}
	}
	return cols
}

// DefaultSchema returns the built-in canonical fact schema. A YAML schema
// file, when configured, replaces this wholesale.
func DefaultSchema() *SchemaRegistry {
	return NewSchemaRegistry([]CanonicalField{
		{Name: FieldDate, Type: TypeDate, Required: true, SemanticType: SemanticDate},
		{Name: FieldPartnerName, Type: TypeString, Required: true, SemanticType: SemanticPartnerName},
		{Name: FieldPackagePartnerName, Type: TypeString, Required: false, SemanticType: SemanticPackageName},
		{Name: FieldPlacementPartnerName, Type: TypeString, Required: false, SemanticType: SemanticPlacementName},
		{Name: FieldMetricName, Type: TypeString, Required: true},
		{Name: FieldMetricValue, Type: TypeNumeric, Required: true, SemanticType: SemanticMetricValue},
		{Name: FieldCurrency, Type: TypeString, Required: false, SemanticType: SemanticCurrency},
		{Name: FieldSourceSystem, Type: TypeString, Required: true},
		{Name: FieldSourceLocation, Type: TypeString, Required: true},
		{Name: FieldSourceRecordID, Type: TypeString, Required: true},
		{Name: FieldIngestedAt, Type: TypeDate, Required: true},
	})
}
