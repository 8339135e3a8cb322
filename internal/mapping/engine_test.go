package mapping

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/harmonize-cli/internal/model"
	"github.com/sells-group/harmonize-cli/internal/vocab"
)

func testEngine() *Engine {
	return New(Config{}, model.DefaultSchema())
}

func testVocab() *vocab.Snapshot {
	return vocab.NewSnapshot(1,
		[]vocab.Partner{{Name: "Acme Media", Aliases: []string{"acme"}}},
		[]vocab.Metric{
			{Canonical: "impressions"},
			{Canonical: "clicks"},
			{Canonical: "spend", Aliases: []string{"cost"}},
		},
		[]vocab.PartnerRule{
			{PartnerName: "Acme Media", SourceColumn: "Pub Date", CanonicalField: model.FieldDate},
		},
	)
}

func wideProfiles() []model.ColumnProfile {
	return []model.ColumnProfile{
		{Name: "Date", Position: 0, InferredType: model.TypeDate, SampleValues: []string{"2026-01-15"}},
		{Name: "Campaign", Position: 1, InferredType: model.TypeString, SampleValues: []string{"Winter Push"}},
		{Name: "Impressions", Position: 2, InferredType: model.TypeNumeric},
		{Name: "Clicks", Position: 3, InferredType: model.TypeNumeric},
		{Name: "Spend", Position: 4, InferredType: model.TypeNumeric},
	}
}

func wideClasses() []model.SemanticClassification {
	return []model.SemanticClassification{
		{ColumnName: "Date", Candidates: []model.SemanticCandidate{{Type: model.SemanticDate, Confidence: 0.9}}},
		{ColumnName: "Campaign", Candidates: []model.SemanticCandidate{{Type: model.SemanticPackageName, Confidence: 0.9}}},
		{ColumnName: "Impressions", Candidates: []model.SemanticCandidate{{Type: model.SemanticMetricValue, Confidence: 0.9}}},
		{ColumnName: "Clicks", Candidates: []model.SemanticCandidate{{Type: model.SemanticMetricValue, Confidence: 0.9}}},
		{ColumnName: "Spend", Candidates: []model.SemanticCandidate{{Type: model.SemanticMetricValue, Confidence: 0.85}}},
	}
}

func wideSource() model.RawSource {
	return model.RawSource{SourceSystem: "adserver", SourceLocation: "/data/jan.csv", PartnerName: "acme"}
}

func TestResolve_WideTableUnpivot(t *testing.T) {
	res := testEngine().Resolve(wideSource(), wideProfiles(), wideClasses(), testVocab())
	sm := res.SchemaMap

	name := sm.Mapping(model.FieldMetricName)
	require.NotNil(t, name)
	assert.Equal(t, model.MethodUnpivot, name.Method)
	assert.Equal(t, []string{"Impressions", "Clicks", "Spend"}, name.SourceColumns, "column order, not map order")

	value := sm.Mapping(model.FieldMetricValue)
	require.NotNil(t, value)
	assert.Equal(t, model.MethodUnpivot, value.Method)
	assert.Equal(t, model.TransformParseNumber, value.Transform)

	assert.Empty(t, res.Errors)
}

func TestResolve_ExactNameWins(t *testing.T) {
	res := testEngine().Resolve(wideSource(), wideProfiles(), wideClasses(), testVocab())

	date := res.SchemaMap.Mapping(model.FieldDate)
	require.NotNil(t, date)
	assert.Equal(t, model.MethodExactName, date.Method)
	assert.Equal(t, "Date", date.SourceColumn)
	assert.GreaterOrEqual(t, date.Confidence, 0.95)
}

func TestResolve_PartnerRuleOverridesExact(t *testing.T) {
	profiles := wideProfiles()
	profiles[0].Name = "Pub Date"
	classes := wideClasses()
	classes[0].ColumnName = "Pub Date"

	src := wideSource()
	src.PartnerName = "Acme Media"
	res := testEngine().Resolve(src, profiles, classes, testVocab())

	date := res.SchemaMap.Mapping(model.FieldDate)
	require.NotNil(t, date)
	assert.Equal(t, model.MethodPartnerRule, date.Method)
	assert.Equal(t, "Pub Date", date.SourceColumn)
}

func TestResolve_FuzzyNameFlagsRequiredField(t *testing.T) {
	profiles := wideProfiles()
	profiles[0].Name = "Datee"
	classes := wideClasses()
	classes[0].ColumnName = "Datee"
	classes[0].Candidates = nil

	res := testEngine().Resolve(wideSource(), profiles, classes, testVocab())

	date := res.SchemaMap.Mapping(model.FieldDate)
	require.NotNil(t, date)
	assert.Equal(t, model.MethodFuzzyName, date.Method)
	assert.True(t, date.ReviewRequired)
}

func TestResolve_FuzzyDistanceBound(t *testing.T) {
	profiles := wideProfiles()
	profiles[0].Name = "Reporting Period" // edit distance from "date" far above the cutoff
	classes := wideClasses()
	classes[0].ColumnName = "Reporting Period"
	classes[0].Candidates = nil

	res := testEngine().Resolve(wideSource(), profiles, classes, testVocab())

	date := res.SchemaMap.Mapping(model.FieldDate)
	if date != nil {
		assert.NotEqual(t, model.MethodFuzzyName, date.Method)
	}
}

func TestResolve_IdenticalInputsYieldIdenticalMap(t *testing.T) {
	first := testEngine().Resolve(wideSource(), wideProfiles(), wideClasses(), testVocab())
	second := testEngine().Resolve(wideSource(), wideProfiles(), wideClasses(), testVocab())

	a, err := json.Marshal(first.SchemaMap)
	require.NoError(t, err)
	b, err := json.Marshal(second.SchemaMap)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b), "same source and vocabulary reproduce the schema map byte for byte")
}

func TestResolve_SemanticMatch(t *testing.T) {
	res := testEngine().Resolve(wideSource(), wideProfiles(), wideClasses(), testVocab())

	pkg := res.SchemaMap.Mapping(model.FieldPackagePartnerName)
	require.NotNil(t, pkg)
	assert.Equal(t, model.MethodSemantic, pkg.Method)
	assert.Equal(t, "Campaign", pkg.SourceColumn)
}

func TestResolve_PartnerFromDescriptor(t *testing.T) {
	res := testEngine().Resolve(wideSource(), wideProfiles(), wideClasses(), testVocab())

	partner := res.SchemaMap.Mapping(model.FieldPartnerName)
	require.NotNil(t, partner)
	assert.Equal(t, model.MethodDerived, partner.Method)
	// The descriptor name "acme" resolves to its canonical form.
	assert.Equal(t, "Acme Media", partner.TransformParams["value"])
}

func TestResolve_CurrencyDerivedFromConfig(t *testing.T) {
	res := testEngine().Resolve(wideSource(), wideProfiles(), wideClasses(), testVocab())

	currency := res.SchemaMap.Mapping(model.FieldCurrency)
	require.NotNil(t, currency)
	assert.Equal(t, model.MethodDerived, currency.Method)
	assert.Equal(t, "USD", currency.TransformParams["value"])
}

func TestResolve_RequiredFieldUnmappable(t *testing.T) {
	profiles := []model.ColumnProfile{
		{Name: "foo", Position: 0, InferredType: model.TypeString},
		{Name: "bar", Position: 1, InferredType: model.TypeString},
	}
	classes := []model.SemanticClassification{
		{ColumnName: "foo", Ambiguous: true},
		{ColumnName: "bar", Ambiguous: true},
	}
	src := model.RawSource{SourceSystem: "x", SourceLocation: "/f.csv"}

	res := testEngine().Resolve(src, profiles, classes, vocab.NewSnapshot(1, nil, nil, nil))

	require.NotEmpty(t, res.Errors)
	codes := make(map[model.ErrorCode]bool)
	for _, e := range res.Errors {
		codes[e.Code] = true
	}
	assert.True(t, codes[model.CodeRequiredFieldUnmappable])

	var unmappedRequired []string
	for _, uf := range res.SchemaMap.UnmappedFields {
		if uf.Required {
			unmappedRequired = append(unmappedRequired, uf.Name)
		}
	}
	assert.Contains(t, unmappedRequired, model.FieldMetricValue)
}

func TestResolve_UnmappedColumnsReported(t *testing.T) {
	profiles := append(wideProfiles(), model.ColumnProfile{Name: "Internal Notes", Position: 5})
	classes := append(wideClasses(), model.SemanticClassification{ColumnName: "Internal Notes", Ambiguous: true, Reasons: []string{"no semantic candidates matched"}})

	res := testEngine().Resolve(wideSource(), profiles, classes, testVocab())

	var names []string
	for _, uc := range res.SchemaMap.UnmappedColumns {
		names = append(names, uc.Name)
	}
	assert.Contains(t, names, "Internal Notes")
}

func TestResolve_OverallConfidenceIsMinimum(t *testing.T) {
	res := testEngine().Resolve(wideSource(), wideProfiles(), wideClasses(), testVocab())
	sm := res.SchemaMap

	lowest := 1.0
	for _, m := range sm.Mappings {
		if m.Confidence < lowest {
			lowest = m.Confidence
		}
	}
	assert.Equal(t, lowest, sm.OverallConfidence)
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Partner_Name", "partner name"},
		{"  PARTNER-NAME ", "partner name"},
		{"Spend (USD)", "spend usd"},
		{"impressions", "impressions"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), tt.in)
	}
}
