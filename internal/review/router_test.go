package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/harmonize-cli/internal/model"
)

func cleanInput() Input {
	return Input{
		RunID:     "run-1",
		SourceRef: "adserver:/data/jan.csv",
		SchemaMap: &model.SchemaMap{
			SourceColumns: []string{"Date", "Impressions"},
			Mappings: []model.FieldMapping{
				{CanonicalField: model.FieldDate, SourceColumn: "Date", Confidence: 0.95},
				{CanonicalField: model.FieldMetricName, SourceColumns: []string{"Impressions"}, Confidence: 0.95},
			},
		},
		Overall:      0.95,
		PartnerKnown: true,
		PartnerName:  "Acme Media",
		PriorColumns: []string{"Date", "Impressions"},
		Now:          time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
}

func itemFor(items []model.ReviewItem, reason model.TriggerReason) *model.ReviewItem {
	for i := range items {
		if items[i].TriggerReason == reason {
			return &items[i]
		}
	}
	return nil
}

func TestRoute_CleanSourceAutoAccepts(t *testing.T) {
	assert.Empty(t, Route(cleanInput(), Config{}))
}

func TestRoute_LowFieldConfidenceBoundaryIsStrict(t *testing.T) {
	in := cleanInput()
	in.SchemaMap.Mappings[0].Confidence = 0.60
	assert.Empty(t, Route(in, Config{}), "exactly at threshold does not escalate")

	in.SchemaMap.Mappings[0].Confidence = 0.59
	items := Route(in, Config{})
	f := itemFor(items, model.TriggerLowFieldConfidence)
	require.NotNil(t, f)
	assert.Equal(t, model.FieldDate, f.AffectedField)
	require.NotNil(t, f.Confidence)
	assert.InDelta(t, 0.59, *f.Confidence, 1e-9)
	require.NotNil(t, f.Threshold)
	assert.InDelta(t, 0.60, *f.Threshold, 1e-9)
	require.NotNil(t, f.ProposedMapping)
	assert.Equal(t, "Date", f.ProposedMapping.SourceColumn)
}

func TestRoute_FlaggedMappingEscalatesAboveThreshold(t *testing.T) {
	in := cleanInput()
	in.SchemaMap.Mappings[0].ReviewRequired = true
	in.SchemaMap.Mappings[0].ReviewReason = "fuzzy match on a required field"

	items := Route(in, Config{})
	f := itemFor(items, model.TriggerLowFieldConfidence)
	require.NotNil(t, f)
	assert.Contains(t, f.Description, "fuzzy match on a required field")
}

func TestRoute_OptionalFieldsNeverEscalate(t *testing.T) {
	in := cleanInput()
	in.SchemaMap.Mappings = append(in.SchemaMap.Mappings, model.FieldMapping{
		CanonicalField: model.FieldPlacementPartnerName,
		SourceColumn:   "Placement",
		Confidence:     0.30,
	})
	assert.Empty(t, Route(in, Config{}))
}

func TestRoute_RequiredFieldUnmappable(t *testing.T) {
	in := cleanInput()
	in.SchemaMap.UnmappedFields = []model.UnmappedField{
		{Name: model.FieldMetricValue, Required: true, Reason: "no numeric column"},
		{Name: model.FieldCurrency, Required: false, Reason: "not present"},
	}

	items := Route(in, Config{})
	require.Len(t, items, 1, "optional unmapped fields do not escalate")
	assert.Equal(t, model.TriggerUnmappableField, items[0].TriggerReason)
	assert.Equal(t, model.FieldMetricValue, items[0].AffectedField)
}

func TestRoute_UnknownPartner(t *testing.T) {
	in := cleanInput()
	in.PartnerKnown = false
	in.PartnerName = "Initech"

	items := Route(in, Config{})
	f := itemFor(items, model.TriggerUnknownPartner)
	require.NotNil(t, f)
	assert.Contains(t, f.Description, "Initech")
}

func TestRoute_FirstRunVersusDrift(t *testing.T) {
	in := cleanInput()
	in.PriorColumns = nil
	items := Route(in, Config{})
	assert.NotNil(t, itemFor(items, model.TriggerFirstRun))
	assert.Nil(t, itemFor(items, model.TriggerColumnSetChanged), "first run and drift are mutually exclusive")

	in.PriorColumns = []string{"Date", "Imps"}
	items = Route(in, Config{})
	assert.Nil(t, itemFor(items, model.TriggerFirstRun))
	drift := itemFor(items, model.TriggerColumnSetChanged)
	require.NotNil(t, drift)
	assert.Contains(t, drift.Description, "Impressions")
	assert.Contains(t, drift.Description, "Imps")
}

func TestRoute_UnchangedColumnsNoDrift(t *testing.T) {
	in := cleanInput()
	// Same set, different order.
	in.PriorColumns = []string{"Impressions", "Date"}
	assert.Empty(t, Route(in, Config{}))
}

func TestRoute_RateTriggers(t *testing.T) {
	in := cleanInput()
	in.Rates = Rates{ErrorRate: 0.06, WarningRate: 0.25}

	items := Route(in, Config{})
	assert.NotNil(t, itemFor(items, model.TriggerHighErrorRate))
	assert.NotNil(t, itemFor(items, model.TriggerHighWarningRate))

	// At the limit is acceptable; strictly above escalates.
	in.Rates = Rates{ErrorRate: 0.05, WarningRate: 0.20}
	assert.Empty(t, Route(in, Config{}))
}

func TestRoute_LowOverallConfidence(t *testing.T) {
	in := cleanInput()
	in.Overall = 0.40

	items := Route(in, Config{})
	f := itemFor(items, model.TriggerLowOverallConfidence)
	require.NotNil(t, f)
	require.NotNil(t, f.Confidence)
	assert.InDelta(t, 0.40, *f.Confidence, 1e-9)
}

func TestRoute_ItemEnvelope(t *testing.T) {
	in := cleanInput()
	in.PriorColumns = nil

	items := Route(in, Config{ItemTTL: 24 * time.Hour})
	require.Len(t, items, 1)
	it := items[0]
	assert.NotEmpty(t, it.ReviewID)
	assert.Equal(t, "run-1", it.RunID)
	assert.Equal(t, "adserver:/data/jan.csv", it.SourceRef)
	assert.Equal(t, model.ReviewPending, it.Status)
	assert.Equal(t, in.Now, it.CreatedAt)
	assert.Equal(t, in.Now.Add(24*time.Hour), it.ExpiresAt)
}

func TestRoute_SamplesAttached(t *testing.T) {
	in := cleanInput()
	in.SchemaMap.Mappings[0].Confidence = 0.50
	in.Samples = func(column string) []string {
		if column == "Date" {
			return []string{"2026-01-01", "2026-01-02"}
		}
		return nil
	}

	items := Route(in, Config{})
	f := itemFor(items, model.TriggerLowFieldConfidence)
	require.NotNil(t, f)
	assert.Equal(t, []string{"2026-01-01", "2026-01-02"}, f.SampleValues)
}
