package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/harmonize-cli/internal/model"
)

func mapWith(confidences ...float64) *model.SchemaMap {
	sm := &model.SchemaMap{}
	for _, c := range confidences {
		sm.Mappings = append(sm.Mappings, model.FieldMapping{
			CanonicalField: model.FieldDate,
			SourceColumn:   "c",
			Confidence:     c,
		})
	}
	return sm
}

func TestRatesFrom_ZeroTotal(t *testing.T) {
	assert.Equal(t, Rates{}, RatesFrom(0, 3, 5))
	assert.Equal(t, Rates{}, RatesFrom(-1, 0, 0))
}

func TestRatesFrom_Ratios(t *testing.T) {
	r := RatesFrom(200, 4, 30)
	assert.InDelta(t, 0.02, r.ErrorRate, 1e-9)
	assert.InDelta(t, 0.15, r.WarningRate, 1e-9)
}

func TestAggregate_MappingMinimumWins(t *testing.T) {
	got := Aggregate(mapWith(0.95, 0.62, 1.0), Rates{})
	assert.InDelta(t, 0.62, got, 1e-9)
}

func TestAggregate_ErrorRateWins(t *testing.T) {
	// 1 - 0.15 = 0.85, below both the weakest mapping and the warning term.
	got := Aggregate(mapWith(0.95, 0.90), Rates{ErrorRate: 0.15, WarningRate: 0.10})
	assert.InDelta(t, 0.85, got, 1e-9)
}

func TestAggregate_WarningsWeighHalf(t *testing.T) {
	onlyErrors := Aggregate(mapWith(1.0), Rates{ErrorRate: 0.20})
	onlyWarnings := Aggregate(mapWith(1.0), Rates{WarningRate: 0.40})
	assert.InDelta(t, onlyErrors, onlyWarnings, 1e-9)
}

func TestAggregate_EmptyMapIsQualityOnly(t *testing.T) {
	got := Aggregate(&model.SchemaMap{}, Rates{ErrorRate: 0.05})
	assert.InDelta(t, 0.95, got, 1e-9)
}
