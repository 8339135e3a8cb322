package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordID_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		sourceRef string
		rowIndex  int
		metricCol string
	}{
		{"unpivoted row", "sftp:reports/jan.csv", 41, "Impressions"},
		{"long format row", "adserver:daily.csv", 0, ""},
		{"ref with colons and slashes", "s3://bucket/a:b/c.csv", 7, "Spend (USD)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := RecordID(tt.sourceRef, tt.rowIndex, tt.metricCol)
			ref, idx, col, err := ParseRecordID(id)
			require.NoError(t, err)
			assert.Equal(t, tt.sourceRef, ref)
			assert.Equal(t, tt.rowIndex, idx)
			assert.Equal(t, tt.metricCol, col)
		})
	}
}

func TestParseRecordID_Malformed(t *testing.T) {
	_, _, _, err := ParseRecordID("not-a-record-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed record id")

	_, _, _, err = ParseRecordID("ref\x1fnot-a-number\x1fcol")
	require.Error(t, err)
}

func TestCompositeKey_DistinguishesMetrics(t *testing.T) {
	a := HarmonizedRow{Date: "2026-01-15", PackagePartnerName: "Winter Push", PlacementPartnerName: "Homepage", MetricName: "impressions"}
	b := a
	b.MetricName = "clicks"
	assert.NotEqual(t, a.CompositeKey(), b.CompositeKey())

	c := a
	assert.Equal(t, a.CompositeKey(), c.CompositeKey())
}

func TestHarmonizedRow_Field(t *testing.T) {
	v := 12.5
	row := HarmonizedRow{Date: "2026-01-15", PartnerName: "Acme", MetricValue: &v}

	got, ok := row.Field(FieldDate)
	assert.True(t, ok)
	assert.Equal(t, "2026-01-15", got)

	got, ok = row.Field(FieldMetricValue)
	assert.True(t, ok)
	assert.Equal(t, "12.5", got)

	_, ok = row.Field(FieldCurrency)
	assert.False(t, ok)

	_, ok = row.Field(FieldIngestedAt)
	assert.False(t, ok, "zero time reports absent")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.2))
	assert.Equal(t, 1.0, Clamp(1.7))
	assert.Equal(t, 0.85, Clamp(0.85))
}
