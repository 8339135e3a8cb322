package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchema_RequiredFields(t *testing.T) {
	reg := DefaultSchema()

	var names []string
	for _, f := range reg.Required() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		FieldDate, FieldPartnerName, FieldMetricName, FieldMetricValue,
		FieldSourceSystem, FieldSourceLocation, FieldSourceRecordID, FieldIngestedAt,
	}, names)
}

func TestSchemaRegistry_ByName(t *testing.T) {
	reg := DefaultSchema()

	f := reg.ByName(FieldMetricValue)
	require.NotNil(t, f)
	assert.Equal(t, TypeNumeric, f.Type)
	assert.True(t, f.Required)

	assert.Nil(t, reg.ByName("no_such_field"))
}

func TestSchemaRegistry_Describe(t *testing.T) {
	reg := DefaultSchema()
	v := 120.5
	rows := []HarmonizedRow{
		{Date: "2026-01-15", PartnerName: "Acme Media", MetricName: "spend", MetricValue: &v, Currency: "USD"},
		{Date: "2026-01-16", PartnerName: "Acme Media", MetricName: "spend"},
	}

	cols := reg.Describe(rows)
	require.Len(t, cols, len(reg.Fields))

	byName := make(map[string]ColumnInfo, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}
	assert.Equal(t, TypeNumeric, byName[FieldMetricValue].Type)
	assert.Equal(t, 0, byName[FieldDate].NullCount)
	assert.Equal(t, 1, byName[FieldMetricValue].NullCount)
	assert.Equal(t, 1, byName[FieldCurrency].NullCount)
	assert.Equal(t, 2, byName[FieldPackagePartnerName].NullCount)
}

func TestRawSource_Ref(t *testing.T) {
	src := RawSource{SourceSystem: "adserver", SourceLocation: "/data/jan.csv"}
	assert.Equal(t, "adserver:/data/jan.csv", src.Ref())

	src.PayloadRef = "delivery-00042"
	assert.Equal(t, "delivery-00042", src.Ref(), "payload ref wins when set")
}
