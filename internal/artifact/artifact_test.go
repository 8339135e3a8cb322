package artifact

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/harmonize-cli/internal/model"
)

func sampleTable(runID string) *model.HarmonizedTable {
	v := 1250.5
	return &model.HarmonizedTable{
		SchemaVersion: "1.0",
		RunID:         runID,
		RowCount:      2,
		Rows: []model.HarmonizedRow{
			{
				Date: "2026-01-15", PartnerName: "Acme Media",
				PackagePartnerName: "Winter Push", MetricName: "impressions",
				MetricValue: &v, Currency: "USD", SourceSystem: "adserver",
				SourceLocation: "/data/jan.csv", SourceRecordID: "rec-1",
				IngestedAt: time.Date(2026, 1, 18, 9, 0, 0, 0, time.UTC),
			},
			{
				Date: "2026-01-16", PartnerName: "Acme Media",
				MetricName: "spend", SourceSystem: "adserver",
				SourceLocation: "/data/jan.csv", SourceRecordID: "rec-2",
				IngestedAt: time.Date(2026, 1, 18, 9, 0, 0, 0, time.UTC),
				Excluded:   true, ExclusionReason: "DH-001",
			},
		},
	}
}

func TestWriteTable_JSONOnly(t *testing.T) {
	w := &Writer{Dir: t.TempDir()}

	paths, err := w.WriteTable("run-1", sampleTable("run-1"))
	require.NoError(t, err)
	require.Contains(t, paths, "harmonized_table")
	assert.NotContains(t, paths, "harmonized_table_csv")
	assert.Equal(t, filepath.Join(w.Dir, "run-1", "harmonized_table.json"), paths["harmonized_table"])

	raw, err := os.ReadFile(paths["harmonized_table"])
	require.NoError(t, err)
	var got model.HarmonizedTable
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Rows, 2)
	require.NotNil(t, got.Rows[0].MetricValue)
	assert.Equal(t, 1250.5, *got.Rows[0].MetricValue)
}

func TestWriteTable_CSV(t *testing.T) {
	w := &Writer{Dir: t.TempDir(), WriteCSV: true}

	paths, err := w.WriteTable("run-1", sampleTable("run-1"))
	require.NoError(t, err)
	require.Contains(t, paths, "harmonized_table_csv")

	f, err := os.Open(paths["harmonized_table_csv"])
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3, "header plus two rows")

	header := recs[0]
	assert.Equal(t, model.FieldDate, header[0])
	assert.Equal(t, "exclusion_reason", header[len(header)-1])

	assert.Equal(t, "1250.5", recs[1][5])
	assert.Equal(t, "2026-01-18T09:00:00Z", recs[1][10])
	assert.Equal(t, "false", recs[1][11])

	// Null metric value renders as an empty cell, not "0".
	assert.Equal(t, "", recs[2][5])
	assert.Equal(t, "true", recs[2][11])
	assert.Equal(t, "DH-001", recs[2][12])
}

func TestWriteSchemaMap_OrdinalNaming(t *testing.T) {
	w := &Writer{Dir: t.TempDir()}
	sm := &model.SchemaMap{RunID: "run-1", SourceRef: "adserver:/data/jan.csv"}

	path, err := w.WriteSchemaMap("run-1", 2, sm)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Dir, "run-1", "schema_map_002.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got model.SchemaMap
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "adserver:/data/jan.csv", got.SourceRef)
}

func TestWriteRunLog(t *testing.T) {
	w := &Writer{Dir: t.TempDir()}
	run := &model.RunLog{RunID: "run-1", Status: model.RunComplete, RecordsWritten: 9}

	path, err := w.WriteRunLog(run)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got model.RunLog
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, model.RunComplete, got.Status)
	assert.Equal(t, 9, got.RecordsWritten)
}
