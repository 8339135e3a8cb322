// Package artifact writes the run outputs: harmonized table, schema
// maps, and run log. JSON is the canonical form; CSV is an optional
// convenience copy of the table.
package artifact

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// Writer emits artifacts for one run under Dir/<run-id>/.
type Writer struct {
	Dir      string
	WriteCSV bool
}

func (w *Writer) runDir(runID string) (string, error) {
	dir := filepath.Join(w.Dir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "artifact: create %s", dir)
	}
	return dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "artifact: create %s", path)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrapf(err, "artifact: encode %s", path)
	}
	return nil
}

// WriteTable writes the harmonized table as JSON and, when configured,
// CSV. Returns the paths written keyed by artifact name.
func (w *Writer) WriteTable(runID string, table *model.HarmonizedTable) (map[string]string, error) {
	dir, err := w.runDir(runID)
	if err != nil {
		return nil, err
	}
	paths := map[string]string{}

	jsonPath := filepath.Join(dir, "harmonized_table.json")
	if err := writeJSON(jsonPath, table); err != nil {
		return nil, err
	}
	paths["harmonized_table"] = jsonPath

	if w.WriteCSV {
		csvPath := filepath.Join(dir, "harmonized_table.csv")
		if err := writeTableCSV(csvPath, table); err != nil {
			return nil, err
		}
		paths["harmonized_table_csv"] = csvPath
	}
	return paths, nil
}

// WriteSchemaMap writes one source's schema map. The file name carries a
// per-source ordinal so multi-source runs do not collide.
func (w *Writer) WriteSchemaMap(runID string, ordinal int, sm *model.SchemaMap) (string, error) {
	dir, err := w.runDir(runID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("schema_map_%03d.json", ordinal))
	if err := writeJSON(path, sm); err != nil {
		return "", err
	}
	return path, nil
}

// WriteRunLog writes the finalized run log.
func (w *Writer) WriteRunLog(run *model.RunLog) (string, error) {
	dir, err := w.runDir(run.RunID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "run_log.json")
	if err := writeJSON(path, run); err != nil {
		return "", err
	}
	return path, nil
}

func writeTableCSV(path string, table *model.HarmonizedTable) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "artifact: create %s", path)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	header := []string{
		model.FieldDate, model.FieldPartnerName, model.FieldPackagePartnerName,
		model.FieldPlacementPartnerName, model.FieldMetricName, model.FieldMetricValue,
		model.FieldCurrency, model.FieldSourceSystem, model.FieldSourceLocation,
		model.FieldSourceRecordID, model.FieldIngestedAt, "excluded", "exclusion_reason",
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "artifact: write csv header")
	}
	for _, row := range table.Rows {
		metric := ""
		if row.MetricValue != nil {
			metric = strconv.FormatFloat(*row.MetricValue, 'f', -1, 64)
		}
		rec := []string{
			row.Date, row.PartnerName, row.PackagePartnerName,
			row.PlacementPartnerName, row.MetricName, metric,
			row.Currency, row.SourceSystem, row.SourceLocation,
			row.SourceRecordID, row.IngestedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(row.Excluded), row.ExclusionReason,
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "artifact: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "artifact: flush csv")
}
