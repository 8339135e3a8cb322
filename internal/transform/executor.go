// Package transform applies a resolved schema map to a raw table,
// producing canonical long-format rows with full row-level lineage. The
// unpivot path is the lineage-sensitive one: every emitted row's record
// id encodes both the origin row and the metric column it came from.
package transform

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// Options configures execution.
type Options struct {
	DateFormats        []string
	Number             NumberOptions
	RowCountTolerance  float64
	IngestedAt         time.Time // zero means time.Now
}

// Result carries the emitted rows plus post-transform validation output.
type Result struct {
	Rows           []model.HarmonizedRow
	Warnings       []model.EngineError
	DateFormats    map[string]string // source column -> format that matched first
	DuplicateKeys  int
}

// Execute applies the schema map to the table. Fields execute in
// dependency order: constants first, then column-backed fields, then the
// unpivot expansion. Cancellation stops before further rows are emitted.
func Execute(ctx context.Context, src model.RawSource, table *model.Table, sm *model.SchemaMap, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "transform"), zap.String("source", src.Ref()))

	ingestedAt := opts.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}

	colIdx := make(map[string]int, len(table.Header))
	for i, name := range table.Header {
		colIdx[name] = i
	}

	res := &Result{DateFormats: make(map[string]string)}

	metricMapping := sm.Mapping(model.FieldMetricName)
	unpivoting := metricMapping != nil && metricMapping.Method == model.MethodUnpivot
	var metricCols []string
	var metricNames map[string]string
	if unpivoting {
		metricCols = metricMapping.SourceColumns
		metricNames = metricParams(metricMapping)
	}

	for rowIdx, raw := range table.Rows {
		if err := ctx.Err(); err != nil {
			log.Warn("transform cancelled", zap.Int("rows_emitted", len(res.Rows)))
			return res, err
		}

		base, warns := buildBase(sm, raw, colIdx, opts, res.DateFormats)
		base.SourceSystem = src.SourceSystem
		base.SourceLocation = src.SourceLocation
		base.IngestedAt = ingestedAt
		res.Warnings = append(res.Warnings, tagRows(warns, src.Ref(), rowIdx)...)

		if !unpivoting {
			base.SourceRecordID = model.RecordID(src.Ref(), rowIdx, "")
			res.Rows = append(res.Rows, base)
			continue
		}

		for _, metricCol := range metricCols {
			row := base
			row.MetricName = metricNames[metricCol]
			if row.MetricName == "" {
				row.MetricName = metricCol
			}
			row.SourceRecordID = model.RecordID(src.Ref(), rowIdx, metricCol)

			cell := cellValue(raw, colIdx, metricCol)
			if cell != "" {
				if v, err := ParseNumber(cell, opts.Number); err == nil {
					row.MetricValue = &v
				} else {
					res.Warnings = append(res.Warnings, model.EngineError{
						Code:         model.CodeTypeMismatch,
						Message:      fmt.Sprintf("metric %q row %d: %s", metricCol, rowIdx, err.Error()),
						SourceRef:    src.Ref(),
						AffectedRows: []string{row.SourceRecordID},
					})
				}
			}
			res.Rows = append(res.Rows, row)
		}
	}

	res.Warnings = append(res.Warnings, validate(src, table, sm, res, unpivoting, len(metricCols), opts)...)

	log.Info("transform complete",
		zap.Int("rows_in", len(table.Rows)),
		zap.Int("rows_out", len(res.Rows)),
		zap.Bool("unpivoted", unpivoting),
	)
	return res, nil
}

// buildBase evaluates every scalar (non-unpivot) mapping for one raw row.
func buildBase(sm *model.SchemaMap, raw []string, colIdx map[string]int, opts Options, formats map[string]string) (model.HarmonizedRow, []model.EngineError) {
	var row model.HarmonizedRow
	var warns []model.EngineError

	for _, m := range sm.Mappings {
		if m.Method == model.MethodUnpivot {
			continue
		}
		value, warn := evalMapping(m, raw, colIdx, opts, formats)
		if warn != nil {
			warns = append(warns, *warn)
		}
		setField(&row, m.CanonicalField, value)
	}
	return row, warns
}

// evalMapping computes the output value for one mapping on one row.
func evalMapping(m model.FieldMapping, raw []string, colIdx map[string]int, opts Options, formats map[string]string) (string, *model.EngineError) {
	switch m.Transform {
	case model.TransformConstant:
		return paramString(m, "value"), nil

	case model.TransformParseDate:
		cell := cellValue(raw, colIdx, m.SourceColumn)
		if cell == "" {
			return "", nil
		}
		iso, matched, err := ParseDate(cell, opts.DateFormats)
		if err != nil {
			return "", &model.EngineError{
				Code:           model.CodeTypeMismatch,
				Message:        err.Error(),
				AffectedFields: []string{m.CanonicalField},
			}
		}
		if _, seen := formats[m.SourceColumn]; !seen {
			formats[m.SourceColumn] = matched
		}
		return iso, nil

	case model.TransformParseNumber:
		cell := cellValue(raw, colIdx, m.SourceColumn)
		if cell == "" {
			return "", nil
		}
		f, err := ParseNumber(cell, opts.Number)
		if err != nil {
			return "", &model.EngineError{
				Code:           model.CodeTypeMismatch,
				Message:        err.Error(),
				AffectedFields: []string{m.CanonicalField},
			}
		}
		return trimFloat(f), nil

	case model.TransformExtractCurrency:
		if v := paramString(m, "value"); v != "" {
			return v, nil
		}
		cell := cellValue(raw, colIdx, m.SourceColumn)
		if code, ok := ExtractCurrency(cell); ok {
			return code, nil
		}
		return "", nil

	case model.TransformConcatenate:
		values := make([]string, 0, len(m.SourceColumns))
		for _, col := range m.SourceColumns {
			values = append(values, cellValue(raw, colIdx, col))
		}
		return Concatenate(values, paramString(m, "separator")), nil

	case model.TransformSplitField:
		parts, err := SplitField(cellValue(raw, colIdx, m.SourceColumn), paramString(m, "separator"), paramString(m, "pattern"))
		if err != nil || len(parts) == 0 {
			return "", nil
		}
		idx := paramInt(m, "index")
		if idx >= len(parts) {
			return "", nil
		}
		return parts[idx], nil

	case model.TransformLookup:
		return Lookup(cellValue(raw, colIdx, m.SourceColumn), paramTable(m, "table")), nil

	default: // passthrough, rename
		return cellValue(raw, colIdx, m.SourceColumn), nil
	}
}

// validate recomputes expected row counts and scans for duplicate
// composite keys. Mismatch within tolerance is a warning; beyond it, a
// mapping-class error.
func validate(src model.RawSource, table *model.Table, sm *model.SchemaMap, res *Result, unpivoting bool, metricCount int, opts Options) []model.EngineError {
	var out []model.EngineError

	expected := len(table.Rows)
	if unpivoting {
		expected = len(table.Rows) * metricCount
	}
	if got := len(res.Rows); got != expected {
		code := model.CodeRowCountMismatch
		drift := 0.0
		if expected > 0 {
			drift = float64(abs(got-expected)) / float64(expected)
		}
		if unpivoting && drift > opts.RowCountTolerance {
			code = model.CodeUnpivotInconsistent
		}
		out = append(out, model.EngineError{
			Code:      code,
			Message:   fmt.Sprintf("expected %d output rows, produced %d", expected, got),
			SourceRef: src.Ref(),
		})
	}

	seen := make(map[string]bool, len(res.Rows))
	for i := range res.Rows {
		key := res.Rows[i].CompositeKey()
		if seen[key] {
			res.DuplicateKeys++
		}
		seen[key] = true
	}
	if res.DuplicateKeys > 0 {
		out = append(out, model.EngineError{
			Code:      model.CodeRuleFail,
			Message:   fmt.Sprintf("%d duplicate composite key(s) detected", res.DuplicateKeys),
			SourceRef: src.Ref(),
		})
	}
	return out
}

func setField(row *model.HarmonizedRow, field, value string) {
	switch field {
	case model.FieldDate:
		row.Date = value
	case model.FieldPartnerName:
		row.PartnerName = value
	case model.FieldPackagePartnerName:
		row.PackagePartnerName = value
	case model.FieldPlacementPartnerName:
		row.PlacementPartnerName = value
	case model.FieldMetricName:
		row.MetricName = value
	case model.FieldMetricValue:
		if value != "" {
			if f, err := ParseNumber(value, NumberOptions{}); err == nil {
				row.MetricValue = &f
			}
		}
	case model.FieldCurrency:
		row.Currency = value
	}
	// source_system, source_location, source_record_id, and ingested_at
	// are stamped by the executor itself.
}

func cellValue(raw []string, colIdx map[string]int, col string) string {
	idx, ok := colIdx[col]
	if !ok || idx >= len(raw) {
		return ""
	}
	return raw[idx]
}

func metricParams(m *model.FieldMapping) map[string]string {
	out := make(map[string]string)
	if m.TransformParams == nil {
		return out
	}
	if raw, ok := m.TransformParams["metrics"].(map[string]string); ok {
		return raw
	}
	if raw, ok := m.TransformParams["metrics"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

func paramString(m model.FieldMapping, key string) string {
	if m.TransformParams == nil {
		return ""
	}
	if s, ok := m.TransformParams[key].(string); ok {
		return s
	}
	return ""
}

func paramInt(m model.FieldMapping, key string) int {
	if m.TransformParams == nil {
		return 0
	}
	switch v := m.TransformParams[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func paramTable(m model.FieldMapping, key string) map[string]string {
	out := make(map[string]string)
	if m.TransformParams == nil {
		return out
	}
	if raw, ok := m.TransformParams[key].(map[string]string); ok {
		return raw
	}
	if raw, ok := m.TransformParams[key].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// tagRows stamps warnings with the source ref and row lineage.
func tagRows(warns []model.EngineError, ref string, rowIdx int) []model.EngineError {
	for i := range warns {
		warns[i].SourceRef = ref
		warns[i].AffectedRows = append(warns[i].AffectedRows, model.RecordID(ref, rowIdx, ""))
	}
	return warns
}
