// Package ingest loads raw tabular payloads into memory. It handles
// encoding fallback for CSV, XLSX workbooks, report preamble detection
// (partner files often carry title and date-range rows above the real
// header), and structural checks such as duplicate column names.
package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// Options configures payload reading. The zero value gets sensible
// defaults from the accessor methods.
type Options struct {
	SupportedEncodings []string
	MaxFileSizeBytes   int64
	MaxRows            int
	HeaderScanRows     int
	HeaderKeywords     []string
	SheetName          string // XLSX only
	SheetIndex         int    // XLSX only
}

func (o Options) encodings() []string {
	if len(o.SupportedEncodings) == 0 {
		return []string{"utf-8", "latin-1", "windows-1252"}
	}
	return o.SupportedEncodings
}

func (o Options) scanRows() int {
	if o.HeaderScanRows <= 0 {
		return 20
	}
	return o.HeaderScanRows
}

// ErrorCode classifies an ingestion error by the structured code embedded
// in its message. Unrecognized errors are reported as encoding failures,
// the only remaining way a payload refuses to load.
func ErrorCode(err error) model.ErrorCode {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, code := range []model.ErrorCode{
		model.CodeEmptySource,
		model.CodeDuplicateColumns,
		model.CodeEncodingFailure,
	} {
		if strings.Contains(msg, string(code)) {
			return code
		}
	}
	return model.CodeEncodingFailure
}

// Read dispatches on the source format.
func Read(src model.RawSource, opts Options) (*model.Table, *model.IngestionMetadata, error) {
	switch src.Format {
	case model.FormatXLSX:
		return ReadXLSX(src.SourceLocation, opts)
	case model.FormatCSV, "":
		return ReadCSV(src.SourceLocation, opts)
	default:
		return nil, nil, eris.Errorf("ingest: unsupported format %q", src.Format)
	}
}

// assemble turns raw rows into a Table: finds the header, strips preamble
// rows, drops all-empty rows, pads ragged rows, and validates structure.
func assemble(rows [][]string, opts Options) (*model.Table, *model.IngestionMetadata, error) {
	meta := &model.IngestionMetadata{}

	rows = dropEmptyRows(rows)
	if len(rows) == 0 {
		return nil, nil, eris.Errorf("ingest: source has no rows (%s)", model.CodeEmptySource)
	}

	headerIdx, detected := detectHeaderRow(rows, opts.scanRows(), opts.HeaderKeywords)
	if !detected {
		meta.Warnings = append(meta.Warnings, "could not detect header row, using first row")
		headerIdx = 0
	}
	if headerIdx > 0 {
		meta.Warnings = append(meta.Warnings,
			fmt.Sprintf("header detected at row %d, skipped %d preamble rows", headerIdx+1, headerIdx))
	}
	meta.HeaderRow = headerIdx
	meta.MetadataRowsSkipped = headerIdx

	header := trimAll(rows[headerIdx])
	data := rows[headerIdx+1:]
	if len(data) == 0 {
		return nil, nil, eris.Errorf("ingest: source has a header but no data rows (%s)", model.CodeEmptySource)
	}
	if opts.MaxRows > 0 && len(data) > opts.MaxRows {
		return nil, nil, eris.Errorf("ingest: source has %d rows, exceeds limit %d", len(data), opts.MaxRows)
	}

	if dup := firstDuplicate(header); dup != "" {
		return nil, nil, eris.Errorf("ingest: duplicate column name %q (%s)", dup, model.CodeDuplicateColumns)
	}

	// Pad short rows so every row has one cell per column.
	for i, row := range data {
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			data[i] = padded
		}
	}

	meta.RowsRead = len(data)
	meta.ColumnsRead = len(header)
	return &model.Table{Header: header, Rows: data}, meta, nil
}

// detectHeaderRow scans the first scanRows rows for the real header. A row
// wins when at least two cells contain a header keyword, or when the row
// is mostly text and the following row mostly numeric.
func detectHeaderRow(rows [][]string, scanRows int, keywords []string) (int, bool) {
	limit := len(rows)
	if limit > scanRows {
		limit = scanRows
	}

	for i := 0; i < limit; i++ {
		row := rows[i]

		matches := 0
		for _, cell := range row {
			lower := strings.ToLower(strings.TrimSpace(cell))
			for _, kw := range keywords {
				if kw != "" && strings.Contains(lower, kw) {
					matches++
					break
				}
			}
		}
		if matches >= 2 {
			return i, true
		}

		if i+1 < len(rows) && looksLikeHeader(row, rows[i+1]) {
			return i, true
		}
	}
	return 0, false
}

// looksLikeHeader reports whether row is mostly non-numeric text while the
// next row is mostly numeric. Half-filled preamble rows do not qualify.
func looksLikeHeader(row, next []string) bool {
	nonEmpty, textual := 0, 0
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		nonEmpty++
		if !isNumericCell(cell) {
			textual++
		}
	}
	if nonEmpty == 0 || nonEmpty*2 < len(row) {
		return false
	}

	nextNumeric, nextNonEmpty := 0, 0
	for _, cell := range next {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		nextNonEmpty++
		if isNumericCell(cell) {
			nextNumeric++
		}
	}
	return textual*2 >= nonEmpty && nextNonEmpty > 0 && nextNumeric*2 >= nextNonEmpty
}

func isNumericCell(s string) bool {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func dropEmptyRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		empty := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.TrimSpace(cell)
	}
	return out
}

// firstDuplicate returns the first column name appearing more than once
// after case/whitespace normalization, or "".
func firstDuplicate(header []string) string {
	seen := make(map[string]bool, len(header))
	for _, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if seen[key] {
			return name
		}
		seen[key] = true
	}
	return ""
}
