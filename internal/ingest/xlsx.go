package ingest

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// ReadXLSX reads one sheet of an XLSX workbook. SheetName wins over
// SheetIndex when both are set.
func ReadXLSX(path string, opts Options) (*model.Table, *model.IngestionMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ingest: stat %s", path)
	}
	if opts.MaxFileSizeBytes > 0 && info.Size() > opts.MaxFileSizeBytes {
		return nil, nil, eris.Errorf("ingest: %s is %d bytes, exceeds limit %d", path, info.Size(), opts.MaxFileSizeBytes)
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: open xlsx")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}

	table, meta, err := assemble(rows, opts)
	if err != nil {
		return nil, nil, err
	}
	meta.Encoding = "utf-8"
	meta.FileSizeBytes = info.Size()
	return table, meta, nil
}

func pickSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("ingest: sheet index %d out of range (%d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}
