package fileloader

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// parseXLSX reads one sheet of a workbook. Cells come back as their
// formatted strings, the same as CSV input.
func parseXLSX(data []byte, opts Options) (*table, []string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("no sheets found in XLSX file")
	}
	sheet := sheets[0]
	var warnings []string
	if opts.Sheet != "" {
		if idx, err := f.GetSheetIndex(opts.Sheet); err != nil || idx < 0 {
			return nil, nil, fmt.Errorf("sheet %q not found", opts.Sheet)
		}
		sheet = opts.Sheet
	} else if len(sheets) > 1 {
		warnings = append(warnings, fmt.Sprintf("workbook has %d sheets; only %q was loaded", len(sheets), sheet))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rows from sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, warnings, fmt.Errorf("sheet %q is empty", sheet)
	}

	var header []string
	if !opts.NoHeaderRow {
		header, rows = rows[0], rows[1:]
	}
	body := rows[:0]
	for _, r := range rows {
		if !isBlankRow(r) {
			body = append(body, r)
		}
	}
	return rowsToTable(header, body), warnings, nil
}
