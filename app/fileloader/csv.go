package fileloader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// parseCSV reads delimited text. Rows shorter than the header leave the
// trailing fields unset; longer rows get Unnamed columns appended.
func parseCSV(data []byte, opts Options) (*table, []string, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var (
		header   []string
		rows     [][]string
		warnings []string
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				warnings = append(warnings, fmt.Sprintf("line %d skipped: %v", perr.Line, perr.Err))
				continue
			}
			return nil, warnings, fmt.Errorf("failed to read CSV: %w", err)
		}
		if header == nil && !opts.NoHeaderRow {
			header = row
			continue
		}
		if isBlankRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	if header == nil && len(rows) == 0 {
		return nil, warnings, fmt.Errorf("CSV contains no rows")
	}
	return rowsToTable(header, rows), warnings, nil
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// rowsToTable widens the header to the longest row and maps each row by field.
func rowsToTable(header []string, rows [][]string) *table {
	width := len(header)
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	raw := make([]string, width)
	copy(raw, header)
	fields := NormalizeHeaders(raw)

	t := &table{fields: fields, rows: make([]map[string]any, 0, len(rows))}
	for _, r := range rows {
		m := make(map[string]any, len(r))
		for i, v := range r {
			m[fields[i]] = v
		}
		t.rows = append(t.rows, m)
	}
	return t
}
