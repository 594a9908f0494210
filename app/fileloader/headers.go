package fileloader

import (
	"strconv"
	"strings"
)

// excelColumnName converts a 0-based index to Excel-style column name.
// Examples: 0 -> A, 25 -> Z, 26 -> AA, 702 -> AAA
func excelColumnName(index int) string {
	result := ""
	index++
	for index > 0 {
		index--
		result = string(rune('A'+index%26)) + result
		index /= 26
	}
	return result
}

// NormalizeHeaders replaces empty headers with Unnamed_A, Unnamed_B, ... and
// suffixes repeated names (_2, _3, ...) so every column has a unique field.
//
//	Input:  ["login", "", "balance", "  ", "balance"]
//	Output: ["login", "Unnamed_A", "balance", "Unnamed_B", "balance_2"]
func NormalizeHeaders(header []string) []string {
	normalized := make([]string, len(header))
	emptyCount := 0
	seen := make(map[string]int, len(header))

	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		if h == "" {
			h = "Unnamed_" + excelColumnName(emptyCount)
			emptyCount++
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = h + "_" + strconv.Itoa(n)
		}
		normalized[i] = h
	}
	return normalized
}
