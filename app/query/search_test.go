package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchRecords() []*Record {
	return rows("login",
		map[string]any{"login": 101, "name": "Alice Smith", "currency": "USD", "isCustom": true},
		map[string]any{"login": 102, "name": "Bob Jones", "currency": "EUR", "isCustom": false, "comment": "not verified"},
		map[string]any{"login": 103, "name": "Carol Smith", "currency": "EUR", "isCustom": "0", "tags": []any{"vip", "demo"}},
		map[string]any{"login": 104, "name": "Smith Alice", "currency": "GBP", "comment": "or (pending)"},
	)
}

func TestSearchStage(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		fields []string
		want   []string
	}{
		{"plain substring any field", "smith", nil, []string{"101", "103", "104"}},
		{"case insensitive", "EUR", nil, []string{"102", "103"}},
		{"surrounding space trimmed", "  eur ", nil, []string{"102", "103"}},
		{"numeric field as text", "102", nil, []string{"102"}},
		{"restricted fields", "eur", []string{"name"}, []string{}},
		{"multi word is one substring", "Alice Smith", nil, []string{"101"}},
		{"reversed word order", "smith alice", nil, []string{"104"}},
		{"words spread over fields", "smith eur", nil, []string{}},
		{"not is a plain word", "not", nil, []string{"102"}},
		{"or is a plain word", "Or", nil, []string{"104"}},
		{"paren is a plain character", "(", nil, []string{"104"}},
		{"upper case operators are text", "alice OR bob", nil, []string{}},
		{"nested value", "vip", nil, []string{"103"}},
		{"quotes are literal", `"alice smith"`, nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := NewSearchStage(tt.query, tt.fields)
			out, err := stage.Execute(&StageResult{Records: searchRecords()})
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(out.Records))
		})
	}
}

func TestSearchSynonyms(t *testing.T) {
	stage := NewSearchStage("custom", []string{"name"}, Synonym{Field: "isCustom", True: "custom", False: "standard"})
	out, err := stage.Execute(&StageResult{Records: searchRecords()})
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, keys(out.Records))

	stage = NewSearchStage("standard", []string{"name"}, Synonym{Field: "isCustom", True: "custom", False: "standard"})
	out, err = stage.Execute(&StageResult{Records: searchRecords()})
	require.NoError(t, err)
	assert.Equal(t, []string{"102", "103"}, keys(out.Records))

	// synonyms match the whole query exactly, not a substring of it
	stage = NewSearchStage("custo", []string{"name"}, Synonym{Field: "isCustom", True: "custom", False: "standard"})
	out, err = stage.Execute(&StageResult{Records: searchRecords()})
	require.NoError(t, err)
	assert.Empty(t, out.Records)

	stage = NewSearchStage(" CUSTOM ", []string{"name"}, Synonym{Field: "isCustom", True: "custom", False: "standard"})
	out, err = stage.Execute(&StageResult{Records: searchRecords()})
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, keys(out.Records))
}

func TestEmptySearchIsPassThrough(t *testing.T) {
	stage := NewSearchStage("   ", nil)
	assert.True(t, stage.Empty())

	input := &StageResult{Records: searchRecords()}
	out, err := stage.Execute(input)
	require.NoError(t, err)
	assert.Same(t, input, out)
}
