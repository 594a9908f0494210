package query

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sortKeys(t *testing.T, recs []*Record, spec SortSpec, timeFields ...string) []string {
	t.Helper()
	out, err := NewSortStage(spec, timeFields...).Execute(&StageResult{Fields: []string{"login", "equity", "name", "registration"}, Records: recs})
	require.NoError(t, err)
	return keys(out.Records)
}

func TestSortMissingValuesSink(t *testing.T) {
	recs := rows("login",
		map[string]any{"login": 1, "equity": 30},
		map[string]any{"login": 2},
		map[string]any{"login": 3, "equity": "10"},
		map[string]any{"login": 4, "equity": nil},
		map[string]any{"login": 5, "equity": 20.5},
		map[string]any{"login": 6, "equity": "  "},
	)

	assert.Equal(t, []string{"3", "5", "1", "2", "4", "6"}, sortKeys(t, recs, SortSpec{Column: "equity", Direction: SortAsc}))
	assert.Equal(t, []string{"1", "5", "3", "2", "4", "6"}, sortKeys(t, recs, SortSpec{Column: "equity", Direction: SortDesc}))
}

func TestSortIsStable(t *testing.T) {
	recs := rows("login",
		map[string]any{"login": 1, "name": "b"},
		map[string]any{"login": 2, "name": "A"},
		map[string]any{"login": 3, "name": "a"},
		map[string]any{"login": 4, "name": "B"},
	)
	assert.Equal(t, []string{"2", "3", "1", "4"}, sortKeys(t, recs, SortSpec{Column: "name"}))
	assert.Equal(t, []string{"1", "4", "2", "3"}, sortKeys(t, recs, SortSpec{Column: "name", Direction: SortDesc}))
}

func TestSortDescendingIsReverseWithoutTies(t *testing.T) {
	data := make([]map[string]any, 50)
	perm := rand.New(rand.NewSource(7)).Perm(50)
	for i := range data {
		data[i] = map[string]any{"login": i, "equity": float64(perm[i]) * 1.5}
	}
	recs := rows("login", data...)

	asc := sortKeys(t, recs, SortSpec{Column: "equity"})
	desc := sortKeys(t, recs, SortSpec{Column: "equity", Direction: SortDesc})
	slices.Reverse(desc)
	assert.Equal(t, asc, desc)
}

func TestSortDoesNotMutateInput(t *testing.T) {
	recs := rows("login",
		map[string]any{"login": 2, "equity": 2},
		map[string]any{"login": 1, "equity": 1},
	)
	_ = sortKeys(t, recs, SortSpec{Column: "equity"})
	assert.Equal(t, []string{"2", "1"}, keys(recs))
}

func TestSortTimestampColumn(t *testing.T) {
	recs := rows("login",
		map[string]any{"login": 1, "registration": "03/01/2024"},
		map[string]any{"login": 2, "registration": "2024-01-01 10:00:00"},
		map[string]any{"login": 3, "registration": "2024.01.02 10:00"},
		map[string]any{"login": 4, "registration": ""},
	)
	assert.Equal(t, []string{"2", "3", "1", "4"}, sortKeys(t, recs, SortSpec{Column: "registration"}))
	assert.Equal(t, []string{"1", "3", "2", "4"}, sortKeys(t, recs, SortSpec{Column: "registration", Direction: SortDesc}))
}

func TestSortConfiguredTimeField(t *testing.T) {
	recs := rows("login",
		map[string]any{"login": 1, "lastSeen": "03/01/2024"},
		map[string]any{"login": 2, "lastSeen": "2024-01-01 10:00:00"},
	)
	// lastSeen is not detected by name, so it sorts as text unless configured
	assert.Equal(t, []string{"1", "2"}, sortKeys(t, recs, SortSpec{Column: "lastSeen"}))
	assert.Equal(t, []string{"2", "1"}, sortKeys(t, recs, SortSpec{Column: "lastSeen"}, "lastSeen"))
}

func TestSortCacheKey(t *testing.T) {
	a := NewSortStage(SortSpec{Column: "equity"})
	b := NewSortStage(SortSpec{Column: "equity", Direction: SortDesc})
	assert.NotEqual(t, a.CacheKey(), b.CacheKey())
	assert.Equal(t, SortDesc, ParseSortDirection("DESC"))
	assert.Equal(t, SortAsc, ParseSortDirection("sideways"))
}
