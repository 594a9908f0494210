package fileloader

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"

	"brokereye/app/interfaces"
)

const accountsCSV = "login,name,balance\n1001,alice,250.5\n1002,bob,-10\n\n1003,carol,0\n"

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func keys(ds *interfaces.Dataset) []string {
	out := make([]string, len(ds.Records))
	for i, r := range ds.Records {
		out[i] = r.Key
	}
	return out
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func xzBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, t.TempDir(), "accounts.csv", []byte(accountsCSV))

	ds, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"login", "name", "balance"}, ds.Fields)
	assert.Equal(t, []string{"1001", "1002", "1003"}, keys(ds))
	assert.Equal(t, "alice", ds.Records[0].Fields["name"])
	assert.Equal(t, "accounts.csv", ds.Source)
	assert.Len(t, ds.ID, 64)
	assert.Empty(t, ds.Warnings)
}

func TestLoadIDIsContentFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", []byte(accountsCSV))
	b := writeFile(t, dir, "b.csv", []byte(accountsCSV))
	c := writeFile(t, dir, "c.csv", []byte(accountsCSV+"1004,dave,1\n"))

	dsA, err := Load(context.Background(), a, Options{})
	require.NoError(t, err)
	dsB, err := Load(context.Background(), b, Options{})
	require.NoError(t, err)
	dsC, err := Load(context.Background(), c, Options{})
	require.NoError(t, err)

	assert.Equal(t, dsA.ID, dsB.ID)
	assert.NotEqual(t, dsA.ID, dsC.ID)
}

func TestLoadCustomKeyFieldAndNoHeader(t *testing.T) {
	path := writeFile(t, t.TempDir(), "raw.csv", []byte("7,x\n8,y\n"))

	ds, err := Load(context.Background(), path, Options{NoHeaderRow: true, KeyField: "Unnamed_A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Unnamed_A", "Unnamed_B"}, ds.Fields)
	assert.Equal(t, []string{"7", "8"}, keys(ds))
}

func TestLoadCompressed(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data []byte
	}{
		{"accounts.csv.gz", gzipBytes(t, []byte(accountsCSV))},
		{"accounts.csv.xz", xzBytes(t, []byte(accountsCSV))},
		// extension lies; magic bytes win
		{"accounts.csv", gzipBytes(t, []byte(accountsCSV))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, filepath.Join(dir, tt.name+"-dir"), tt.name, tt.data)
			ds, err := Load(context.Background(), path, Options{})
			require.NoError(t, err)
			assert.Equal(t, []string{"1001", "1002", "1003"}, keys(ds))
		})
	}
}

func TestTruncatedGzipKeepsPartialData(t *testing.T) {
	var rows bytes.Buffer
	rows.WriteString("login,balance\n")
	for i := range 60000 {
		fmt.Fprintf(&rows, "%d,%d.%02d\n", 100000+i, (i*7919)%100003, i%97)
	}
	full := gzipBytes(t, rows.Bytes())
	cut := full[:len(full)*3/4]

	ds, err := LoadBytes("accounts.csv.gz", cut, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, ds.Records)
	require.NotEmpty(t, ds.Warnings)
	assert.Contains(t, ds.Warnings[0], "decompression incomplete")
}

func TestLoadJSONWithPath(t *testing.T) {
	doc := `{"meta":{"server":"live-1"},"accounts":[
		{"login":5,"balance":10.5,"risk":{"level":"high"}},
		{"login":6,"balance":20,"group":"vip"},
		"junk"
	]}`
	ds, err := LoadBytes("export.json", []byte(doc), Options{JSONPath: "$.accounts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, keys(ds))
	assert.Equal(t, []string{"balance", "group", "login", "risk"}, ds.Fields)
	assert.Equal(t, map[string]any{"level": "high"}, ds.Records[0].Fields["risk"])
	require.Len(t, ds.Warnings, 1)
	assert.Contains(t, ds.Warnings[0], "1 non-object")

	_, err = LoadBytes("export.json", []byte(doc), Options{JSONPath: "$.missing"})
	assert.Error(t, err)
}

func TestLoadJSONLines(t *testing.T) {
	lines := "{\"login\":1,\"note\":\"a } b\"}\n{\"login\":2}\n"
	ds, err := LoadBytes("stream.jsonl", []byte(lines), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, keys(ds))
	assert.Equal(t, "a } b", ds.Records[0].Fields["note"])
}

func TestSniffUnknownExtension(t *testing.T) {
	ds, err := LoadBytes("export.dat", []byte(`[{"login":"42"}]`), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, keys(ds))

	ds, err = LoadBytes("export.dat", []byte(accountsCSV), Options{})
	require.NoError(t, err)
	assert.Len(t, ds.Records, 3)
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"login", "equity"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{3001, 12.5}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{3002, 7}))
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Other", "A1", &[]any{"login"}))
	require.NoError(t, f.SetSheetRow("Other", "A2", &[]any{9}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	ds, err := LoadBytes("book.xlsx", buf.Bytes(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"login", "equity"}, ds.Fields)
	assert.Equal(t, []string{"3001", "3002"}, keys(ds))
	assert.Len(t, ds.Warnings, 1)

	ds, err = LoadBytes("book.xlsx", buf.Bytes(), Options{Sheet: "Other"})
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, keys(ds))

	_, err = LoadBytes("book.xlsx", buf.Bytes(), Options{Sheet: "Nope"})
	assert.Error(t, err)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b/live.csv", []byte("login,balance\n2,20\n"))
	writeFile(t, dir, "a/demo.json", []byte(`[{"login":1,"credit":5}]`))
	writeFile(t, dir, "notes.txt", []byte("ignored"))

	ds, err := Load(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, keys(ds))
	assert.Equal(t, "a/demo.json", ds.Records[0].Fields[SourceFileField])
	assert.Equal(t, "b/live.csv", ds.Records[1].Fields[SourceFileField])
	assert.Equal(t, []string{SourceFileField, "credit", "login", "balance"}, ds.Fields)

	again, err := Load(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, ds.ID, again.ID)

	capped, err := Load(context.Background(), dir, Options{MaxFiles: 1})
	require.NoError(t, err)
	assert.Len(t, capped.Records, 1)
	require.NotEmpty(t, capped.Warnings)

	csvOnly, err := Load(context.Background(), dir, Options{Pattern: "**/*.csv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, keys(csvOnly))
}

func TestNormalizeHeaders(t *testing.T) {
	got := NormalizeHeaders([]string{"login", "", "balance", "  ", "balance"})
	assert.Equal(t, []string{"login", "Unnamed_A", "balance", "Unnamed_B", "balance_2"}, got)
	assert.Equal(t, "AA", excelColumnName(26))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(context.Background(), "", Options{})
	assert.Error(t, err)
	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.Error(t, err)
	_, err = Load(context.Background(), t.TempDir(), Options{})
	assert.Error(t, err)
	_, err = LoadBytes("bad.json", []byte("{nope"), Options{})
	assert.Error(t, err)
}
