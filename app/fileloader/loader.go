package fileloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"brokereye/app/interfaces"
)

// source is a fully parsed input before records are built
type source struct {
	id       string
	fields   []string
	rows     []map[string]any
	warnings []string
}

// Load reads a file or directory into a Dataset. The dataset ID is a keyed
// content hash, so reloading unchanged input hits the query cache.
func Load(ctx context.Context, path string, opts Options) (*interfaces.Dataset, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is empty")
	}
	opts = opts.withDefaults()

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var src *source
	if info.IsDir() {
		src, err = loadDirectory(ctx, path, opts)
	} else {
		src, err = loadFile(path, opts)
	}
	if err != nil {
		return nil, err
	}

	ds := &interfaces.Dataset{
		ID:       src.id,
		Source:   filepath.Base(path),
		Fields:   src.fields,
		Records:  interfaces.NewRecords(src.rows, opts.KeyField),
		Warnings: src.warnings,
	}
	for _, w := range ds.Warnings {
		opts.Logger.Warn("ingest warning", "source", ds.Source, "warning", w)
	}
	opts.Logger.Info("dataset loaded",
		"source", ds.Source,
		"records", len(ds.Records),
		"fields", len(ds.Fields),
		"id", ds.ID)
	return ds, nil
}

// LoadBytes parses an in-memory source; name drives type detection.
func LoadBytes(name string, data []byte, opts Options) (*interfaces.Dataset, error) {
	opts = opts.withDefaults()
	t, warnings, err := parseBytes(data, name, opts)
	if err != nil {
		return nil, err
	}
	id, err := HashBytes(data, opts.HashKey)
	if err != nil {
		return nil, err
	}
	return &interfaces.Dataset{
		ID:       id,
		Source:   name,
		Fields:   t.fields,
		Records:  interfaces.NewRecords(t.rows, opts.KeyField),
		Warnings: warnings,
	}, nil
}

func loadFile(path string, opts Options) (*source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, warnings, err := parseBytes(data, path, opts)
	if err != nil {
		return nil, err
	}
	id, err := HashBytes(data, opts.HashKey)
	if err != nil {
		return nil, err
	}
	return &source{id: id, fields: t.fields, rows: t.rows, warnings: warnings}, nil
}

// parseBytes decompresses (trusting magic bytes over the extension) and
// dispatches on the inner file type.
func parseBytes(data []byte, name string, opts Options) (*table, []string, error) {
	ft, _ := DetectFileTypeAndCompression(name)

	var warnings []string
	if ct := DetectCompression(data); ct != CompressionNone {
		raw, warning, err := Decompress(data, ct)
		if err != nil {
			return nil, nil, err
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
		data = raw
	}
	if ft == FileTypeUnknown {
		ft = sniffFileType(data)
	}

	var (
		t    *table
		more []string
		err  error
	)
	switch ft {
	case FileTypeCSV:
		t, more, err = parseCSV(data, opts)
	case FileTypeXLSX:
		t, more, err = parseXLSX(data, opts)
	case FileTypeJSON:
		t, more, err = parseJSON(data, opts)
	default:
		return nil, nil, fmt.Errorf("unsupported file type: %s", ft)
	}
	if err != nil {
		return nil, nil, err
	}
	return t, append(warnings, more...), nil
}
