package fileloader

import (
	"log/slog"

	"brokereye/app/interfaces"
)

// Package fileloader turns CSV, XLSX and JSON sources (optionally compressed,
// optionally a whole directory) into record sets.

// FileType represents the type of data file being processed
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeCSV
	FileTypeXLSX
	FileTypeJSON
)

// String returns the string representation of FileType
func (ft FileType) String() string {
	switch ft {
	case FileTypeCSV:
		return "CSV"
	case FileTypeXLSX:
		return "XLSX"
	case FileTypeJSON:
		return "JSON"
	default:
		return "Unknown"
	}
}

// SourceFileField is added to every record loaded from a directory
const SourceFileField = "__source_file__"

// DefaultMaxDirectoryFiles caps directory loads when Options.MaxFiles is zero
const DefaultMaxDirectoryFiles = 500

// Options controls how a source is parsed
type Options struct {
	// KeyField is canonicalized into Record.Key; empty uses "login"
	KeyField string
	// JSONPath selects the record array inside a JSON document ("$" when empty)
	JSONPath string
	// NoHeaderRow treats the first CSV/XLSX row as data
	NoHeaderRow bool
	// Sheet selects an XLSX sheet; empty uses the first one
	Sheet string
	// Pattern filters directory entries, e.g. "**/*.csv"
	Pattern  string
	MaxFiles int
	// HashKey is the 32-byte highwayhash key for dataset ids
	HashKey []byte
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.KeyField == "" {
		o.KeyField = interfaces.DefaultKeyField
	}
	if o.Pattern == "" {
		o.Pattern = "**/*"
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = DefaultMaxDirectoryFiles
	}
	if len(o.HashKey) != 32 {
		o.HashKey = defaultHashKey
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// table is a parsed source before records are built
type table struct {
	fields []string
	rows   []map[string]any
}
