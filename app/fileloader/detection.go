package fileloader

import (
	"bytes"
	"strings"
)

// compressionExtensions maps compression extensions to their CompressionType
var compressionExtensions = map[string]CompressionType{
	".gz":  CompressionGzip,
	".bz2": CompressionBzip2,
	".xz":  CompressionXZ,
}

// zip local file header; xlsx files are zip archives
var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// DetectFileTypeAndCompression determines the inner file type and the
// compression from the path, e.g. "accounts.csv.gz" is CSV in gzip.
func DetectFileTypeAndCompression(filePath string) (FileType, CompressionType) {
	if filePath == "" {
		return FileTypeUnknown, CompressionNone
	}
	lower := strings.ToLower(filePath)
	ct := CompressionNone
	for ext, c := range compressionExtensions {
		if strings.HasSuffix(lower, ext) {
			ct = c
			lower = strings.TrimSuffix(lower, ext)
			break
		}
	}
	return detectFileTypeFromPath(lower), ct
}

func detectFileTypeFromPath(path string) FileType {
	switch {
	case strings.HasSuffix(path, ".csv"):
		return FileTypeCSV
	case strings.HasSuffix(path, ".xlsx"):
		return FileTypeXLSX
	case strings.HasSuffix(path, ".json"), strings.HasSuffix(path, ".jsonl"), strings.HasSuffix(path, ".ndjson"):
		return FileTypeJSON
	}
	return FileTypeUnknown
}

// sniffFileType guesses the type of decompressed content whose extension
// said nothing useful. Anything unrecognized is read as CSV.
func sniffFileType(data []byte) FileType {
	if bytes.HasPrefix(data, zipMagic) {
		return FileTypeXLSX
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n\uFEFF")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FileTypeJSON
	}
	return FileTypeCSV
}
