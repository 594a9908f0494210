package timestamps

import (
	"strings"
)

var (
	exactTimestampNames    = []string{"@timestamp", "timestamp", "time", "registration", "lastaccess", "createdat", "updatedat"}
	containsTimestampNames = []string{"timestamp", "datetime", "date"}
	// words that end in "time" but are not timestamps
	notTimestampNames = []string{"lifetime", "uptime", "runtime"}
)

// DetectTimestampField attempts to find the most likely timestamp field.
// Preference order:
// 1) Exact name (case-insensitive, ignoring "_"): "@timestamp", "timestamp", "time", ...
// 2) Contains: "timestamp", "datetime", "date"
// 3) Suffix: "...time" (lastLoginTime, open_time) or "..._at"
// Returns "" if no timestamp field is detected.
func DetectTimestampField(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	norm := make([]string, len(fields))
	for i, f := range fields {
		norm[i] = normalizeName(f)
	}
	for _, ex := range exactTimestampNames {
		for i, h := range norm {
			if h == ex {
				return fields[i]
			}
		}
	}
	for _, key := range containsTimestampNames {
		for i, h := range norm {
			if strings.Contains(h, key) {
				return fields[i]
			}
		}
	}
	for i, h := range norm {
		if strings.HasSuffix(h, "time") && !excluded(h) {
			return fields[i]
		}
		if strings.HasSuffix(strings.ToLower(strings.TrimSpace(fields[i])), "_at") {
			return fields[i]
		}
	}
	return ""
}

// IsTimestampField reports whether a single field name looks like a timestamp.
func IsTimestampField(name string) bool {
	return DetectTimestampField([]string{name}) != ""
}

func excluded(name string) bool {
	for _, w := range notTimestampNames {
		if strings.Contains(name, w) {
			return true
		}
	}
	return false
}

func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "")
}
