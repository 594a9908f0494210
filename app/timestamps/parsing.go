package timestamps

import (
	"strconv"
	"strings"
	"time"
)

// layouts that carry their own zone
var zonedLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.000 MST",
	"2006-01-02 15:04:05 MST",
	"2006-01-02T15:04:05.000 MST",
	time.RFC1123,
	time.RFC1123Z,
}

// layouts interpreted in the ingest location
var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006-01-02",
	"2006.01.02",
	"02/01/2006 15:04:05",
	"02/01/2006 3:04pm",
	"02/01/2006",
}

// ParseTimestampMillis tries several common formats and returns epoch milliseconds.
// If loc is nil, timezone-less formats are interpreted in the default ingest timezone.
func ParseTimestampMillis(s string, loc *time.Location) (int64, bool) {
	ss := strings.TrimSpace(s)
	if ss == "" {
		return 0, false
	}

	// Integer epochs are the common case in broker feeds; try them before layouts.
	if n, err := strconv.ParseInt(ss, 10, 64); err == nil {
		return epochToMillis(n), true
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, ss); err == nil {
			return t.UnixMilli(), true
		}
	}

	if loc == nil {
		loc = GetDefaultIngestTimezone()
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, ss, loc); err == nil {
			return t.UnixMilli(), true
		}
	}

	return 0, false
}

// ValueToMillis converts a record field value to epoch milliseconds.
func ValueToMillis(v any, loc *time.Location) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case string:
		return ParseTimestampMillis(t, loc)
	case int64:
		return epochToMillis(t), true
	case int:
		return epochToMillis(int64(t)), true
	case float64:
		return epochToMillis(int64(t)), true
	default:
		return 0, false
	}
}

// epochToMillis treats 13+ digit values as milliseconds and anything smaller as seconds.
func epochToMillis(n int64) int64 {
	if n > 1_000_000_000_000 || n < -1_000_000_000_000 {
		return n
	}
	return n * 1000
}
