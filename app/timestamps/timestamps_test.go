package timestamps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectTimestampField(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   string
	}{
		{"exact", []string{"login", "Timestamp", "balance"}, "Timestamp"},
		{"underscore exact", []string{"login", "created_at"}, "created_at"},
		{"contains date", []string{"login", "registrationDate"}, "registrationDate"},
		{"suffix time", []string{"login", "lastLoginTime"}, "lastLoginTime"},
		{"lifetime pnl is not a timestamp", []string{"login", "lifetimePnL"}, ""},
		{"none", []string{"login", "balance", "deposits"}, ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectTimestampField(tt.fields))
		})
	}
}

func TestParseTimestampMillis(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   int64
		wantOK bool
	}{
		{"epoch seconds", "1700000000", 1700000000000, true},
		{"epoch millis", "1700000000123", 1700000000123, true},
		{"rfc3339", "2023-11-14T22:13:20Z", 1700000000000, true},
		{"local layout in utc", "2023-11-14 22:13:20", 1700000000000, true},
		{"date only", "2023-11-14", 1699920000000, true},
		{"garbage", "not a time", 0, false},
		{"blank", "  ", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestampMillis(tt.in, time.UTC)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueToMillis(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	got, ok := ValueToMillis(ts, nil)
	assert.True(t, ok)
	assert.Equal(t, ts.UnixMilli(), got)

	got, ok = ValueToMillis(float64(1700000000), nil)
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000000), got)

	_, ok = ValueToMillis(true, nil)
	assert.False(t, ok)
}

func TestGetLocationForTZ(t *testing.T) {
	assert.Equal(t, time.UTC, GetLocationForTZ("utc"))
	assert.Equal(t, time.Local, GetLocationForTZ(""))
	assert.Equal(t, time.Local, GetLocationForTZ("Not/AZone"))
}
