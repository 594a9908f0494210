package timestamps

import (
	"strings"
	"sync/atomic"
	"time"
)

var defaultIngest atomic.Pointer[time.Location]

// GetLocationForTZ resolves a timezone name to a *time.Location. Supports "Local", "UTC", and IANA TZ names.
func GetLocationForTZ(name string) *time.Location {
	tzName := strings.TrimSpace(name)
	switch strings.ToUpper(tzName) {
	case "", "LOCAL":
		return time.Local
	case "UTC":
		return time.UTC
	default:
		if l, err := time.LoadLocation(tzName); err == nil {
			return l
		}
		return time.Local
	}
}

// SetDefaultIngestTimezone sets the location used for timestamps without an explicit zone.
func SetDefaultIngestTimezone(name string) {
	defaultIngest.Store(GetLocationForTZ(name))
}

// GetDefaultIngestTimezone returns the location used for zone-less timestamps.
func GetDefaultIngestTimezone() *time.Location {
	if loc := defaultIngest.Load(); loc != nil {
		return loc
	}
	return time.Local
}
