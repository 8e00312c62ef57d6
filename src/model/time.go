package model

import (
	"fmt"
	"strings"
	"time"
)

// layouts seen in chat exports, registry timestamps and run settings
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 3:04 PM",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ParseTimestamp parses any supported layout. Zoned values are converted to
// UTC, unzoned ones are taken as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

var monthNames = map[string]string{
	"01": "January", "02": "February", "03": "March", "04": "April", "05": "May", "06": "June",
	"07": "July", "08": "August", "09": "September", "10": "October", "11": "November", "12": "December",
}

// PeriodMonth reads the month from a yyyy-mm-dd period name.
func PeriodMonth(period string) (string, error) {
	if len(period) < 7 {
		return "", fmt.Errorf("period %q is not yyyy-mm-dd", period)
	}
	month, ok := monthNames[period[5:7]]
	if !ok {
		return "", fmt.Errorf("period %q has no valid month", period)
	}
	return month, nil
}
