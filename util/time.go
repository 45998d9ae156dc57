package util

import (
	"fmt"
	"time"
)

// Record timestamp layout written by this client: UTC with millisecond precision.
const ISO8601 = "2006-01-02T15:04:05.000Z"

// Layouts accepted when reading timestamps written by other clients.
var timestampLayouts = []string{
	ISO8601,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05.000-07:00",
	"2006-01-02T15:04:05.000000-07:00",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05-07:00",
}

func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse %q as timestamp", s)
}

// Current time, formatted for a new record's createdAt field.
func NowTimestamp() string {
	return time.Now().UTC().Format(ISO8601)
}
