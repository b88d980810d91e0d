package sqlitestore

import (
	"fmt"
	"time"
)

const rfc3339 = time.RFC3339

// parseTimestamp parses a required (non-nullable) RFC3339 timestamp column.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(rfc3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
