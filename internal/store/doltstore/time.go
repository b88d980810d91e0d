//go:build cgo

package doltstore

import (
	"database/sql"
	"time"
)

// nullableTime converts a *time.Time field to the sql.NullTime the Dolt
// MySQL dialect driver expects for a nullable DATETIME column.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
