package postgres

import (
	"database/sql"
	"time"

	"github.com/epam/rule-engine/internal/platform/system"
)

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// clampListLimit applies the platform-wide list-limit policy (§ ambient
// stack) to a caller-supplied page size.
func clampListLimit(limit int) int {
	return system.ClampLimit(limit)
}
