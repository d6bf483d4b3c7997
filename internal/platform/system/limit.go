package system

const (
	// DefaultListLimit is the standard page size for list operations across stores.
	DefaultListLimit = 25
	// MaxListLimit is the standard maximum page size.
	MaxListLimit = 500
)

// ClampLimit returns a sane list limit, defaulting non-positive values and
// clamping anything above max.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
