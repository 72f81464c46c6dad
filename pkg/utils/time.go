package utils

import "time"

// sortableLayout keeps a fixed-width fractional second so lexicographic
// order matches chronological order. RFC3339Nano drops trailing zeros and
// would sort whole seconds after fractional ones.
const sortableLayout = "2006-01-02T15:04:05.000000000Z"

// NowRFC3339 returns the current time in RFC3339 format.
func NowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// FormatSortable formats a timestamp for use inside composite sort keys.
func FormatSortable(t time.Time) string {
	return t.UTC().Format(sortableLayout)
}

// ParseSortable parses a timestamp produced by FormatSortable.
func ParseSortable(s string) (time.Time, error) {
	return time.Parse(sortableLayout, s)
}
