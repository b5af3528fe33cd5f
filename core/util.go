package core

import (
	"strings"
	"time"
)

var NowFunc = time.Now // mockable

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Today returns the current date at midnight UTC.
func Today() time.Time {
	y, m, d := NowFunc().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
