package core

import (
	"strings"
	"time"
)

// NowFunc is mockable in tests.
var NowFunc = func() time.Time { return time.Now().UTC() }

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanStringPtr is CleanString for optional fields; a blank value becomes nil.
func CleanStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := CleanString(*s)
	if c == "" {
		return nil
	}
	return &c
}

// Date keeps the calendar day of t, at midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
