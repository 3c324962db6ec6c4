package utils

import "strings"

// FirstOr returns the first optional value, or def when none was passed.
func FirstOr[T any](def T, vals ...T) T {
	if len(vals) > 0 {
		return vals[0]
	}
	return def
}

// StripQuery drops everything from the first '?' or '#'.
func StripQuery(rawPath string) string {
	if i := strings.IndexAny(rawPath, "?#"); i >= 0 {
		return rawPath[:i]
	}
	return rawPath
}
