package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Timestamps are persisted as UTC ISO-8601 strings; the empty string is the
// single "absent" marker.

// NowISO returns the current time as a UTC ISO-8601 string.
func NowISO() string {
	return FormatISO(time.Now())
}

// FormatISO formats a time as UTC ISO-8601.
func FormatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseISO parses a UTC ISO-8601 string. ok is false for the absent marker
// and for unparseable values.
func ParseISO(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// NormalizeTimestamp converts a provider-supplied timestamp to a UTC ISO-8601
// string. Providers send epoch numbers (seconds or milliseconds), numeric
// strings, or ISO strings; unparseable values become absent.
func NormalizeTimestamp(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		if x == "" {
			return ""
		}
		if t, ok := ParseISO(x); ok {
			return FormatISO(t)
		}
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return fromEpoch(n)
		}
		return ""
	case float64:
		return fromEpoch(int64(x))
	case int64:
		return fromEpoch(x)
	case int:
		return fromEpoch(int64(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return fromEpoch(n)
		}
		return ""
	default:
		return ""
	}
}

// fromEpoch treats values above 1e12 as epoch milliseconds, otherwise seconds.
func fromEpoch(n int64) string {
	if n <= 0 {
		return ""
	}
	if n > 1_000_000_000_000 {
		return FormatISO(time.UnixMilli(n))
	}
	return FormatISO(time.Unix(n, 0))
}
