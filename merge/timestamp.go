// ABOUTME: Timestamp parsing and ordering for field-level merges
// ABOUTME: Unparsable or empty timestamps order as the epoch
package merge

import (
	"strings"
	"time"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseMillis converts an ISO-8601 timestamp to epoch milliseconds.
// Empty or unparsable input yields 0.
func ParseMillis(ts string) int64 {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return 0
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

// LatestTimestamp returns whichever timestamp orders later. Ties prefer a
// non-empty string, then the lexically greater one, so the result does not
// depend on argument order.
func LatestTimestamp(a, b string) string {
	am, bm := ParseMillis(a), ParseMillis(b)
	switch {
	case am > bm:
		return a
	case bm > am:
		return b
	case a == "":
		return b
	case b == "":
		return a
	case b > a:
		return b
	default:
		return a
	}
}
