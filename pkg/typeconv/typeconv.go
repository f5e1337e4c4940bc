// Package typeconv converts the loosely typed scalar values read from the
// legacy SQL schema into the types the destination documents use. Legacy
// columns store booleans as "Y"/"N" flags, dates as strings in a handful
// of formats, and several enums as small integers.
package typeconv

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var dateFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// String renders any scalar as a trimmed string. Nil becomes "".
func String(val interface{}) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// Bool interprets the legacy boolean encodings. Unknown values are false.
func Bool(val interface{}) bool {
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	case int, int32, int64:
		return Int(v) != 0
	case float64:
		return v != 0
	}
	switch strings.ToLower(String(val)) {
	case "y", "yes", "t", "true", "1":
		return true
	}
	return false
}

// Int coerces numeric and numeric-string values. Nil or garbage is 0.
func Int(val interface{}) int {
	switch v := val.(type) {
	case nil:
		return 0
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	}
	n, err := strconv.Atoi(String(val))
	if err != nil {
		return 0
	}
	return n
}

// Float coerces numeric and numeric-string values. Nil or garbage is 0.
func Float(val interface{}) float64 {
	switch v := val.(type) {
	case nil:
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	f, err := strconv.ParseFloat(String(val), 64)
	if err != nil {
		return 0
	}
	return f
}

// Date parses legacy date values. The second return reports whether a
// usable time was obtained; callers decide the default for absent dates.
func Date(val interface{}) (time.Time, bool) {
	switch v := val.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case []byte:
		return Date(string(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, f := range dateFormats {
			if t, err := time.Parse(f, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Enum maps a legacy numeric enum to its string name. Codes outside the
// mapping fall back to the given default rather than failing the record.
func Enum(val interface{}, names map[int]string, fallback string) string {
	if name, ok := names[Int(val)]; ok {
		return name
	}
	return fallback
}
