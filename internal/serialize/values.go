package serialize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"moalmanac-api/internal/schema"
)

// DateLayout is the wire format of every date value.
const DateLayout = "2006-01-02"

// dateInputLayouts are the textual forms a date column may come back in.
var dateInputLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Normalize converts a scanned driver value to its JSON form for kind.
// Values that cannot be converted are returned unchanged.
func Normalize(kind schema.Kind, value any) any {
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	if value == nil {
		return nil
	}
	switch kind {
	case schema.KindBool:
		if b, ok := coerceBool(value); ok {
			return b
		}
	case schema.KindDate:
		if d, ok := formatDate(value); ok {
			return d
		}
	case schema.KindInt:
		if n, ok := coerceInt(value); ok {
			return n
		}
	case schema.KindReal:
		if f, ok := coerceFloat(value); ok {
			return f
		}
	}
	return value
}

func coerceBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int64:
		return v != 0, true
	case int:
		return v != 0, true
	case float64:
		return v != 0, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return parsed, err == nil
	default:
		return false, false
	}
}

func formatDate(value any) (string, bool) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(DateLayout), true
	case *time.Time:
		if v == nil {
			return "", false
		}
		return v.UTC().Format(DateLayout), true
	case string:
		for _, layout := range dateInputLayouts {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed.UTC().Format(DateLayout), true
			}
		}
		return "", false
	default:
		return "", false
	}
}

func coerceInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func coerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
