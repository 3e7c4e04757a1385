package analytics

import (
	"context"
	"strconv"
	"time"
)

// Store executes a parameterized read-only query and returns its rows keyed by column name.
type Store interface {
	Fetch(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error)
}

// Row accessors tolerate the value types the driver produces for numeric, text and date
// columns. NULL and unexpected types read as the zero value.

func rowFloat(row map[string]interface{}, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func rowInt(row map[string]interface{}, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func rowString(row map[string]interface{}, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

// rowDate returns the calendar day of a DATE column as midnight UTC.
func rowDate(row map[string]interface{}, key string) (time.Time, bool) {
	switch v := row[key].(type) {
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC), true
	case string:
		if len(v) >= 10 {
			if t, err := time.Parse(dateLayout, v[:10]); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

const dateLayout = "2006-01-02"
