package orm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// storageTimeLayout is how time values are written to every dialect
const storageTimeLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	storageTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses the time formats drivers return for date columns
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time value %q", s)
}

// castOut converts a scanned column value to its attribute form
func castOut(m *Model, col string, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	cast, ok := m.CastOf(col)
	if !ok {
		return value
	}
	return applyCast(cast, value)
}

// castIn converts an assigned value to its attribute form
func castIn(m *Model, col string, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	cast, ok := m.CastOf(col)
	if !ok {
		return value
	}
	// structured values are kept decoded and encoded again on save
	return applyCast(cast, value)
}

func applyCast(cast Cast, value interface{}) interface{} {
	switch {
	case cast == CastBoolean:
		return toBool(value)
	case cast == CastInteger:
		if n, ok := toInt(value); ok {
			return n
		}
	case cast == CastFloat:
		if f, ok := toFloat(value); ok {
			return f
		}
	case cast == CastString:
		return fmt.Sprint(value)
	case cast.IsJSON():
		if s, ok := value.(string); ok {
			var decoded interface{}
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
	case cast.IsTime():
		switch v := value.(type) {
		case time.Time:
			return v.UTC()
		case string:
			if t, err := ParseTime(v); err == nil {
				return t
			}
		case int64:
			return time.Unix(v, 0).UTC()
		case int:
			return time.Unix(int64(v), 0).UTC()
		}
	}
	return value
}

// storageValue converts an attribute to the value bound in SQL statements
func storageValue(m *Model, col string, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	cast, _ := m.CastOf(col)
	switch {
	case cast.IsJSON():
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", col, err)
		}
		return string(encoded), nil
	case cast.IsTime():
		if t, ok := value.(time.Time); ok {
			return t.UTC().Format(storageTimeLayout), nil
		}
	}
	if t, ok := value.(time.Time); ok {
		return t.UTC().Format(storageTimeLayout), nil
	}
	return value, nil
}

func toBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	return false
}

func toInt(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// KeyString renders a key value for comparisons across drivers, which may
// scan the same integer as int64, []byte or string
func KeyString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return fmt.Sprint(value)
}
