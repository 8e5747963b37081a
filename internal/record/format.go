// Package record turns an ingested message into a store-ready record that
// matches the destination table's live schema.
package record

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"ticketrelay/internal/domain"
)

const dayLayout = "2006-01-02"

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", dayLayout}

// Format coerces value into the representation a field of type t expects.
// A nil value yields nil. Number fields always yield a float64 (NaN when the
// input has no numeric reading), checkbox fields always yield a bool, and
// date fields yield a YYYY-MM-DD string or nil when the input is not a date.
// Every other type yields a string.
func Format(value any, t domain.FieldType) any {
	if value == nil {
		return nil
	}
	value = normalize(value)

	switch t {
	case domain.FieldDate:
		d, ok := toTime(value)
		if !ok {
			return nil
		}
		return d.UTC().Format(dayLayout)
	case domain.FieldNumber:
		return toNumber(value)
	case domain.FieldCheckbox:
		return truthy(value)
	default:
		return toString(value)
	}
}

// normalize unwraps named string, integer and float types to their base type.
func normalize(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return d, true
			}
		}
		return time.Time{}, false
	case int64:
		return time.UnixMilli(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(x)), true
	}
	return time.Time{}, false
}

func toNumber(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case time.Time:
		return float64(x.UnixMilli())
	}
	return math.NaN()
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case int64:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	}
	return true
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		switch {
		case math.IsNaN(x):
			return "NaN"
		case math.IsInf(x, 1):
			return "Infinity"
		case math.IsInf(x, -1):
			return "-Infinity"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
