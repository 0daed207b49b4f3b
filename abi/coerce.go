package abi

import (
	"math"
	"reflect"
)

// coerceUint converts any Go integer, or an integral float as produced by
// JSON decoding, to an unsigned value no larger than max.
func coerceUint(value any, max uint64) (uint64, bool) {
	var u uint64
	switch v := value.(type) {
	case uint8:
		u = uint64(v)
	case uint16:
		u = uint64(v)
	case uint32:
		u = uint64(v)
	case uint64:
		u = v
	case uint:
		u = uint64(v)
	case int, int8, int16, int32, int64:
		i, _ := coerceInt(v, math.MinInt64, math.MaxInt64)
		if i < 0 {
			return 0, false
		}
		u = uint64(i)
	case float64:
		if v < 0 || v >= float64(math.MaxUint64) || v != math.Trunc(v) {
			return 0, false
		}
		u = uint64(v)
	case float32:
		return coerceUint(float64(v), max)
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u = rv.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if rv.Int() < 0 {
				return 0, false
			}
			u = uint64(rv.Int())
		default:
			return 0, false
		}
	}
	if u > max {
		return 0, false
	}
	return u, true
}

// coerceInt is the signed counterpart of coerceUint.
func coerceInt(value any, min, max int64) (int64, bool) {
	var i int64
	switch v := value.(type) {
	case int8:
		i = int64(v)
	case int16:
		i = int64(v)
	case int32:
		i = int64(v)
	case int64:
		i = v
	case int:
		i = int64(v)
	case uint8, uint16, uint32, uint64, uint:
		u, _ := coerceUint(v, math.MaxUint64)
		if u > math.MaxInt64 {
			return 0, false
		}
		i = int64(u)
	case float64:
		if v < float64(math.MinInt64) || v >= float64(math.MaxInt64) || v != math.Trunc(v) {
			return 0, false
		}
		i = int64(v)
	case float32:
		return coerceInt(float64(v), min, max)
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			i = rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > math.MaxInt64 {
				return 0, false
			}
			i = int64(rv.Uint())
		default:
			return 0, false
		}
	}
	if i < min || i > max {
		return 0, false
	}
	return i, true
}

func coerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if i, ok := coerceInt(value, math.MinInt64, math.MaxInt64); ok {
		return float64(i), true
	}
	if u, ok := coerceUint(value, math.MaxUint64); ok {
		return float64(u), true
	}
	return 0, false
}

func coerceBool(value any) (bool, bool) {
	if b, ok := value.(bool); ok {
		return b, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Bool {
		return rv.Bool(), true
	}
	return false, false
}

func coerceString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

// typeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return reflect.TypeOf(value).String()
}
