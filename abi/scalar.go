package abi

import (
	"math"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/model"
)

// bitcast reinterprets a flat value as type to. 32-bit types keep the low
// word; the payload bits are never converted numerically.
func bitcast(v uint64, to api.ValueType) uint64 {
	switch to {
	case api.ValueTypeI32, api.ValueTypeF32:
		return v & 0xffffffff
	}
	return v
}

func path(t *model.Type) []string {
	return []string{t.String()}
}

func mismatch(t *model.Type, v any) error {
	return errors.TypeMismatch(errors.PhaseEncode, path(t), typeName(v), t.String())
}

var uintMax = map[model.Kind]uint64{
	model.KindU8:  math.MaxUint8,
	model.KindU16: math.MaxUint16,
	model.KindU32: math.MaxUint32,
	model.KindU64: math.MaxUint64,
}

var intMax = map[model.Kind]int64{
	model.KindS8:  math.MaxInt8,
	model.KindS16: math.MaxInt16,
	model.KindS32: math.MaxInt32,
}

// lowerScalar converts a host scalar to its flat bit pattern.
func lowerScalar(t *model.Type, v any) (uint64, error) {
	switch t.Kind {
	case model.KindBool:
		b, ok := coerceBool(v)
		if !ok {
			return 0, mismatch(t, v)
		}
		if b {
			return 1, nil
		}
		return 0, nil

	case model.KindU8, model.KindU16, model.KindU32, model.KindU64:
		u, ok := coerceUint(v, uintMax[t.Kind])
		if !ok {
			return 0, intError(t, v)
		}
		return u, nil

	case model.KindS8, model.KindS16, model.KindS32:
		max := intMax[t.Kind]
		i, ok := coerceInt(v, -max-1, max)
		if !ok {
			return 0, intError(t, v)
		}
		return uint64(uint32(int32(i))), nil

	case model.KindS64:
		i, ok := coerceInt(v, math.MinInt64, math.MaxInt64)
		if !ok {
			return 0, intError(t, v)
		}
		return uint64(i), nil

	case model.KindF32:
		f, ok := coerceFloat(v)
		if !ok {
			return 0, mismatch(t, v)
		}
		return uint64(CanonicalizeF32(math.Float32bits(float32(f)))), nil

	case model.KindF64:
		f, ok := coerceFloat(v)
		if !ok {
			return 0, mismatch(t, v)
		}
		return CanonicalizeF64(math.Float64bits(f)), nil

	case model.KindChar:
		var c uint64
		if s, ok := v.(string); ok {
			r, n := utf8.DecodeRuneInString(s)
			if n == 0 || n != len(s) || r == utf8.RuneError && n == 1 {
				return 0, mismatch(t, v)
			}
			c = uint64(r)
		} else {
			u, ok := coerceUint(v, math.MaxUint32)
			if !ok {
				return 0, mismatch(t, v)
			}
			c = u
		}
		if !ValidChar(uint32(c)) {
			return 0, errors.InvalidChar(errors.PhaseEncode, path(t), uint32(c))
		}
		return c, nil
	}
	return 0, errors.Unsupported(errors.PhaseEncode, t.String())
}

// intError separates values of the wrong type from numbers out of range.
func intError(t *model.Type, v any) error {
	if _, ok := coerceFloat(v); ok {
		return errors.Overflow(errors.PhaseEncode, path(t), v, t.String())
	}
	return mismatch(t, v)
}

// liftScalar interprets the low bits of a flat value as a host scalar.
func liftScalar(t *model.Type, v uint64) (any, error) {
	switch t.Kind {
	case model.KindBool:
		return uint32(v) != 0, nil
	case model.KindU8:
		return uint8(v), nil
	case model.KindS8:
		return int8(v), nil
	case model.KindU16:
		return uint16(v), nil
	case model.KindS16:
		return int16(v), nil
	case model.KindU32:
		return uint32(v), nil
	case model.KindS32:
		return int32(uint32(v)), nil
	case model.KindU64:
		return v, nil
	case model.KindS64:
		return int64(v), nil
	case model.KindF32:
		return math.Float32frombits(uint32(v)), nil
	case model.KindF64:
		return math.Float64frombits(v), nil
	case model.KindChar:
		c := uint32(v)
		if !ValidChar(c) {
			return nil, errors.InvalidChar(errors.PhaseDecode, path(t), c)
		}
		return rune(c), nil
	}
	return nil, errors.Unsupported(errors.PhaseDecode, t.String())
}
