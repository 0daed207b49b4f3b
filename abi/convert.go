package abi

import (
	"fmt"
	"math"
	"math/bits"
	"reflect"
	"strings"
	"unicode"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/layout"
	"github.com/wippyai/witbind/model"
)

// splitRecord returns the field values of a host record in declaration
// order. Maps must name every field and nothing else; structs are matched
// by wit tag, then case-insensitively, then by kebab-case name.
func splitRecord(t *model.Type, v any) ([]any, error) {
	out := make([]any, len(t.Fields))
	if m, ok := v.(map[string]any); ok {
		for i, f := range t.Fields {
			fv, ok := m[f.Name]
			if !ok {
				return nil, errors.FieldMissing(errors.PhaseEncode, path(t), f.Name)
			}
			out[i] = fv
		}
		if len(m) != len(t.Fields) {
			for k := range m {
				if fieldIndex(t, k) < 0 {
					return nil, errors.FieldUnknown(errors.PhaseEncode, path(t), k)
				}
			}
		}
		return out, nil
	}

	rv, err := deref(t, v)
	if err != nil {
		return nil, err
	}
	if rv.Kind() != reflect.Struct {
		return nil, mismatch(t, v)
	}
	for i, f := range t.Fields {
		sf, ok := findField(rv.Type(), f.Name)
		if !ok {
			return nil, errors.FieldMissing(errors.PhaseEncode, path(t), f.Name)
		}
		out[i] = rv.FieldByIndex(sf.Index).Interface()
	}
	return out, nil
}

func fieldIndex(t *model.Type, name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func deref(t *model.Type, v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return rv, errors.NilPointer(errors.PhaseEncode, path(t), typeName(v))
		}
		rv = rv.Elem()
	}
	return rv, nil
}

func findField(st reflect.Type, witName string) (reflect.StructField, bool) {
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if !field.IsExported() {
			continue
		}
		if tag := field.Tag.Get("wit"); tag != "" {
			if tag == "-" {
				continue
			}
			if tag == witName {
				return field, true
			}
		}
		if strings.EqualFold(field.Name, witName) || toKebabCase(field.Name) == witName {
			return field, true
		}
	}
	return reflect.StructField{}, false
}

func toKebabCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitTuple returns the members of a host tuple given as a slice.
func splitTuple(t *model.Type, v any) ([]any, error) {
	elems, ok := sliceOf(v)
	if !ok {
		return nil, mismatch(t, v)
	}
	if len(elems) != len(t.Elems) {
		return nil, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
			Path(path(t)...).
			WitType(t.String()).
			Detail("tuple of %d values, got %d", len(t.Elems), len(elems)).
			Build()
	}
	return elems, nil
}

// sliceOf returns the elements of []any or of any other slice or array.
func sliceOf(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// lowerFlags returns the flag words of a host flags value: one word for up
// to 64 flags, 32-bit words above.
func lowerFlags(t *model.Type, v any) ([]uint64, error) {
	n := len(t.Flags)
	if n == 0 {
		return nil, nil
	}

	if names, ok := v.([]string); ok {
		words := make([]uint64, flagWordCount(n))
		for _, name := range names {
			i := flagIndex(t, name)
			if i < 0 {
				return nil, errors.InvalidCase(path(t), name, t.String())
			}
			if n <= 64 {
				words[0] |= 1 << i
			} else {
				words[i/32] |= 1 << (i % 32)
			}
		}
		return words, nil
	}

	if n <= 64 {
		max := uint64(math.MaxUint64)
		if n < 64 {
			max = 1<<n - 1
		}
		u, ok := coerceUint(v, math.MaxUint64)
		if !ok {
			return nil, mismatch(t, v)
		}
		if u > max {
			return nil, errors.Overflow(errors.PhaseEncode, path(t), v, t.String())
		}
		return []uint64{u}, nil
	}

	ws, ok := v.([]uint32)
	if !ok {
		return nil, mismatch(t, v)
	}
	words := make([]uint64, layout.FlagWords(n))
	if len(ws) > len(words) {
		return nil, errors.Overflow(errors.PhaseEncode, path(t), v, t.String())
	}
	for i, w := range ws {
		words[i] = uint64(w)
	}
	if rem := n % 32; rem != 0 && bits.Len32(uint32(words[len(words)-1])) > rem {
		return nil, errors.Overflow(errors.PhaseEncode, path(t), v, t.String())
	}
	return words, nil
}

func flagWordCount(n int) int {
	if n <= 64 {
		return 1
	}
	return layout.FlagWords(n)
}

func flagIndex(t *model.Type, name string) int {
	for i, f := range t.Flags {
		if f == name {
			return i
		}
	}
	return -1
}

// liftFlags builds the host flags value, ignoring bits past the last flag.
func liftFlags(t *model.Type, words []uint64) any {
	n := len(t.Flags)
	switch {
	case n == 0:
		return uint64(0)
	case n <= 64:
		u := words[0]
		if n < 64 {
			u &= 1<<n - 1
		}
		return u
	}
	out := make([]uint32, len(words))
	for i, w := range words {
		out[i] = uint32(w)
	}
	if rem := n % 32; rem != 0 {
		out[len(out)-1] &= 1<<rem - 1
	}
	return out
}

// FlagNames lists the names of the flags set in a lifted flags value.
func FlagNames(t *model.Type, v any) []string {
	var names []string
	for i, name := range t.Flags {
		var set bool
		switch w := v.(type) {
		case uint64:
			set = i < 64 && w&(1<<i) != 0
		case []uint32:
			set = i/32 < len(w) && w[i/32]&(1<<(i%32)) != 0
		}
		if set {
			names = append(names, name)
		}
	}
	return names
}

// caseIndex resolves an enum value given as a case name or an index.
func caseIndex(t *model.Type, v any) (int, error) {
	if s, ok := v.(string); ok {
		i := t.CaseIndex(s)
		if i < 0 {
			return 0, errors.InvalidCase(path(t), s, t.String())
		}
		return i, nil
	}
	u, ok := coerceUint(v, math.MaxUint32)
	if !ok {
		return 0, mismatch(t, v)
	}
	if u >= uint64(t.CaseCount()) {
		return 0, errors.InvalidCase(path(t), v, t.String())
	}
	return int(u), nil
}

// caseOf selects the case of a host variant, option or result and returns
// its payload.
func caseOf(t *model.Type, v any) (int, any, error) {
	switch t.Kind {
	case model.KindOption:
		switch s := v.(type) {
		case nil:
			return 0, nil, nil
		case Some:
			return 1, s.Value, nil
		case *Some:
			if s == nil {
				return 0, nil, nil
			}
			return 1, s.Value, nil
		}
		return 1, v, nil

	case model.KindResult:
		switch r := v.(type) {
		case Result:
			return resultCase(r), r.Value, nil
		case *Result:
			if r != nil {
				return resultCase(*r), r.Value, nil
			}
		}
		return 0, nil, mismatch(t, v)

	case model.KindVariant:
		var c Variant
		switch x := v.(type) {
		case Variant:
			c = x
		case *Variant:
			if x == nil {
				return 0, nil, errors.NilPointer(errors.PhaseEncode, path(t), typeName(v))
			}
			c = *x
		default:
			return 0, nil, mismatch(t, v)
		}
		i := t.CaseIndex(c.Case)
		if i < 0 {
			return 0, nil, errors.InvalidCase(path(t), c.Case, t.String())
		}
		if t.CaseType(i) == nil && c.Payload != nil {
			return 0, nil, errors.InvalidData(errors.PhaseEncode, path(t),
				fmt.Sprintf("case %s takes no payload, got %s", c.Case, typeName(c.Payload)))
		}
		return i, c.Payload, nil
	}
	return 0, nil, mismatch(t, v)
}

func resultCase(r Result) int {
	if r.IsErr {
		return 1
	}
	return 0
}

func checkDisc(t *model.Type, disc uint64) error {
	n := t.CaseCount()
	if disc >= uint64(n) {
		return errors.InvalidDiscriminant(errors.PhaseDecode, path(t), uint32(disc), uint32(n-1))
	}
	return nil
}

// caseValue builds the host form of case i of t carrying payload.
func caseValue(t *model.Type, i int, payload any) any {
	switch t.Kind {
	case model.KindOption:
		if i == 0 {
			return nil
		}
		if t.Elem.Kind == model.KindOption {
			return Some{Value: payload}
		}
		return payload
	case model.KindResult:
		return Result{Value: payload, IsErr: i == 1}
	}
	return Variant{Case: t.CaseName(i), Payload: payload}
}
