package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/witbind/abi"
	"github.com/wippyai/witbind/model"
)

// parseArgs decodes a JSON array holding one value per parameter of f.
func parseArgs(f *model.Function, raw string) ([]any, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "[]"
	}
	var vals []any
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil, fmt.Errorf("arguments: %w", err)
	}
	if len(vals) != len(f.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", f.Name, len(f.Params), len(vals))
	}
	args := make([]any, len(vals))
	for i, v := range vals {
		a, err := fromJSON(f.Params[i].Type, v)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", f.Params[i].Name, err)
		}
		args[i] = a
	}
	return args, nil
}

// parseInput reads one argument typed into the TUI: strings and chars are
// taken as typed, everything else as JSON.
func parseInput(t *model.Type, s string) (any, error) {
	switch t.Kind {
	case model.KindString:
		return s, nil
	case model.KindChar:
		r, n := utf8.DecodeRuneInString(s)
		if n == 0 || n != len(s) {
			return nil, fmt.Errorf("want a single character")
		}
		return r, nil
	case model.KindBool:
		return strconv.ParseBool(s)
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return fromJSON(t, v)
}

// fromJSON converts a decoded JSON value to the host form the ABI machine
// lowers. Records, lists, tuples, enums and flags decode as they are;
// variants are {"case": name, "value": payload} and results {"ok": v} or
// {"err": v}.
func fromJSON(t *model.Type, v any) (any, error) {
	switch t.Kind {
	case model.KindChar:
		s, ok := v.(string)
		if !ok || utf8.RuneCountInString(s) != 1 {
			return nil, fmt.Errorf("char wants a one-character string")
		}
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil

	case model.KindList:
		items, ok := v.([]any)
		if !ok {
			if s, isStr := v.(string); isStr && t.Elem.Kind == model.KindU8 {
				return []byte(s), nil
			}
			return nil, fmt.Errorf("%s wants an array", t)
		}
		out := make([]any, len(items))
		for i, item := range items {
			e, err := fromJSON(t.Elem, item)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil

	case model.KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s wants an object", t)
		}
		out := make(map[string]any, len(m))
		for _, f := range t.Fields {
			fv, err := fromJSON(f.Type, m[f.Name])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			out[f.Name] = fv
		}
		return out, nil

	case model.KindTuple:
		items, ok := v.([]any)
		if !ok || len(items) != len(t.Elems) {
			return nil, fmt.Errorf("%s wants an array of %d", t, len(t.Elems))
		}
		out := make([]any, len(items))
		for i, item := range items {
			e, err := fromJSON(t.Elems[i], item)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil

	case model.KindOption:
		if v == nil {
			return nil, nil
		}
		inner, err := fromJSON(t.Elem, v)
		if err != nil {
			return nil, err
		}
		if t.Elem.Kind == model.KindOption || inner == nil {
			return abi.Some{Value: inner}, nil
		}
		return inner, nil

	case model.KindResult:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf(`%s wants {"ok": ...} or {"err": ...}`, t)
		}
		if e, isErr := m["err"]; isErr {
			p, err := optionalPayload(t.Err, e)
			return abi.Err(p), err
		}
		p, err := optionalPayload(t.OK, m["ok"])
		return abi.Ok(p), err

	case model.KindVariant:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf(`%s wants {"case": name, "value": ...}`, t)
		}
		name, _ := m["case"].(string)
		idx := t.CaseIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%s has no case %q", t, name)
		}
		p, err := optionalPayload(t.CaseType(idx), m["value"])
		return abi.Variant{Case: name, Payload: p}, err

	case model.KindOwn, model.KindBorrow:
		return nil, fmt.Errorf("handles cannot be passed from the command line")
	}
	return v, nil
}

func optionalPayload(t *model.Type, v any) (any, error) {
	if t == nil {
		return nil, nil
	}
	return fromJSON(t, v)
}

// formatValue renders a lifted value of type t as JSON where it can.
func formatValue(t *model.Type, v any) string {
	if r, ok := v.(rune); ok && t != nil && t.Kind == model.KindChar {
		return strconv.QuoteRune(r)
	}
	switch x := v.(type) {
	case abi.Variant:
		if t != nil && t.Kind == model.KindVariant {
			if idx := t.CaseIndex(x.Case); idx >= 0 {
				return fmt.Sprintf("%s(%s)", x.Case, formatValue(t.CaseType(idx), x.Payload))
			}
		}
		return fmt.Sprintf("%s(%s)", x.Case, formatValue(nil, x.Payload))
	case abi.Result:
		if x.IsErr {
			return "err(" + formatValue(resultSide(t, true), x.Value) + ")"
		}
		return "ok(" + formatValue(resultSide(t, false), x.Value) + ")"
	case []byte:
		return strconv.Quote(string(x))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func resultSide(t *model.Type, isErr bool) *model.Type {
	if t == nil || t.Kind != model.KindResult {
		return nil
	}
	if isErr {
		return t.Err
	}
	return t.OK
}
