package main

import (
	"reflect"
	"testing"

	"github.com/wippyai/witbind/abi"
	"github.com/wippyai/witbind/model"
)

func TestParseArgs(t *testing.T) {
	point := model.Record(
		model.Field{Name: "x", Type: model.S32()},
		model.Field{Name: "y", Type: model.S32()},
	)
	shape := model.Variant(
		model.Case{Name: "circle", Type: model.F32()},
		model.Case{Name: "none"},
	)
	f := &model.Function{Name: "draw", Params: []model.Param{
		{Name: "p", Type: point},
		{Name: "s", Type: shape},
		{Name: "tags", Type: model.List(model.String())},
		{Name: "initial", Type: model.Char()},
		{Name: "limit", Type: model.Option(model.U32())},
		{Name: "out", Type: model.Result(model.U8(), nil)},
		{Name: "raw", Type: model.List(model.U8())},
	}}

	args, err := parseArgs(f, `[{"x": 1, "y": -2}, {"case": "circle", "value": 1.5}, ["a", "b"], "é", null, {"err": null}, "hi"]`)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{
		map[string]any{"x": float64(1), "y": float64(-2)},
		abi.Variant{Case: "circle", Payload: 1.5},
		[]any{"a", "b"},
		'é',
		nil,
		abi.Err(nil),
		[]byte("hi"),
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args = %#v\nwant %#v", args, want)
	}
}

func TestParseArgsErrors(t *testing.T) {
	f := &model.Function{Name: "f", Params: []model.Param{
		{Name: "c", Type: model.Char()},
	}}
	tests := []struct {
		name string
		raw  string
	}{
		{"count", `[]`},
		{"json", `[`},
		{"char", `["ab"]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseArgs(f, tc.raw); err == nil {
				t.Fatalf("parseArgs(%s) succeeded", tc.raw)
			}
		})
	}

	v := &model.Function{Name: "v", Params: []model.Param{
		{Name: "e", Type: model.Variant(model.Case{Name: "a"})},
	}}
	if _, err := parseArgs(v, `[{"case": "b"}]`); err == nil {
		t.Fatal("unknown case accepted")
	}
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		typ  *model.Type
		in   string
		want any
	}{
		{model.String(), `hello "there"`, `hello "there"`},
		{model.Char(), "x", 'x'},
		{model.Bool(), "true", true},
		{model.U32(), "42", float64(42)},
		{model.List(model.U16()), "[1, 2]", []any{float64(1), float64(2)}},
	}
	for _, tc := range tests {
		t.Run(tc.typ.String(), func(t *testing.T) {
			got, err := parseInput(tc.typ, tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("parseInput(%q) = %#v, want %#v", tc.in, got, tc.want)
			}
		})
	}
	if _, err := parseInput(model.Char(), "xy"); err == nil {
		t.Fatal("two characters accepted as char")
	}
}

func TestFormatValue(t *testing.T) {
	shape := model.Variant(model.Case{Name: "circle", Type: model.F32()})
	tests := []struct {
		typ  *model.Type
		v    any
		want string
	}{
		{model.Char(), 'a', "'a'"},
		{model.S32(), int32(97), "97"},
		{model.String(), "hi", `"hi"`},
		{shape, abi.Variant{Case: "circle", Payload: float32(2)}, "circle(2)"},
		{model.Result(model.U8(), model.String()), abi.Err("bad"), `err("bad")`},
		{model.List(model.U8()), []byte("ab"), `"ab"`},
	}
	for _, tc := range tests {
		if got := formatValue(tc.typ, tc.v); got != tc.want {
			t.Errorf("formatValue(%s) = %s, want %s", tc.typ, got, tc.want)
		}
	}
}
