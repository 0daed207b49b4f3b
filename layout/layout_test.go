package layout

import (
	"reflect"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/model"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f32 = api.ValueTypeF32
	f64 = api.ValueTypeF64
)

func TestPrimitives(t *testing.T) {
	e := New()

	tests := []struct {
		typ   *model.Type
		size  uint32
		align uint32
		flat  []api.ValueType
	}{
		{model.Bool(), 1, 1, []api.ValueType{i32}},
		{model.U8(), 1, 1, []api.ValueType{i32}},
		{model.S8(), 1, 1, []api.ValueType{i32}},
		{model.U16(), 2, 2, []api.ValueType{i32}},
		{model.S16(), 2, 2, []api.ValueType{i32}},
		{model.U32(), 4, 4, []api.ValueType{i32}},
		{model.S32(), 4, 4, []api.ValueType{i32}},
		{model.U64(), 8, 8, []api.ValueType{i64}},
		{model.S64(), 8, 8, []api.ValueType{i64}},
		{model.F32(), 4, 4, []api.ValueType{f32}},
		{model.F64(), 8, 8, []api.ValueType{f64}},
		{model.Char(), 4, 4, []api.ValueType{i32}},
		{model.String(), 8, 4, []api.ValueType{i32, i32}},
		{model.List(model.U64()), 8, 4, []api.ValueType{i32, i32}},
		{model.Own(&model.Resource{Name: "r"}), 4, 4, []api.ValueType{i32}},
	}

	for _, tc := range tests {
		t.Run(tc.typ.String(), func(t *testing.T) {
			l := e.Of(tc.typ)
			if l.Size != tc.size || l.Align != tc.align {
				t.Errorf("size/align: got %d/%d, want %d/%d", l.Size, l.Align, tc.size, tc.align)
			}
			if !reflect.DeepEqual(l.Flat, tc.flat) {
				t.Errorf("flat: got %v, want %v", l.Flat, tc.flat)
			}
		})
	}
}

func TestRecord(t *testing.T) {
	e := New()

	t.Run("empty", func(t *testing.T) {
		l := e.Of(model.Record())
		if l.Size != 0 || l.Align != 1 || len(l.Flat) != 0 {
			t.Errorf("got %+v", l)
		}
	})

	t.Run("mixed_alignment", func(t *testing.T) {
		l := e.Of(model.Record(
			model.Field{Name: "a", Type: model.U8()},
			model.Field{Name: "b", Type: model.U32()},
			model.Field{Name: "c", Type: model.U8()},
		))
		if !reflect.DeepEqual(l.Offsets, []uint32{0, 4, 8}) {
			t.Errorf("offsets: got %v", l.Offsets)
		}
		if l.Size != 12 || l.Align != 4 {
			t.Errorf("size/align: got %d/%d, want 12/4", l.Size, l.Align)
		}
		if !reflect.DeepEqual(l.Flat, []api.ValueType{i32, i32, i32}) {
			t.Errorf("flat: got %v", l.Flat)
		}
	})

	t.Run("u64_alignment", func(t *testing.T) {
		l := e.Of(model.Tuple(model.U8(), model.U64(), model.U8()))
		if !reflect.DeepEqual(l.Offsets, []uint32{0, 8, 16}) {
			t.Errorf("offsets: got %v", l.Offsets)
		}
		if l.Size != 24 || l.Align != 8 {
			t.Errorf("size/align: got %d/%d, want 24/8", l.Size, l.Align)
		}
	})

	t.Run("nested_flat_concatenates", func(t *testing.T) {
		inner := model.Record(model.Field{Name: "s", Type: model.String()}, model.Field{Name: "f", Type: model.F64()})
		l := e.Of(model.Tuple(inner, model.Bool()))
		want := []api.ValueType{i32, i32, f64, i32}
		if !reflect.DeepEqual(l.Flat, want) {
			t.Errorf("flat: got %v, want %v", l.Flat, want)
		}
		if l.Size != 24 || l.Offsets[1] != 16 {
			t.Errorf("size %d, bool at %d", l.Size, l.Offsets[1])
		}
	})
}

func TestVariants(t *testing.T) {
	e := New()

	tests := []struct {
		name    string
		typ     *model.Type
		size    uint32
		align   uint32
		payload uint32
		flat    []api.ValueType
	}{
		{"option_u8", model.Option(model.U8()), 2, 1, 1, []api.ValueType{i32, i32}},
		{"option_u64", model.Option(model.U64()), 16, 8, 8, []api.ValueType{i32, i64}},
		{"option_string", model.Option(model.String()), 12, 4, 4, []api.ValueType{i32, i32, i32}},
		{"result_empty", model.Result(nil, nil), 1, 1, 1, []api.ValueType{i32}},
		{"result_list_string", model.Result(model.List(model.Tuple(model.String(), model.String())), model.String()),
			12, 4, 4, []api.ValueType{i32, i32, i32}},
		{"join_i32_f32", model.Variant(
			model.Case{Name: "a", Type: model.F32()},
			model.Case{Name: "b", Type: model.U32()},
		), 8, 4, 4, []api.ValueType{i32, i32}},
		{"join_f32_i64", model.Variant(
			model.Case{Name: "a", Type: model.F32()},
			model.Case{Name: "b", Type: model.U64()},
			model.Case{Name: "c"},
		), 16, 8, 8, []api.ValueType{i32, i64}},
		{"join_f64_f32", model.Variant(
			model.Case{Name: "a", Type: model.F64()},
			model.Case{Name: "b", Type: model.Tuple(model.F32(), model.F32())},
		), 16, 8, 8, []api.ValueType{i32, i64, f32}},
		{"enum", model.Enum("js", "rust", "go"), 1, 1, 1, []api.ValueType{i32}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := e.Of(tc.typ)
			if l.Size != tc.size || l.Align != tc.align {
				t.Errorf("size/align: got %d/%d, want %d/%d", l.Size, l.Align, tc.size, tc.align)
			}
			if l.PayloadOffset != tc.payload {
				t.Errorf("payload offset: got %d, want %d", l.PayloadOffset, tc.payload)
			}
			if !reflect.DeepEqual(l.Flat, tc.flat) {
				t.Errorf("flat: got %v, want %v", l.Flat, tc.flat)
			}
		})
	}
}

func TestDiscriminantSize(t *testing.T) {
	tests := []struct {
		cases int
		want  uint32
	}{
		{1, 1}, {255, 1}, {256, 1}, {257, 2}, {65535, 2}, {65536, 2}, {65537, 4},
	}
	for _, tc := range tests {
		if got := DiscriminantSize(tc.cases); got != tc.want {
			t.Errorf("DiscriminantSize(%d) = %d, want %d", tc.cases, got, tc.want)
		}
	}

	names := make([]string, 257)
	for i := range names {
		names[i] = string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	l := New().Of(model.Enum(names...))
	if l.Size != 2 || l.Align != 2 || l.DiscSize != 2 {
		t.Errorf("257-case enum: got %+v", l)
	}
}

func TestFlags(t *testing.T) {
	tests := []struct {
		n     int
		size  uint32
		align uint32
		flat  int
		kind  api.ValueType
	}{
		{0, 0, 1, 0, 0},
		{1, 1, 1, 1, i32},
		{8, 1, 1, 1, i32},
		{9, 2, 2, 1, i32},
		{16, 2, 2, 1, i32},
		{17, 4, 4, 1, i32},
		{32, 4, 4, 1, i32},
		{33, 8, 8, 1, i64},
		{64, 8, 8, 1, i64},
		{65, 12, 4, 3, i32},
	}
	for _, tc := range tests {
		names := make([]string, tc.n)
		for i := range names {
			names[i] = "f" + string(rune('0'+i/10)) + string(rune('0'+i%10))
		}
		l := New().Of(model.Flags(names...))
		if l.Size != tc.size || l.Align != tc.align || len(l.Flat) != tc.flat {
			t.Errorf("%d flags: got size %d align %d flat %v", tc.n, l.Size, l.Align, l.Flat)
			continue
		}
		if tc.flat > 0 && l.Flat[0] != tc.kind {
			t.Errorf("%d flags: flat kind %v, want %v", tc.n, l.Flat[0], tc.kind)
		}
	}
}

func TestDeterminism(t *testing.T) {
	typ := model.Result(model.List(model.Tuple(model.String(), model.Option(model.F64()))), model.Enum("a", "b"))

	a := New().Of(typ)
	b := New().Of(typ)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("layouts differ across engines: %+v vs %+v", a, b)
	}

	e := New()
	if e.Of(typ) != e.Of(typ) {
		t.Error("layout not memoized")
	}
}

func TestSignature(t *testing.T) {
	lang := model.Enum("js", "rust")
	render := &model.Function{
		Name: "render",
		Params: []model.Param{
			{Name: "lang", Type: lang},
			{Name: "template", Type: model.String()},
			{Name: "strict", Type: model.Bool()},
		},
		Result: model.Result(model.List(model.Tuple(model.String(), model.String())), model.String()),
	}

	e := New()

	t.Run("export", func(t *testing.T) {
		s := e.Signature(render, Export)
		if !reflect.DeepEqual(s.Params, []api.ValueType{i32, i32, i32, i32}) {
			t.Errorf("params: %v", s.Params)
		}
		if !s.ResultSpilled || !reflect.DeepEqual(s.Results, []api.ValueType{i32}) {
			t.Errorf("results: spilled=%v %v", s.ResultSpilled, s.Results)
		}
		if s.ParamsSpilled {
			t.Error("params should not spill")
		}
	})

	t.Run("import", func(t *testing.T) {
		s := e.Signature(render, Import)
		if len(s.Params) != 5 || len(s.Results) != 0 {
			t.Errorf("params %v results %v", s.Params, s.Results)
		}
		if len(e.Signature(render, Export).Params) != 4 {
			t.Error("import signature leaked into export signature")
		}
	})

	t.Run("params_spill", func(t *testing.T) {
		params := make([]model.Param, 17)
		for i := range params {
			params[i] = model.Param{Name: "p" + string(rune('a'+i)), Type: model.U32()}
		}
		f := &model.Function{Name: "sum17", Params: params, Result: model.U32()}
		s := e.Signature(f, Export)
		if !s.ParamsSpilled || len(s.Params) != 1 || s.Params[0] != i32 {
			t.Fatalf("params: spilled=%v %v", s.ParamsSpilled, s.Params)
		}
		if s.ParamArea.Size != 68 || s.ParamArea.Offsets[16] != 64 {
			t.Errorf("param area: %+v", s.ParamArea)
		}
		if s.ResultSpilled || !reflect.DeepEqual(s.Results, []api.ValueType{i32}) {
			t.Errorf("results: %v", s.Results)
		}
	})

	t.Run("sixteen_flat_params_fit", func(t *testing.T) {
		params := make([]model.Param, 8)
		for i := range params {
			params[i] = model.Param{Name: "s" + string(rune('a'+i)), Type: model.String()}
		}
		s := e.Signature(&model.Function{Name: "strings", Params: params}, Export)
		if s.ParamsSpilled || len(s.Params) != 16 {
			t.Errorf("spilled=%v params=%d", s.ParamsSpilled, len(s.Params))
		}
	})
}
