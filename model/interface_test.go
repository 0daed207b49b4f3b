package model

import (
	"testing"

	"github.com/wippyai/witbind/errors"
)

func TestAddType_TopologicalOrder(t *testing.T) {
	iface := NewInterface("shapes")

	point := Record(Field{Name: "x", Type: S32()}, Field{Name: "y", Type: S32()})
	poly := Record(Field{Name: "points", Type: List(point)}, Field{Name: "label", Type: String()})

	if _, err := iface.AddType("polygon", poly); err != nil {
		t.Fatalf("AddType: %v", err)
	}
	if _, err := iface.AddType("point", point); err != nil {
		t.Fatalf("AddType: %v", err)
	}

	pos := make(map[*Type]int)
	for i, ty := range iface.Types() {
		if _, dup := pos[ty]; dup {
			t.Fatalf("type %s listed twice", ty)
		}
		pos[ty] = i
	}
	for _, ty := range iface.Types() {
		for _, c := range ty.Children() {
			if pos[c] >= pos[ty] {
				t.Errorf("%s listed before its dependency %s", ty, c)
			}
		}
	}
	if iface.Type("point") != point || point.Name != "point" {
		t.Errorf("point not registered by name")
	}
}

func TestAddType_Cycle(t *testing.T) {
	iface := NewInterface("cyclic")

	node := Record(Field{Name: "value", Type: U32()})
	node.Fields = append(node.Fields, Field{Name: "next", Type: Option(node)})

	_, err := iface.AddType("node", node)
	if !errors.Is(err, errors.ErrCyclicType) {
		t.Fatalf("expected cyclic type error, got %v", err)
	}
	if len(iface.Types()) != 0 || iface.Type("node") != nil {
		t.Errorf("failed registration mutated the interface")
	}
	if node.Name != "" {
		t.Errorf("failed registration named the type")
	}
}

func TestAddType_CycleThroughHandleAllowed(t *testing.T) {
	iface := NewInterface("tree")
	r, err := iface.AddResource("node")
	if err != nil {
		t.Fatal(err)
	}

	children := Record(Field{Name: "kids", Type: List(Own(r))})
	if _, err := iface.AddType("children", children); err != nil {
		t.Fatalf("handle should break the cycle: %v", err)
	}
}

func TestAddResource_Duplicate(t *testing.T) {
	iface := NewInterface("res")
	if _, err := iface.AddResource("file"); err != nil {
		t.Fatal(err)
	}
	_, err := iface.AddResource("file")
	if !errors.Is(err, errors.ErrDuplicateName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}
	if len(iface.Resources()) != 1 {
		t.Errorf("resources = %d, want 1", len(iface.Resources()))
	}

	_, err = iface.AddType("file", Enum("a"))
	if !errors.Is(err, errors.ErrDuplicateName) {
		t.Fatalf("type colliding with resource: %v", err)
	}
}

func TestAddType_Validation(t *testing.T) {
	foreign := &Resource{Name: "elsewhere"}
	tests := []struct {
		name string
		typ  *Type
	}{
		{"duplicate field", Record(Field{Name: "a", Type: U8()}, Field{Name: "a", Type: U8()})},
		{"duplicate case", Variant(Case{Name: "x"}, Case{Name: "x"})},
		{"empty enum", Enum()},
		{"unregistered resource", Own(foreign)},
		{"nil element", List(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iface := NewInterface("v")
			if _, err := iface.AddType("t", tt.typ); err == nil {
				t.Fatal("expected error")
			}
			if len(iface.Types()) != 0 {
				t.Error("failed registration left types behind")
			}
		})
	}
}

func TestAddType_SharedPrimitiveCopied(t *testing.T) {
	iface := NewInterface("alias")
	id, err := iface.AddType("id", U64())
	if err != nil {
		t.Fatal(err)
	}
	if id == U64() {
		t.Fatal("shared primitive was registered in place")
	}
	if U64().Name != "" {
		t.Fatalf("shared primitive renamed to %q", U64().Name)
	}
	if id.String() != "id" || id.Describe() != "u64" {
		t.Errorf("String/Describe = %q/%q", id.String(), id.Describe())
	}
}

func TestAddExport(t *testing.T) {
	iface := NewInterface("fs")
	file, _ := iface.AddResource("file")

	read := &Function{
		Name:     "read",
		Kind:     FuncMethod,
		Resource: file,
		Params:   []Param{{Name: "self", Type: Borrow(file)}, {Name: "n", Type: U32()}},
		Result:   List(U8()),
	}
	if err := iface.AddExport(read); err != nil {
		t.Fatal(err)
	}
	if got := read.ExportName(""); got != "[method]file.read" {
		t.Errorf("ExportName = %q", got)
	}
	if iface.Export("[method]file.read") != read {
		t.Error("export lookup failed")
	}
	if err := iface.AddExport(read); !errors.Is(err, errors.ErrDuplicateName) {
		t.Errorf("re-adding export: %v", err)
	}

	bad := &Function{Name: "f", Params: []Param{{Name: "a", Type: U8()}, {Name: "a", Type: U8()}}}
	if err := iface.AddImport(bad); !errors.Is(err, errors.ErrDuplicateName) {
		t.Errorf("duplicate param: %v", err)
	}
}

func TestDescribe(t *testing.T) {
	r := &Resource{Name: "blob"}
	tests := []struct {
		typ  *Type
		want string
	}{
		{List(Tuple(String(), String())), "list<tuple<string, string>>"},
		{Result(List(U8()), String()), "result<list<u8>, string>"},
		{Result(nil, String()), "result<_, string>"},
		{Result(U32(), nil), "result<u32>"},
		{Result(nil, nil), "result"},
		{Option(Char()), "option<char>"},
		{Enum("js", "rust"), "enum { js, rust }"},
		{Flags("r", "w"), "flags { r, w }"},
		{Variant(Case{Name: "a"}, Case{Name: "b", Type: F64()}), "variant { a, b(f64) }"},
		{Borrow(r), "borrow<blob>"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCases(t *testing.T) {
	opt := Option(U8())
	if opt.CaseCount() != 2 || opt.CaseName(1) != "some" || opt.CaseType(1) != U8() || opt.CaseType(0) != nil {
		t.Error("option cases")
	}
	res := Result(nil, String())
	if res.CaseIndex("err") != 1 || res.CaseType(0) != nil {
		t.Error("result cases")
	}
	if Enum("a", "b").CaseIndex("c") != -1 {
		t.Error("missing case should be -1")
	}
}
