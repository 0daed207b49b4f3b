package model

import (
	"strings"
)

// Type is a node of the interface type graph. Types are compared by pointer;
// the graph must be acyclic except through own/borrow handles.
type Type struct {
	Kind     Kind
	Name     string
	Elem     *Type // list, option
	Fields   []Field
	Elems    []*Type // tuple
	Cases    []Case  // variant, enum
	Flags    []string
	OK       *Type // result; nil for no payload
	Err      *Type // result; nil for no payload
	Resource *Resource
}

// Field is a named record member.
type Field struct {
	Name string
	Type *Type
}

// Case is a variant or enum case. Type is nil when the case has no payload.
type Case struct {
	Name string
	Type *Type
}

var primitives = [...]*Type{
	KindBool:   {Kind: KindBool},
	KindU8:     {Kind: KindU8},
	KindS8:     {Kind: KindS8},
	KindU16:    {Kind: KindU16},
	KindS16:    {Kind: KindS16},
	KindU32:    {Kind: KindU32},
	KindS32:    {Kind: KindS32},
	KindU64:    {Kind: KindU64},
	KindS64:    {Kind: KindS64},
	KindF32:    {Kind: KindF32},
	KindF64:    {Kind: KindF64},
	KindChar:   {Kind: KindChar},
	KindString: {Kind: KindString},
}

// Primitive returns the shared Type for a scalar or string kind.
func Primitive(k Kind) *Type {
	if int(k) < len(primitives) {
		return primitives[k]
	}
	return nil
}

func Bool() *Type   { return primitives[KindBool] }
func U8() *Type     { return primitives[KindU8] }
func S8() *Type     { return primitives[KindS8] }
func U16() *Type    { return primitives[KindU16] }
func S16() *Type    { return primitives[KindS16] }
func U32() *Type    { return primitives[KindU32] }
func S32() *Type    { return primitives[KindS32] }
func U64() *Type    { return primitives[KindU64] }
func S64() *Type    { return primitives[KindS64] }
func F32() *Type    { return primitives[KindF32] }
func F64() *Type    { return primitives[KindF64] }
func Char() *Type   { return primitives[KindChar] }
func String() *Type { return primitives[KindString] }

func List(elem *Type) *Type {
	return &Type{Kind: KindList, Elem: elem}
}

func Option(elem *Type) *Type {
	return &Type{Kind: KindOption, Elem: elem}
}

// Result builds result<ok, err>; either side may be nil.
func Result(ok, err *Type) *Type {
	return &Type{Kind: KindResult, OK: ok, Err: err}
}

func Tuple(elems ...*Type) *Type {
	return &Type{Kind: KindTuple, Elems: elems}
}

func Record(fields ...Field) *Type {
	return &Type{Kind: KindRecord, Fields: fields}
}

func Variant(cases ...Case) *Type {
	return &Type{Kind: KindVariant, Cases: cases}
}

func Enum(names ...string) *Type {
	cases := make([]Case, len(names))
	for i, n := range names {
		cases[i] = Case{Name: n}
	}
	return &Type{Kind: KindEnum, Cases: cases}
}

func Flags(names ...string) *Type {
	return &Type{Kind: KindFlags, Flags: names}
}

func Own(r *Resource) *Type {
	return &Type{Kind: KindOwn, Resource: r}
}

func Borrow(r *Resource) *Type {
	return &Type{Kind: KindBorrow, Resource: r}
}

// Named sets t's name and returns t. Shared primitives are copied first.
func Named(name string, t *Type) *Type {
	if t.isShared() {
		c := *t
		t = &c
	}
	t.Name = name
	return t
}

func (t *Type) isShared() bool {
	return Primitive(t.Kind) == t
}

// Children returns the directly referenced types, excluding handle targets.
func (t *Type) Children() []*Type {
	switch t.Kind {
	case KindList, KindOption:
		return []*Type{t.Elem}
	case KindRecord:
		out := make([]*Type, len(t.Fields))
		for i, f := range t.Fields {
			out[i] = f.Type
		}
		return out
	case KindTuple:
		return t.Elems
	case KindVariant:
		var out []*Type
		for _, c := range t.Cases {
			if c.Type != nil {
				out = append(out, c.Type)
			}
		}
		return out
	case KindResult:
		var out []*Type
		if t.OK != nil {
			out = append(out, t.OK)
		}
		if t.Err != nil {
			out = append(out, t.Err)
		}
		return out
	}
	return nil
}

// CaseCount returns the number of cases of a variant-like type.
func (t *Type) CaseCount() int {
	switch t.Kind {
	case KindVariant, KindEnum:
		return len(t.Cases)
	case KindOption, KindResult:
		return 2
	}
	return 0
}

// CaseName returns the name of case i of a variant-like type.
func (t *Type) CaseName(i int) string {
	switch t.Kind {
	case KindOption:
		if i == 0 {
			return "none"
		}
		return "some"
	case KindResult:
		if i == 0 {
			return "ok"
		}
		return "err"
	}
	return t.Cases[i].Name
}

// CaseType returns the payload type of case i, or nil.
func (t *Type) CaseType(i int) *Type {
	switch t.Kind {
	case KindVariant:
		return t.Cases[i].Type
	case KindOption:
		if i == 1 {
			return t.Elem
		}
		return nil
	case KindResult:
		if i == 0 {
			return t.OK
		}
		return t.Err
	}
	return nil
}

// CaseIndex returns the index of the named case, or -1.
func (t *Type) CaseIndex(name string) int {
	for i := 0; i < t.CaseCount(); i++ {
		if t.CaseName(i) == name {
			return i
		}
	}
	return -1
}

// Contains reports whether pred holds for t or any type reachable from it.
func (t *Type) Contains(pred func(*Type) bool) bool {
	if t == nil {
		return false
	}
	if pred(t) {
		return true
	}
	for _, c := range t.Children() {
		if c.Contains(pred) {
			return true
		}
	}
	return false
}

// String renders the type in WIT syntax. Named types render as their name.
func (t *Type) String() string {
	if t == nil {
		return "_"
	}
	if t.Name != "" {
		return t.Name
	}
	return t.Describe()
}

// Describe renders the structure of t even when it is named.
func (t *Type) Describe() string {
	if t.Kind.IsScalar() || t.Kind == KindString {
		return t.Kind.String()
	}

	var b strings.Builder
	switch t.Kind {
	case KindList:
		b.WriteString("list<")
		b.WriteString(t.Elem.String())
		b.WriteByte('>')
	case KindOption:
		b.WriteString("option<")
		b.WriteString(t.Elem.String())
		b.WriteByte('>')
	case KindResult:
		b.WriteString("result")
		if t.OK != nil || t.Err != nil {
			b.WriteByte('<')
			b.WriteString(t.OK.String())
			if t.Err != nil {
				b.WriteString(", ")
				b.WriteString(t.Err.String())
			}
			b.WriteByte('>')
		}
	case KindTuple:
		b.WriteString("tuple<")
		for i, e := range t.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.String())
		}
		b.WriteByte('>')
	case KindRecord:
		b.WriteString("record { ")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			b.WriteString(f.Type.String())
		}
		b.WriteString(" }")
	case KindVariant:
		b.WriteString("variant { ")
		for i, c := range t.Cases {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Name)
			if c.Type != nil {
				b.WriteByte('(')
				b.WriteString(c.Type.String())
				b.WriteByte(')')
			}
		}
		b.WriteString(" }")
	case KindEnum:
		b.WriteString("enum { ")
		for i, c := range t.Cases {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Name)
		}
		b.WriteString(" }")
	case KindFlags:
		b.WriteString("flags { ")
		b.WriteString(strings.Join(t.Flags, ", "))
		b.WriteString(" }")
	case KindOwn:
		b.WriteString("own<")
		b.WriteString(t.Resource.Name)
		b.WriteByte('>')
	case KindBorrow:
		b.WriteString("borrow<")
		b.WriteString(t.Resource.Name)
		b.WriteByte('>')
	}
	return b.String()
}
