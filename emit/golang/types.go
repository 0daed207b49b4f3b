package golang

import (
	"fmt"
	"strings"

	"github.com/wippyai/witbind/emit"
	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/model"
)

var scalarTypes = map[model.Kind]string{
	model.KindBool:   "bool",
	model.KindU8:     "uint8",
	model.KindS8:     "int8",
	model.KindU16:    "uint16",
	model.KindS16:    "int16",
	model.KindU32:    "uint32",
	model.KindS32:    "int32",
	model.KindU64:    "uint64",
	model.KindS64:    "int64",
	model.KindF32:    "float32",
	model.KindF64:    "float64",
	model.KindChar:   "rune",
	model.KindString: "string",
}

// goType returns the Go type expression of t.
func (b *Backend) goType(t *model.Type) string {
	if t == nil {
		return "struct{}"
	}
	if name := b.names.name(t); name != "" {
		return name
	}
	return b.structure(t)
}

// structure spells t without using its own declared name.
func (b *Backend) structure(t *model.Type) string {
	if s, ok := scalarTypes[t.Kind]; ok {
		return s
	}
	switch t.Kind {
	case model.KindList:
		if t.Elem.Kind == model.KindU8 {
			return "[]byte"
		}
		return "[]" + b.goType(t.Elem)
	case model.KindOption:
		return "*" + b.goType(t.Elem)
	case model.KindResult:
		return fmt.Sprintf("Result[%s, %s]", b.goType(t.OK), b.goType(t.Err))
	case model.KindTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = fmt.Sprintf("F%d %s", i, b.goType(e))
		}
		return "struct{ " + strings.Join(parts, "; ") + " }"
	case model.KindOwn, model.KindBorrow:
		if b.exported[t.Resource] {
			return "*" + exported(t.Resource.Name)
		}
		return "any"
	case model.KindFlags:
		if n := len(t.Flags); n > 64 {
			return fmt.Sprintf("[%d]uint32", (n+31)/32)
		}
		return flagsWord(len(t.Flags))
	case model.KindEnum:
		return discWord(len(t.Cases))
	}
	return "any"
}

func flagsWord(n int) string {
	switch {
	case n <= 8:
		return "uint8"
	case n <= 16:
		return "uint16"
	case n <= 32:
		return "uint32"
	}
	return "uint64"
}

func discWord(cases int) string {
	switch {
	case cases <= 1<<8:
		return "uint8"
	case cases <= 1<<16:
		return "uint16"
	}
	return "uint32"
}

// EmitType declares t when it has a Go name.
func (b *Backend) EmitType(w *emit.Writer, t *model.Type) error {
	name := b.names.name(t)
	if name == "" {
		return nil
	}
	switch t.Kind {
	case model.KindRecord:
		b.record(w, t, name)
	case model.KindVariant:
		b.variant(w, t, name)
	case model.KindEnum:
		b.enum(w, t, name)
	case model.KindFlags:
		b.flags(w, t, name)
	default:
		if t.Kind.NeedsName() {
			return errors.Unsupported(errors.PhaseEmit, t.Kind.String())
		}
		w.Line("// %s is %s.", name, t.Describe())
		w.Line("type %s = %s", name, b.structure(t))
		w.Blank()
	}
	return nil
}

func (b *Backend) record(w *emit.Writer, t *model.Type, name string) {
	w.Line("// %s is the %s record.", name, label(t, name))
	w.Open("type %s struct {", name)
	for _, f := range t.Fields {
		w.Line("%s %s", exported(f.Name), b.goType(f.Type))
	}
	w.Close("}")
	w.Blank()
}

// variant renders a tagged struct, its tag constants and one constructor
// per case.
func (b *Backend) variant(w *emit.Writer, t *model.Type, name string) {
	w.Line("// %s is the %s variant. Payload holds the value of the case", name, label(t, name))
	w.Line("// selected by Tag; build values with the New%s functions.", name)
	w.Open("type %s struct {", name)
	w.Line("Tag     %sTag", name)
	w.Line("Payload any")
	w.Close("}")
	w.Blank()

	w.Line("// %sTag selects a case of %s.", name, name)
	w.Line("type %sTag %s", name, discWord(len(t.Cases)))
	w.Blank()
	w.Open("const (")
	for i, c := range t.Cases {
		if i == 0 {
			w.Line("%s %sTag = iota", caseConst(name, c.Name), name)
		} else {
			w.Line("%s", caseConst(name, c.Name))
		}
	}
	w.Close(")")
	w.Blank()

	for _, c := range t.Cases {
		cn := caseConst(name, c.Name)
		if c.Type == nil {
			w.Open("func New%s() %s {", cn, name)
			w.Line("return %s{Tag: %s}", name, cn)
		} else {
			w.Open("func New%s(v %s) %s {", cn, b.goType(c.Type), name)
			w.Line("return %s{Tag: %s, Payload: v}", name, cn)
		}
		w.Close("}")
		w.Blank()
	}
}

func (b *Backend) enum(w *emit.Writer, t *model.Type, name string) {
	w.Line("// %s is the %s enum.", name, label(t, name))
	w.Line("type %s %s", name, discWord(len(t.Cases)))
	w.Blank()
	w.Open("const (")
	for i, c := range t.Cases {
		if i == 0 {
			w.Line("%s %s = iota", caseConst(name, c.Name), name)
		} else {
			w.Line("%s", caseConst(name, c.Name))
		}
	}
	w.Close(")")
	w.Blank()

	quoted := make([]string, len(t.Cases))
	for i, c := range t.Cases {
		quoted[i] = fmt.Sprintf("%q", c.Name)
	}
	w.Open("func (e %s) String() string {", name)
	w.Line("names := [...]string{%s}", strings.Join(quoted, ", "))
	w.Open("if int(e) < len(names) {")
	w.Line("return names[e]")
	w.Close("}")
	w.Line(`return fmt.Sprintf("%s(%%d)", e)`, name)
	w.Close("}")
	w.Blank()
}

func (b *Backend) flags(w *emit.Writer, t *model.Type, name string) {
	w.Line("// %s is the %s flag set.", name, label(t, name))
	w.Line("type %s %s", name, b.structure(t))
	w.Blank()
	if len(t.Flags) == 0 {
		return
	}
	w.Open("const (")
	if len(t.Flags) <= 64 {
		for i, f := range t.Flags {
			if i == 0 {
				w.Line("%s %s = 1 << iota", caseConst(name, f), name)
			} else {
				w.Line("%s", caseConst(name, f))
			}
		}
	} else {
		// wide sets are arrays; the constants are bit indices
		for i, f := range t.Flags {
			if i == 0 {
				w.Line("%s = iota", caseConst(name, f))
			} else {
				w.Line("%s", caseConst(name, f))
			}
		}
	}
	w.Close(")")
	w.Blank()
}

func caseConst(typeName, caseName string) string {
	return typeName + exported(caseName)
}

func label(t *model.Type, name string) string {
	if t.Name != "" {
		return t.Name
	}
	return name
}
