package golang

import (
	"go/token"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wippyai/witbind/model"
)

var title = cases.Title(language.Und, cases.NoLower)

// exported turns a kebab-case interface name into an exported Go
// identifier: "http-request" becomes "HttpRequest".
func exported(name string) string {
	var b strings.Builder
	for _, part := range splitName(name) {
		b.WriteString(title.String(part))
	}
	if b.Len() == 0 {
		return "X"
	}
	s := b.String()
	if s[0] >= '0' && s[0] <= '9' {
		return "X" + s
	}
	return s
}

// local turns name into an unexported identifier that cannot clash with
// keywords or the names generated functions use.
func local(name string) string {
	parts := splitName(name)
	var b strings.Builder
	for i, part := range parts {
		if i == 0 {
			b.WriteString(strings.ToLower(part))
			continue
		}
		b.WriteString(title.String(part))
	}
	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "p" + s
	}
	if token.IsKeyword(s) || reserved[s] || isReg(s) {
		s += "_"
	}
	return s
}

// reserved are the locals, packages and helpers generated bodies refer to.
var reserved = map[string]bool{
	"ctx": true, "i": true, "err": true, "res": true, "results": true,
	"stack": true, "ok": true, "k": true, "perr": true, "inst": true,
	"tx": true,

	"api": true, "atomic": true, "context": true, "errors": true, "fmt": true,
	"math": true, "runtime": true, "sync": true, "utf8": true, "wazero": true,

	"lowerBool": true, "lowerF32": true, "lowerF64": true, "lowerChar": true,
	"liftChar": true, "validChar": true, "dropValue": true, "flatI32": true,
	"move": true, "transfer": true, "handleRef": true, "handleTable": true,
	"handleSlot": true,
}

func isReg(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func splitName(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.' || r == '/' || r == ':'
	})
}

// funcName is the Go method name of a function.
func funcName(f *model.Function) string {
	switch f.Kind {
	case model.FuncConstructor:
		return "New" + exported(f.Resource.Name)
	case model.FuncMethod, model.FuncStatic:
		return exported(f.Resource.Name) + exported(f.Name)
	}
	return exported(f.Name)
}

// namer assigns Go names to the types that need a declaration. Unnamed
// records, variants, enums and flags are named after where they first
// appear.
type namer struct {
	names map[*model.Type]string
	used  map[string]bool
}

// fixed are the package-level names every generated file declares.
var fixed = []string{
	"Instance", "Imports", "Instantiate", "Result", "StubImports",
	"ErrNotImplemented", "ErrInvalidHandle", "ErrInvalidCase",
	"ErrInvalidDiscriminant", "ErrInvalidUTF8", "ErrInvalidChar",
	"ErrOutOfBounds", "ErrAllocation",
}

func newNamer() *namer {
	n := &namer{names: make(map[*model.Type]string), used: make(map[string]bool)}
	for _, name := range fixed {
		n.used[name] = true
	}
	return n
}

func (n *namer) collect(iface *model.Interface) {
	for _, r := range iface.Resources() {
		n.used[exported(r.Name)] = true
	}
	for _, t := range iface.Types() {
		if t.Name != "" {
			n.assign(t, exported(t.Name))
		}
	}
	for _, t := range iface.Types() {
		if t.Name != "" {
			n.walk(t, t.Name)
		}
	}
	funcs := append(append([]*model.Function{}, iface.Exports()...), iface.Imports()...)
	for _, f := range funcs {
		base := f.Name
		if f.Resource != nil {
			base = f.Resource.Name + "-" + f.Name
		}
		for _, p := range f.Params {
			n.walk(p.Type, base+"-"+p.Name)
		}
		if f.Result != nil {
			n.walk(f.Result, base+"-result")
		}
	}
}

func (n *namer) assign(t *model.Type, name string) {
	if _, ok := n.names[t]; ok {
		return
	}
	unique := name
	for i := 2; n.used[unique]; i++ {
		unique = name + strconv.Itoa(i)
	}
	n.used[unique] = true
	n.names[t] = unique
}

func (n *namer) walk(t *model.Type, hint string) {
	if t == nil {
		return
	}
	if t.Name == "" && t.Kind.NeedsName() {
		n.assign(t, exported(hint))
	}
	if t.Name != "" {
		hint = t.Name
	}
	switch t.Kind {
	case model.KindRecord:
		for _, f := range t.Fields {
			n.walk(f.Type, hint+"-"+f.Name)
		}
	case model.KindVariant:
		for _, c := range t.Cases {
			n.walk(c.Type, hint+"-"+c.Name)
		}
	case model.KindTuple:
		for i, e := range t.Elems {
			n.walk(e, hint+"-"+strconv.Itoa(i))
		}
	case model.KindList, model.KindOption:
		n.walk(t.Elem, hint+"-item")
	case model.KindResult:
		n.walk(t.OK, hint+"-ok")
		n.walk(t.Err, hint+"-err")
	}
}

// name returns the declared Go name of t, or "".
func (n *namer) name(t *model.Type) string { return n.names[t] }
