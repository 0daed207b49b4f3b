package model

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/coreos/go-semver/semver"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/witbind/errors"
)

// Document is the JSON form of an interface description.
type Document struct {
	Name      string        `json:"name"`
	Version   string        `json:"version,omitempty"`
	Resources []string      `json:"resources,omitempty"`
	Types     []TypeDoc     `json:"types,omitempty"`
	Exports   []FunctionDoc `json:"exports,omitempty"`
	Imports   []FunctionDoc `json:"imports,omitempty"`
}

// TypeDoc declares one named type. Exactly one of the shape fields is set;
// Type holds a type expression for aliases of lists, tuples and the like.
type TypeDoc struct {
	Name    string     `json:"name"`
	Type    string     `json:"type,omitempty"`
	Record  []FieldDoc `json:"record,omitempty"`
	Variant []FieldDoc `json:"variant,omitempty"`
	Enum    []string   `json:"enum,omitempty"`
	Flags   []string   `json:"flags,omitempty"`
}

// FieldDoc is a record field, variant case or function parameter.
type FieldDoc struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type FunctionDoc struct {
	Name     string     `json:"name"`
	Kind     string     `json:"kind,omitempty"`
	Resource string     `json:"resource,omitempty"`
	Params   []FieldDoc `json:"params,omitempty"`
	Result   string     `json:"result,omitempty"`
}

// LoadDocument decodes a JSON interface document and builds the interface.
func LoadDocument(r io.Reader) (*Interface, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.ParseFailed("interface document", err)
	}
	return doc.Build()
}

// Build registers every declaration of d into a new interface.
func (d *Document) Build() (*Interface, error) {
	if d.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseParse, "interface document has no name")
	}
	iface := NewInterface(d.Name)
	if d.Version != "" {
		v, err := semver.NewVersion(d.Version)
		if err != nil {
			return nil, errors.ParseFailed("interface version", err)
		}
		iface.Version = v.String()
	}

	for _, name := range d.Resources {
		if _, err := iface.AddResource(name); err != nil {
			return nil, err
		}
	}

	p := &exprParser{iface: iface}
	for _, td := range d.Types {
		t, err := p.typeDoc(td)
		if err != nil {
			return nil, err
		}
		if _, err := iface.AddType(td.Name, t); err != nil {
			return nil, err
		}
	}

	for _, fd := range d.Exports {
		f, err := p.function(fd)
		if err != nil {
			return nil, err
		}
		if err := iface.AddExport(f); err != nil {
			return nil, err
		}
	}
	for _, fd := range d.Imports {
		f, err := p.function(fd)
		if err != nil {
			return nil, err
		}
		if err := iface.AddImport(f); err != nil {
			return nil, err
		}
	}
	return iface, nil
}

// ParseType parses a type expression such as "result<list<u8>, string>",
// resolving named types and resources in iface.
func ParseType(iface *Interface, expr string) (*Type, error) {
	p := &exprParser{iface: iface}
	return p.parse(expr)
}

type exprParser struct {
	iface *Interface
	toks  []string
	pos   int
}

func (p *exprParser) typeDoc(td TypeDoc) (*Type, error) {
	shapes := 0
	for _, set := range []bool{td.Type != "", td.Record != nil, td.Variant != nil, td.Enum != nil, td.Flags != nil} {
		if set {
			shapes++
		}
	}
	if shapes != 1 {
		return nil, errors.InvalidInput(errors.PhaseParse,
			fmt.Sprintf("type %q must declare exactly one of type, record, variant, enum, flags", td.Name))
	}

	switch {
	case td.Record != nil:
		fields := make([]Field, len(td.Record))
		for i, f := range td.Record {
			ft, err := p.parse(f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: f.Name, Type: ft}
		}
		return Record(fields...), nil
	case td.Variant != nil:
		cases := make([]Case, len(td.Variant))
		for i, c := range td.Variant {
			cases[i] = Case{Name: c.Name}
			if c.Type == "" {
				continue
			}
			ct, err := p.parse(c.Type)
			if err != nil {
				return nil, err
			}
			cases[i].Type = ct
		}
		return Variant(cases...), nil
	case td.Enum != nil:
		return Enum(td.Enum...), nil
	case td.Flags != nil:
		return Flags(td.Flags...), nil
	}

	t, err := p.parse(td.Type)
	if err != nil {
		return nil, err
	}
	if p.iface.Type(td.Type) == t || t.isShared() {
		// aliases of named or primitive types get their own node
		c := *t
		c.Name = ""
		t = &c
	}
	return t, nil
}

func (p *exprParser) function(fd FunctionDoc) (*Function, error) {
	f := &Function{Name: fd.Name}
	switch fd.Kind {
	case "", "freestanding":
		f.Kind = FuncFreestanding
	case "method":
		f.Kind = FuncMethod
	case "static":
		f.Kind = FuncStatic
	case "constructor":
		f.Kind = FuncConstructor
	default:
		return nil, errors.InvalidInput(errors.PhaseParse,
			fmt.Sprintf("function %q has unknown kind %q", fd.Name, fd.Kind))
	}
	if fd.Resource != "" {
		f.Resource = p.iface.Resource(fd.Resource)
		if f.Resource == nil {
			return nil, errors.NotFound(errors.PhaseParse, "resource", fd.Resource)
		}
	}

	for _, pd := range fd.Params {
		t, err := p.parse(pd.Type)
		if err != nil {
			return nil, err
		}
		f.Params = append(f.Params, Param{Name: pd.Name, Type: t})
	}
	if fd.Result != "" {
		t, err := p.parse(fd.Result)
		if err != nil {
			return nil, err
		}
		f.Result = t
	}
	return f, nil
}

func (p *exprParser) parse(expr string) (*Type, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p.toks, p.pos = toks, 0
	t, err := p.expr()
	if err != nil {
		return nil, errors.ParseFailed(fmt.Sprintf("type %q", expr), err)
	}
	if p.pos != len(p.toks) {
		return nil, errors.ParseFailed(fmt.Sprintf("type %q", expr),
			fmt.Errorf("unexpected %q", p.toks[p.pos]))
	}
	return t, nil
}

func (p *exprParser) next() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	tok := p.toks[p.pos]
	p.pos++
	return tok
}

func (p *exprParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *exprParser) expect(tok string) error {
	if got := p.next(); got != tok {
		return fmt.Errorf("expected %q, got %q", tok, got)
	}
	return nil
}

// args parses "<T, U, ...>" allowing "_" for absent types.
func (p *exprParser) args() ([]*Type, error) {
	if err := p.expect("<"); err != nil {
		return nil, err
	}
	var out []*Type
	for {
		if p.peek() == "_" {
			p.next()
			out = append(out, nil)
		} else {
			t, err := p.expr()
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		switch tok := p.next(); tok {
		case ",":
			continue
		case ">":
			return out, nil
		default:
			return nil, fmt.Errorf("expected \",\" or \">\", got %q", tok)
		}
	}
}

func (p *exprParser) expr() (*Type, error) {
	name := p.next()
	if name == "" {
		return nil, fmt.Errorf("unexpected end of type")
	}

	switch name {
	case "list", "option", "own", "borrow":
		if name == "own" || name == "borrow" {
			if err := p.expect("<"); err != nil {
				return nil, err
			}
			rn := p.next()
			if err := p.expect(">"); err != nil {
				return nil, err
			}
			r := p.iface.Resource(rn)
			if r == nil {
				return nil, errors.NotFound(errors.PhaseParse, "resource", rn)
			}
			if name == "own" {
				return Own(r), nil
			}
			return Borrow(r), nil
		}
		args, err := p.args()
		if err != nil {
			return nil, err
		}
		if len(args) != 1 || args[0] == nil {
			return nil, fmt.Errorf("%s takes one type argument", name)
		}
		if name == "list" {
			return List(args[0]), nil
		}
		return Option(args[0]), nil

	case "result":
		if p.peek() != "<" {
			return Result(nil, nil), nil
		}
		args, err := p.args()
		if err != nil {
			return nil, err
		}
		switch len(args) {
		case 1:
			return Result(args[0], nil), nil
		case 2:
			return Result(args[0], args[1]), nil
		}
		return nil, fmt.Errorf("result takes at most two type arguments")

	case "tuple":
		args, err := p.args()
		if err != nil {
			return nil, err
		}
		for _, a := range args {
			if a == nil {
				return nil, fmt.Errorf("tuple elements cannot be absent")
			}
		}
		return Tuple(args...), nil
	}

	if t := p.iface.Type(name); t != nil {
		return t, nil
	}
	wt, err := wit.ParseType(name)
	if err != nil {
		return nil, errors.NotFound(errors.PhaseParse, "type", name)
	}
	return FromWIT(p.iface, wt)
}

func tokenize(s string) ([]string, error) {
	var toks []string
	for i := 0; i < len(s); {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case strings.ContainsRune("<>,", c):
			toks = append(toks, string(c))
			i++
		case c == '_' || c == '-' || c == '%' || unicode.IsLetter(c) || unicode.IsDigit(c):
			j := i
			for j < len(s) {
				r := rune(s[j])
				if r == '_' || r == '-' || r == '%' || unicode.IsLetter(r) || unicode.IsDigit(r) {
					j++
					continue
				}
				break
			}
			toks = append(toks, s[i:j])
			i = j
		default:
			return nil, errors.ParseFailed(fmt.Sprintf("type %q", s),
				fmt.Errorf("unexpected character %q", c))
		}
	}
	return toks, nil
}
