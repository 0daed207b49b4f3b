// Package golang is the Go emission backend. It renders host-side bindings
// over wazero: typed Go declarations for the interface types, one method
// per export, an Imports interface served as host functions, and a handle
// table per resource.
package golang

import (
	"fmt"
	"go/format"
	"strings"

	"github.com/wippyai/witbind/emit"
	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/model"
)

// Target is the name the backend registers under.
const Target = "go"

func init() {
	emit.Register(Target, func() emit.Backend { return New() })
}

// Backend renders one interface into a single Go file.
type Backend struct {
	unit     *emit.Unit
	pkg      string
	names    *namer
	exported map[*model.Resource]bool

	fields        *emit.Writer
	registrations *emit.Writer
	closes        *emit.Writer
	methods       *emit.Writer
	stubs         *emit.Writer
}

// New returns a fresh backend.
func New() *Backend {
	return &Backend{
		names:         newNamer(),
		exported:      make(map[*model.Resource]bool),
		fields:        emit.NewWriter(),
		registrations: emit.NewWriter(),
		closes:        emit.NewWriter(),
		methods:       emit.NewWriter(),
		stubs:         emit.NewWriter(),
	}
}

func (b *Backend) Name() string { return Target }

// Begin names the types and records which resources live in the module.
func (b *Backend) Begin(u *emit.Unit) error {
	b.unit = u
	b.pkg = packageName(u)
	b.names.collect(u.Interface)
	for _, r := range u.Resources {
		b.exported[r.Resource] = r.Exported
	}
	b.fields.Indent()
	b.registrations.Indent()
	b.closes.Indent()
	b.methods.Indent()
	return nil
}

func packageName(u *emit.Unit) string {
	name := u.Config.Package
	if name == "" {
		name = u.Interface.Name
	}
	name = strings.ToLower(strings.Join(splitName(name), ""))
	if name == "" || name[0] < 'a' || name[0] > 'z' {
		name = "bindings"
	}
	return name
}

// End assembles the file and formats it.
func (b *Backend) End(u *emit.Unit) ([]emit.File, error) {
	w := emit.NewWriter()
	iface := u.Interface

	w.Line("// Code generated by witbind. DO NOT EDIT.")
	w.Blank()
	w.Line("// Package %s binds the %s interface.", b.pkg, iface.QualifiedName())
	w.Line("package %s", b.pkg)
	w.Blank()
	w.Open("import (")
	for _, imp := range b.imports() {
		w.Line("%q", imp)
	}
	w.Blank()
	w.Line(`"github.com/tetratelabs/wazero"`)
	w.Line(`"github.com/tetratelabs/wazero/api"`)
	w.Close(")")
	w.Raw(prelude)
	w.Blank()

	w.Line("// Instance is a module bound to the %s interface. Calls into one", iface.Name)
	w.Line("// instance must not overlap.")
	w.Open("type Instance struct {")
	w.Line("mod     api.Module")
	w.Line("mem     api.Memory")
	w.Line("allocFn api.Function")
	w.Line("realloc bool")
	w.Line("imports Imports")
	w.Blank()
	w.Line("mu    sync.Mutex")
	w.Line("funcs map[string]api.Function")
	w.Blank()
	w.Raw(b.fields.String())
	w.Close("}")
	w.Blank()

	w.Line("// Imports is implemented by the host for the functions the module imports.")
	w.Open("type Imports interface {")
	w.Raw(b.methods.String())
	w.Close("}")
	w.Blank()

	w.Line("// Instantiate registers the host module %q on r and instantiates wasm", iface.Name)
	w.Line("// against it.")
	w.Open("func Instantiate(ctx context.Context, r wazero.Runtime, wasm []byte, imports Imports) (*Instance, error) {")
	if len(u.Imports) > 0 {
		w.Open("if imports == nil {")
		w.Line(`return nil, errors.New("%s: imports are required")`, b.pkg)
		w.Close("}")
	}
	w.Line("inst := &Instance{imports: imports, funcs: make(map[string]api.Function)}")
	w.Line("host := r.NewHostModuleBuilder(%q)", iface.Name)
	w.Raw(b.registrations.String())
	w.Open("if _, err := host.Instantiate(ctx); err != nil {")
	w.Line("return nil, err")
	w.Close("}")
	w.Line("mod, err := r.Instantiate(ctx, wasm)")
	w.Open("if err != nil {")
	w.Line("return nil, err")
	w.Close("}")
	w.Line("inst.bind(mod)")
	w.Line("return inst, nil")
	w.Close("}")
	w.Blank()

	w.Line("// Close drops every live handle, running module destructors, then closes")
	w.Line("// the module.")
	w.Open("func (i *Instance) Close(ctx context.Context) error {")
	w.Line("var errs []error")
	w.Raw(b.closes.String())
	w.Line("errs = append(errs, i.mod.Close(ctx))")
	w.Line("return errors.Join(errs...)")
	w.Close("}")
	w.Blank()

	if u.Config.Stubs {
		w.Line("// ErrNotImplemented is returned by StubImports.")
		w.Line(`var ErrNotImplemented = errors.New("not implemented")`)
		w.Blank()
		w.Line("// StubImports implements Imports with functions that fail.")
		w.Line("type StubImports struct{}")
		w.Blank()
		w.Line("var _ Imports = StubImports{}")
		w.Blank()
		w.Raw(b.stubs.String())
	}

	w.Raw(u.W.String())

	src, err := format.Source(w.Bytes())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, "format generated source")
	}
	return []emit.File{{Path: b.pkg + ".go", Content: src}}, nil
}

func (b *Backend) imports() []string {
	out := []string{"context", "errors", "fmt", "math"}
	for _, r := range b.unit.Resources {
		if r.Exported {
			out = append(out, "runtime")
			break
		}
	}
	return append(out, "sync", "sync/atomic", "unicode/utf8")
}

// signature renders the Go parameters of f, with names, and returns the
// parameter names in order.
func (b *Backend) signature(f *model.Function) (string, []string) {
	parts := []string{"ctx context.Context"}
	names := make([]string, len(f.Params))
	seen := make(map[string]bool)
	for k, p := range f.Params {
		name := local(p.Name)
		for seen[name] {
			name += "_"
		}
		seen[name] = true
		names[k] = name
		parts = append(parts, fmt.Sprintf("%s %s", name, b.goType(p.Type)))
	}
	return strings.Join(parts, ", "), names
}
