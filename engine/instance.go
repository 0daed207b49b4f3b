package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/witbind/abi"
	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/layout"
	"github.com/wippyai/witbind/model"
	"github.com/wippyai/witbind/resource"
)

// HostFunc implements an interface import on the host. args and the result
// follow the host value conventions of package abi.
type HostFunc func(ctx context.Context, args []any) (any, error)

// InstanceConfig configures one instantiation.
type InstanceConfig struct {
	// Name is the wazero module name of the guest. Defaults to the
	// interface name with a "-guest" suffix.
	Name string

	// Imports implements interface imports, keyed by core import name.
	Imports map[string]HostFunc

	// ExportPrefix is prepended to every core export and import name.
	ExportPrefix string

	// Resources is the store backing resource handles. A fresh store is
	// used when nil.
	Resources *resource.Store
}

// Instance is a guest module bound to an interface.
//
// Calls into one instance must not overlap; the instance does not serialize
// them.
type Instance struct {
	iface   *model.Interface
	rt      wazero.Runtime
	mod     api.Module
	gen     *abi.Generator
	machine *abi.Machine
	store   *resource.Store
	imports map[string]HostFunc

	mu     sync.RWMutex
	funcs  map[string]api.Function
	closed atomic.Bool
}

// Instantiate compiles wasm and binds it to iface: the interface's imports
// and resource intrinsics are served by a host module named after the
// interface, and every export is checked against its core signature.
func (r *Runtime) Instantiate(ctx context.Context, wasm []byte, iface *model.Interface, cfg *InstanceConfig) (*Instance, error) {
	if cfg == nil {
		cfg = &InstanceConfig{}
	}
	store := cfg.Resources
	if store == nil {
		store = resource.NewStore()
	}

	inst := &Instance{
		iface:   iface,
		rt:      r.newWazero(ctx),
		gen:     abi.NewGenerator(layout.New(), abi.WithExportPrefix(cfg.ExportPrefix)),
		store:   store,
		imports: cfg.Imports,
		funcs:   make(map[string]api.Function),
	}

	mod, err := inst.instantiate(ctx, wasm, cfg)
	if err != nil {
		_ = inst.rt.Close(ctx)
		return nil, err
	}
	inst.mod = mod

	env := abi.Env{
		Allocator: newAllocator(mod),
		Resources: store,
		Callee:    inst,
	}
	if mem := mod.Memory(); mem != nil {
		env.Memory = &Memory{mem: mem}
	}
	inst.machine = abi.NewMachine(env)

	if err := inst.checkExports(); err != nil {
		_ = inst.rt.Close(ctx)
		return nil, err
	}

	Logger().Debug("instantiated",
		zap.String("interface", iface.QualifiedName()),
		zap.String("module", mod.Name()),
		zap.Int("exports", len(iface.Exports())),
		zap.Int("imports", len(iface.Imports())))
	return inst, nil
}

func (i *Instance) instantiate(ctx context.Context, wasm []byte, cfg *InstanceConfig) (api.Module, error) {
	compiled, err := i.rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	if err := i.checkImports(compiled); err != nil {
		return nil, err
	}

	for _, res := range i.iface.Resources() {
		i.store.Define(res.Name, i.destructor(res))
	}
	if err := i.buildHostModule(ctx); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = i.iface.Name + "-guest"
	}
	mod, err := i.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return mod, nil
}

// checkImports verifies that everything the guest imports from the
// interface module is declared, implemented and typed as declared.
func (i *Instance) checkImports(compiled wazero.CompiledModule) error {
	for _, def := range compiled.ImportedFunctions() {
		modName, name, _ := def.Import()
		if modName != i.iface.Name {
			continue
		}
		if kind, res := parseIntrinsic(name); kind != intrinsicNone {
			if i.iface.Resource(res) == nil {
				return errors.Load(fmt.Sprintf("import %q: unknown resource %q", name, res), nil)
			}
			continue
		}

		key := i.stripPrefix(name)
		f := i.iface.Import(key)
		if f == nil {
			return errors.Load(fmt.Sprintf("import %q is not declared by %s", name, i.iface.QualifiedName()), nil)
		}
		if _, ok := i.imports[key]; !ok {
			return errors.Load(fmt.Sprintf("import %q has no host implementation", name), nil)
		}
		sig := i.gen.Import(f).Sig
		if !slices.Equal(def.ParamTypes(), sig.Params) || !slices.Equal(def.ResultTypes(), sig.Results) {
			return errors.Load(fmt.Sprintf("import %q: module expects %s, interface lowers to %s",
				name, sigString(def.ParamTypes(), def.ResultTypes()), sigString(sig.Params, sig.Results)), nil)
		}
	}
	return nil
}

func (i *Instance) stripPrefix(name string) string {
	for _, f := range i.iface.Imports() {
		if i.gen.CoreName(f) == name {
			return f.ExportName("")
		}
	}
	return name
}

// checkExports verifies the core signature of every export the guest
// provides and the presence of the post-return exports their results need.
// Exports the guest lacks fail when called.
func (i *Instance) checkExports() error {
	for _, f := range i.iface.Exports() {
		plan := i.gen.Export(f)
		fn := i.mod.ExportedFunction(plan.Name)
		if fn == nil {
			Logger().Debug("export not provided", zap.String("export", plan.Name))
			continue
		}
		def := fn.Definition()
		if !slices.Equal(def.ParamTypes(), plan.Sig.Params) || !slices.Equal(def.ResultTypes(), plan.Sig.Results) {
			return errors.Load(fmt.Sprintf("export %q: module provides %s, interface lowers to %s",
				plan.Name, sigString(def.ParamTypes(), def.ResultTypes()), sigString(plan.Sig.Params, plan.Sig.Results)), nil)
		}
		if plan.PostReturn != "" && i.mod.ExportedFunction(plan.PostReturn) == nil {
			return errors.Load(fmt.Sprintf("export %q returns module memory but %q is missing", plan.Name, plan.PostReturn), nil)
		}
	}
	return nil
}

func sigString(params, results []api.ValueType) string {
	s := "("
	for n, p := range params {
		if n > 0 {
			s += ", "
		}
		s += api.ValueTypeName(p)
	}
	s += ") -> ("
	for n, r := range results {
		if n > 0 {
			s += ", "
		}
		s += api.ValueTypeName(r)
	}
	return s + ")"
}

// destructor returns the table destructor for res. Resources whose
// representation lives in the guest are released through its [dtor]
// export; host resources fall back to the default destructor.
func (i *Instance) destructor(res *model.Resource) resource.Destructor {
	return func(v any) error {
		fn := i.export(res.DtorExport())
		rep, isRep := v.(uint32)
		if fn == nil || !isRep {
			if d, ok := v.(resource.Dropper); ok {
				d.Drop()
			}
			return nil
		}
		_, err := fn.Call(context.Background(), uint64(rep))
		return err
	}
}

// Call invokes an export by name with host argument values. Methods and
// constructors use their core names, e.g. "[method]counter.get".
func (i *Instance) Call(ctx context.Context, name string, args ...any) (any, error) {
	f := i.iface.Export(name)
	if f == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	return i.CallFunc(ctx, f, args...)
}

// CallFunc invokes an export of the bound interface.
func (i *Instance) CallFunc(ctx context.Context, f *model.Function, args ...any) (any, error) {
	if i.closed.Load() {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "instance is closed")
	}
	results, err := i.machine.Run(ctx, i.gen.Export(f), args...)
	if err != nil {
		Logger().Debug("call failed", zap.String("export", f.ExportName("")), zap.Error(err))
		return nil, err
	}
	if f.Result == nil {
		return nil, nil
	}
	return results[0], nil
}

// CallWasm calls a core export. It implements abi.Callee.
func (i *Instance) CallWasm(ctx context.Context, name string, args []uint64) ([]uint64, error) {
	fn := i.export(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "core export", name)
	}
	return fn.Call(ctx, args...)
}

// CallHost runs the host implementation of an import. It implements
// abi.Callee.
func (i *Instance) CallHost(ctx context.Context, f *model.Function, args []any) (any, error) {
	impl, ok := i.imports[f.ExportName("")]
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "host import", f.ExportName(""))
	}
	return impl(ctx, args)
}

func (i *Instance) export(name string) api.Function {
	i.mu.RLock()
	fn, ok := i.funcs[name]
	i.mu.RUnlock()
	if ok {
		return fn
	}
	if i.mod == nil {
		return nil
	}
	fn = i.mod.ExportedFunction(name)
	if fn != nil {
		i.mu.Lock()
		i.funcs[name] = fn
		i.mu.Unlock()
	}
	return fn
}

// Interface returns the bound interface.
func (i *Instance) Interface() *model.Interface { return i.iface }

// Resources returns the store backing resource handles.
func (i *Instance) Resources() *resource.Store { return i.store }

// Table returns the table of a resource.
func (i *Instance) Table(name string) *resource.Table { return i.store.Table(name) }

// Generator returns the plan generator the instance runs.
func (i *Instance) Generator() *abi.Generator { return i.gen }

// Module returns the wazero module of the guest.
func (i *Instance) Module() api.Module { return i.mod }

// Close drops every live resource, running guest destructors while the
// module is still alive, then closes the module.
func (i *Instance) Close(ctx context.Context) error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := i.store.Close()
	err = multierr.Append(err, i.rt.Close(ctx))
	return err
}
