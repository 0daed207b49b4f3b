package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/model"
	"github.com/wippyai/witbind/resource"
)

var (
	i32  = []api.ValueType{api.ValueTypeI32}
	none = []api.ValueType{}
)

// buildHostModule instantiates the module named after the interface. It
// exports the resource intrinsics of every declared resource and every
// import that has a host implementation.
func (i *Instance) buildHostModule(ctx context.Context) error {
	b := i.rt.NewHostModuleBuilder(i.iface.Name)

	for _, res := range i.iface.Resources() {
		tbl := i.store.Table(res.Name)
		b.NewFunctionBuilder().
			WithGoModuleFunction(resourceNew(tbl), i32, i32).
			WithName(res.NewImport()).
			Export(res.NewImport())
		b.NewFunctionBuilder().
			WithGoModuleFunction(resourceRep(tbl), i32, i32).
			WithName(res.RepImport()).
			Export(res.RepImport())
		b.NewFunctionBuilder().
			WithGoModuleFunction(resourceDrop(tbl), i32, none).
			WithName(res.DropImport()).
			Export(res.DropImport())
	}

	for _, f := range i.iface.Imports() {
		if _, ok := i.imports[f.ExportName("")]; !ok {
			continue
		}
		plan := i.gen.Import(f)
		b.NewFunctionBuilder().
			WithGoModuleFunction(i.importFunc(f), plan.Sig.Params, plan.Sig.Results).
			WithName(plan.Name).
			Export(plan.Name)
	}

	if _, err := b.Instantiate(ctx); err != nil {
		return errors.Instantiation(err)
	}
	return nil
}

// resourceNew registers a module representation and returns its handle.
func resourceNew(tbl *resource.Table) api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, stack []uint64) {
		h, err := tbl.Insert(api.DecodeU32(stack[0]))
		if err != nil {
			panic(err)
		}
		stack[0] = api.EncodeU32(uint32(h))
	}
}

// resourceRep resolves a handle to the representation the module
// registered for it.
func resourceRep(tbl *resource.Table) api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, stack []uint64) {
		h := resource.Handle(api.DecodeU32(stack[0]))
		v, err := tbl.Get(h)
		if err != nil {
			panic(err)
		}
		rep, ok := v.(uint32)
		if !ok {
			panic(errors.InvalidHandle(tbl.Name(), uint32(h), fmt.Sprintf("entry holds %T, not a module representation", v)))
		}
		stack[0] = api.EncodeU32(rep)
	}
}

func resourceDrop(tbl *resource.Table) api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, stack []uint64) {
		if err := tbl.Drop(resource.Handle(api.DecodeU32(stack[0]))); err != nil {
			panic(err)
		}
	}
}

// importFunc runs the import plan of f. Errors surface as a trap of the
// export call that reached the import.
func (i *Instance) importFunc(f *model.Function) api.GoModuleFunc {
	plan := i.gen.Import(f)
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		if i.machine == nil {
			panic(errors.InvalidInput(errors.PhaseRuntime, "import "+plan.Name+" called during instantiation"))
		}
		args := make([]any, plan.Args)
		for n := range args {
			args[n] = stack[n]
		}
		results, err := i.machine.Run(ctx, plan, args...)
		if err != nil {
			panic(err)
		}
		for n, r := range results {
			stack[n] = r.(uint64)
		}
	}
}
