package golang

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/abi"
	"github.com/wippyai/witbind/emit"
	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/model"
)

// funcState is the per-function rendering state kept in emit.Func.State.
type funcState struct {
	fn     *model.Function
	export bool
	params []string
	reads  map[abi.Reg]int

	// moves is set when the function lowers owned handles.
	moves bool
}

// fail returns the statement leaving the function with err.
func (s *funcState) fail(err string) string {
	if s.export && s.fn.Result != nil {
		return "return res, " + err
	}
	return "return " + err
}

func (s *funcState) read(r abi.Reg) bool { return s.reads[r] > 0 }

func countReads(blk *abi.Block, reads map[abi.Reg]int) {
	for _, in := range blk.Body {
		for _, r := range in.Src {
			reads[r]++
		}
		for _, sub := range in.Blocks {
			countReads(sub, reads)
			for _, r := range sub.Yield {
				reads[r]++
			}
		}
	}
}

func methodName(f *model.Function) string {
	name := funcName(f)
	if name == "Close" {
		return name + "_"
	}
	return name
}

// BeginFunc opens the Go function for p. Exports become Instance methods;
// imports become a stack adapter registered on the host module plus a
// method of the Imports interface.
func (b *Backend) BeginFunc(w *emit.Writer, p *abi.Plan) (*emit.Func, error) {
	f := p.Func
	if f == nil {
		return nil, errors.InvalidInput(errors.PhaseEmit, fmt.Sprintf("%s plan %s has no function", p.Kind, p.Name))
	}
	s := &funcState{fn: f, export: p.Kind == abi.PlanExport, reads: make(map[abi.Reg]int)}
	countReads(p.Body, s.reads)
	abi.Walk(p.Body, func(in *abi.Instr) {
		if in.Op == abi.OpHandleLower && in.Type.Kind == model.KindOwn {
			s.moves = true
		}
	})

	sig, names := b.signature(f)
	s.params = names
	name := methodName(f)

	if s.export {
		ret := "(err error)"
		if f.Result != nil {
			ret = fmt.Sprintf("(res %s, err error)", b.goType(f.Result))
		}
		w.Line("// %s calls the %q export.", name, p.Name)
		w.Open("func (i *Instance) %s(%s) %s {", name, sig, ret)
	} else {
		ret := "error"
		if f.Result != nil {
			ret = fmt.Sprintf("(%s, error)", b.goType(f.Result))
		}
		b.methods.Line("%s(%s) %s", name, sig, ret)
		b.stub(name, sig, f)

		adapter := "import" + name
		b.register(p.Name, valueTypes(p.Sig.Params), valueTypes(p.Sig.Results), func(w *emit.Writer) {
			w.Open("if err := inst.%s(ctx, stack); err != nil {", adapter)
			w.Line("panic(err)")
			w.Close("}")
		})
		w.Line("// %s serves the %q import from the core stack.", adapter, p.Name)
		w.Open("func (i *Instance) %s(ctx context.Context, stack []uint64) (err error) {", adapter)
	}
	if s.moves {
		w.Line("var tx transfer")
		w.Line("defer tx.rollback()")
	}
	return &emit.Func{Plan: p, W: w, State: s}, nil
}

func (b *Backend) stub(name, sig string, f *model.Function) {
	w := b.stubs
	if f.Result == nil {
		w.Open("func (StubImports) %s(%s) error {", name, sig)
		w.Line("return ErrNotImplemented")
	} else {
		w.Open("func (StubImports) %s(%s) (%s, error) {", name, sig, b.goType(f.Result))
		w.Line("var zero %s", b.goType(f.Result))
		w.Line("return zero, ErrNotImplemented")
	}
	w.Close("}")
	w.Blank()
}

func valueTypes(types []api.ValueType) string {
	if len(types) == 0 {
		return "nil"
	}
	parts := make([]string, len(types))
	for i, t := range types {
		switch t {
		case api.ValueTypeI64:
			parts[i] = "api.ValueTypeI64"
		case api.ValueTypeF32:
			parts[i] = "api.ValueTypeF32"
		case api.ValueTypeF64:
			parts[i] = "api.ValueTypeF64"
		default:
			parts[i] = "api.ValueTypeI32"
		}
	}
	return "[]api.ValueType{" + strings.Join(parts, ", ") + "}"
}

// EmitCall renders the boundary call.
func (b *Backend) EmitCall(f *emit.Func, call *abi.Instr) error {
	s := f.State.(*funcState)
	w := f.W
	if call.Op == abi.OpCallHost {
		args := append([]string{"ctx"}, regNames(call.Src)...)
		expr := fmt.Sprintf("i.imports.%s(%s)", methodName(call.Func), strings.Join(args, ", "))
		b.assign(s, w, call.Dst, expr, true)
		return nil
	}

	b.commit(s, w)
	args := []string{"ctx", fmt.Sprintf("%q", call.Name), fmt.Sprint(len(call.Dst))}
	args = append(args, regNames(call.Src)...)
	expr := fmt.Sprintf("i.call(%s)", strings.Join(args, ", "))

	used := call.PostReturn != ""
	for _, r := range call.Dst {
		used = used || s.read(r)
	}
	if !used {
		w.Open("if _, err := %s; err != nil {", expr)
		w.Line("%s", s.fail("err"))
		w.Close("}")
		return nil
	}
	w.Line("results, err := %s", expr)
	w.Open("if err != nil {")
	w.Line("%s", s.fail("err"))
	w.Close("}")
	for k, r := range call.Dst {
		if s.read(r) {
			w.Line("%s := results[%d]", r, k)
		}
	}
	return nil
}

// EmitPostReturn defers the post-return call so it runs after the result
// is lifted, including when lifting fails.
func (b *Backend) EmitPostReturn(f *emit.Func, call *abi.Instr) error {
	w := f.W
	w.Open("defer func() {")
	w.Open("if perr := i.postReturn(ctx, %q, results); perr != nil && err == nil {", call.PostReturn)
	w.Line("err = perr")
	w.Close("}")
	w.Close("}()")
	return nil
}

// EndFunc closes the function.
func (b *Backend) EndFunc(f *emit.Func) error {
	f.W.Close("}")
	f.W.Blank()
	return nil
}

func regNames(regs []abi.Reg) []string {
	out := make([]string, len(regs))
	for i, r := range regs {
		out[i] = r.String()
	}
	return out
}

// assign binds dst to expr. Fallible expressions return an error as their
// last value. Registers nothing reads are sunk so the file compiles.
func (b *Backend) assign(s *funcState, w *emit.Writer, dst []abi.Reg, expr string, fallible bool) {
	names := regNames(dst)
	switch {
	case !fallible && len(dst) == 0:
		w.Line("_ = %s", expr)
		return
	case !fallible:
		w.Line("%s := %s", strings.Join(names, ", "), expr)
	case len(dst) == 0:
		w.Open("if err := %s; err != nil {", expr)
		w.Line("%s", s.fail("err"))
		w.Close("}")
		return
	default:
		w.Line("%s, err := %s", strings.Join(names, ", "), expr)
		w.Open("if err != nil {")
		w.Line("%s", s.fail("err"))
		w.Close("}")
	}
	b.sink(s, w, dst...)
}

func (b *Backend) sink(s *funcState, w *emit.Writer, regs ...abi.Reg) {
	for _, r := range regs {
		if !s.read(r) {
			w.Line("_ = %s", r)
		}
	}
}
