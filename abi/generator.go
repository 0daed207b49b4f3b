package abi

import (
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/layout"
	"github.com/wippyai/witbind/model"
)

// Generator builds lowering and lifting plans. Plans are memoized per
// type or function; a Generator is safe for concurrent use.
type Generator struct {
	layouts *layout.Engine
	prefix  string

	mu    sync.Mutex
	plans map[planKey]*Plan
}

type planKey struct {
	kind PlanKind
	typ  *model.Type
	fn   *model.Function
}

// Option configures a Generator.
type Option func(*Generator)

// WithExportPrefix prepends prefix to every core export and import name.
func WithExportPrefix(prefix string) Option {
	return func(g *Generator) { g.prefix = prefix }
}

// NewGenerator creates a generator over a layout engine.
func NewGenerator(layouts *layout.Engine, opts ...Option) *Generator {
	g := &Generator{layouts: layouts, plans: make(map[planKey]*Plan)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Layouts returns the layout engine plans are built from.
func (g *Generator) Layouts() *layout.Engine { return g.layouts }

// CoreName returns the core export or import name of f.
func (g *Generator) CoreName(f *model.Function) string {
	return f.ExportName(g.prefix)
}

func (g *Generator) memo(key planKey, build func() *Plan) *Plan {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.plans[key]; ok {
		return p
	}
	p := build()
	g.plans[key] = p
	return p
}

// Lower builds the plan flattening a host value of t.
func (g *Generator) Lower(t *model.Type) *Plan {
	return g.memo(planKey{kind: PlanLower, typ: t}, func() *Plan {
		b := g.newBuilder()
		v := b.arg(0)
		flats := b.lowerFlat(t, v)
		b.ret(flats...)
		return b.plan(PlanLower, t.String(), t, nil, 1)
	})
}

// Lift builds the plan reconstructing a host value of t from its flats.
func (g *Generator) Lift(t *model.Type) *Plan {
	return g.memo(planKey{kind: PlanLift, typ: t}, func() *Plan {
		b := g.newBuilder()
		n := len(g.layouts.Of(t).Flat)
		flats := make([]Reg, n)
		for i := range flats {
			flats[i] = b.arg(i)
		}
		b.ret(b.liftFlat(t, flats))
		return b.plan(PlanLift, t.String(), t, nil, n)
	})
}

// Store builds the plan writing a host value of t at an address.
func (g *Generator) Store(t *model.Type) *Plan {
	return g.memo(planKey{kind: PlanStore, typ: t}, func() *Plan {
		b := g.newBuilder()
		v := b.arg(0)
		addr := b.arg(1)
		b.lowerMem(t, v, addr, 0)
		b.ret()
		return b.plan(PlanStore, t.String(), t, nil, 2)
	})
}

// Load builds the plan reading a host value of t from an address.
func (g *Generator) Load(t *model.Type) *Plan {
	return g.memo(planKey{kind: PlanLoad, typ: t}, func() *Plan {
		b := g.newBuilder()
		addr := b.arg(0)
		b.ret(b.liftMem(t, addr, 0))
		return b.plan(PlanLoad, t.String(), t, nil, 1)
	})
}

// Export builds the plan for the host calling a module export: lower the
// params, spilling them to an allocated area when they exceed the flat
// limit, call, then lift the result from flats or from the returned pointer.
func (g *Generator) Export(f *model.Function) *Plan {
	return g.memo(planKey{kind: PlanExport, fn: f}, func() *Plan {
		sig := g.layouts.Signature(f, layout.Export)
		b := g.newBuilder()

		params := make([]Reg, len(f.Params))
		for i := range f.Params {
			params[i] = b.arg(i)
		}

		var core []Reg
		if sig.ParamsSpilled {
			area := b.alloc(sig.ParamArea.Size, sig.ParamArea.Align)
			for i, p := range f.Params {
				b.lowerMem(p.Type, params[i], area, sig.ParamArea.Offsets[i])
			}
			core = []Reg{area}
		} else {
			for i, p := range f.Params {
				core = append(core, b.lowerFlat(p.Type, params[i])...)
			}
		}

		name := g.CoreName(f)
		var post string
		if NeedsPostReturn(f.Result) {
			post = model.PostReturnName(name)
		}
		results := b.callWasm(name, post, core, len(sig.Results))

		if f.Result == nil {
			b.ret()
		} else if sig.ResultSpilled {
			b.ret(b.liftMem(f.Result, results[0], 0))
		} else {
			b.ret(b.liftFlat(f.Result, results))
		}

		p := b.plan(PlanExport, name, nil, f, len(f.Params))
		p.Sig = sig
		p.PostReturn = post
		return p
	})
}

// Import builds the plan for the module calling a host import: lift the
// core params, loading them from memory when spilled, call the host, then
// return flats or store the result through the trailing return pointer.
func (g *Generator) Import(f *model.Function) *Plan {
	return g.memo(planKey{kind: PlanImport, fn: f}, func() *Plan {
		sig := g.layouts.Signature(f, layout.Import)
		b := g.newBuilder()

		core := make([]Reg, len(sig.Params))
		for i := range core {
			core[i] = b.arg(i)
		}

		params := make([]Reg, len(f.Params))
		if sig.ParamsSpilled {
			for i, p := range f.Params {
				params[i] = b.liftMem(p.Type, core[0], sig.ParamArea.Offsets[i])
			}
		} else {
			pos := 0
			for i, p := range f.Params {
				n := len(g.layouts.Of(p.Type).Flat)
				params[i] = b.liftFlat(p.Type, core[pos:pos+n])
				pos += n
			}
		}

		name := g.CoreName(f)
		result := b.callHost(f, name, params)

		switch {
		case f.Result == nil:
			b.ret()
		case sig.ResultSpilled:
			b.lowerMem(f.Result, result, core[len(core)-1], 0)
			b.ret()
		default:
			b.ret(b.lowerFlat(f.Result, result)...)
		}

		p := b.plan(PlanImport, name, nil, f, len(sig.Params))
		p.Sig = sig
		return p
	})
}

// builder appends instructions to the current block and allocates registers.
type builder struct {
	layouts *layout.Engine
	next    int
	cur     *Block
}

func (g *Generator) newBuilder() *builder {
	return &builder{layouts: g.layouts, cur: &Block{}}
}

func (b *builder) plan(kind PlanKind, name string, t *model.Type, f *model.Function, args int) *Plan {
	return &Plan{Kind: kind, Name: name, Type: t, Func: f, Body: b.cur, Regs: b.next, Args: args}
}

func (b *builder) reg() Reg {
	r := Reg(b.next)
	b.next++
	return r
}

func (b *builder) regs(n int) []Reg {
	out := make([]Reg, n)
	for i := range out {
		out[i] = b.reg()
	}
	return out
}

func (b *builder) emit(in *Instr) *Instr {
	b.cur.Body = append(b.cur.Body, in)
	return in
}

// block runs fill with a fresh block as the current one.
func (b *builder) block(params []Reg, fill func() []Reg) *Block {
	outer := b.cur
	blk := &Block{Params: params}
	b.cur = blk
	blk.Yield = fill()
	b.cur = outer
	return blk
}

func (b *builder) arg(i int) Reg {
	r := b.reg()
	b.emit(&Instr{Op: OpArg, Dst: []Reg{r}, Index: i})
	return r
}

func (b *builder) constant(t api.ValueType, v uint64) Reg {
	r := b.reg()
	b.emit(&Instr{Op: OpConst, Dst: []Reg{r}, To: t, Value: v})
	return r
}

func (b *builder) bitcast(src Reg, from, to api.ValueType) Reg {
	if from == to {
		return src
	}
	r := b.reg()
	b.emit(&Instr{Op: OpBitcast, Dst: []Reg{r}, Src: []Reg{src}, From: from, To: to})
	return r
}

func (b *builder) load(addr Reg, off, size uint32) Reg {
	r := b.reg()
	b.emit(&Instr{Op: OpLoad, Dst: []Reg{r}, Src: []Reg{addr}, Offset: off, Size: size})
	return r
}

func (b *builder) store(v, addr Reg, off, size uint32) {
	b.emit(&Instr{Op: OpStore, Src: []Reg{v, addr}, Offset: off, Size: size})
}

func (b *builder) alloc(size, align uint32) Reg {
	r := b.reg()
	b.emit(&Instr{Op: OpAlloc, Dst: []Reg{r}, Size: size, Align: align})
	return r
}

func (b *builder) callWasm(name, post string, args []Reg, results int) []Reg {
	dst := b.regs(results)
	b.emit(&Instr{Op: OpCallWasm, Dst: dst, Src: args, Name: name, PostReturn: post})
	return dst
}

func (b *builder) callHost(f *model.Function, name string, args []Reg) Reg {
	in := &Instr{Op: OpCallHost, Src: args, Name: name, Func: f, Type: f.Result}
	var r Reg = -1
	if f.Result != nil {
		r = b.reg()
		in.Dst = []Reg{r}
	}
	b.emit(in)
	return r
}

func (b *builder) ret(vals ...Reg) {
	b.emit(&Instr{Op: OpReturn, Src: vals})
}
