package abi

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/witbind"
	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/model"
	"github.com/wippyai/witbind/resource"
)

// Callee performs the calls a plan makes across the boundary.
type Callee interface {
	// CallWasm calls a core export with flat arguments.
	CallWasm(ctx context.Context, name string, args []uint64) ([]uint64, error)
	// CallHost calls the host implementation of an import.
	CallHost(ctx context.Context, f *model.Function, args []any) (any, error)
}

// Env is what a Machine runs against. Memory and Allocator may be nil for
// plans that never touch linear memory.
type Env struct {
	Memory    witbind.Memory
	Allocator witbind.Allocator
	Resources *resource.Store
	Callee    Callee
}

// Machine interprets plans. A Machine holds no per-call state and may run
// plans concurrently when its Env allows it.
type Machine struct {
	env Env
}

// NewMachine creates a machine over env. A nil resource store is replaced
// by an empty one.
func NewMachine(env Env) *Machine {
	if env.Resources == nil {
		env.Resources = resource.NewStore()
	}
	return &Machine{env: env}
}

// Env returns the machine's environment.
func (m *Machine) Env() Env { return m.env }

// frame is the state of one plan execution.
type frame struct {
	m    *Machine
	ctx  context.Context
	plan *Plan
	args []any
	regs []any

	allocs *AllocationList
	handed bool

	post     *PostReturn
	borrowed []func() error
	results  []any

	transfers []*resource.Owned
	fresh     []freshEntry
}

// freshEntry is a value inserted to be passed as own. It belongs to the
// other side only once the frame commits.
type freshEntry struct {
	tbl *resource.Table
	h   resource.Handle
}

// Run executes p with args and returns the plan results.
//
// Allocations made while lowering are given back when the run fails before
// they are handed to the other side. Owned handles change hands only when the
// boundary is crossed: a failed lowering leaves every owner armed and takes
// freshly inserted values back out. Values inserted only to be borrowed for
// a call are dropped after it. A pending post-return runs once lifting is
// over, whether or not lifting succeeded.
func (m *Machine) Run(ctx context.Context, p *Plan, args ...any) (results []any, err error) {
	if len(args) != p.Args {
		return nil, errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("%s %s takes %d arguments, got %d", p.Kind, p.Name, p.Args, len(args)))
	}

	f := &frame{
		m:      m,
		ctx:    ctx,
		plan:   p,
		args:   args,
		regs:   make([]any, p.Regs),
		allocs: NewAllocationList(),
	}
	defer f.allocs.Release()

	_, err = f.run(p.Body)
	if err != nil {
		f.rollback()
	}

	if f.post != nil {
		err = multierr.Append(err, f.post.Invoke(ctx, m.env.Callee))
	}
	for _, drop := range f.borrowed {
		err = multierr.Append(err, drop())
	}
	if err != nil {
		if !f.handed {
			f.allocs.Free(m.env.Allocator)
		}
		return nil, err
	}
	return f.results, nil
}

// run executes blk after binding params and returns its yields.
func (f *frame) run(blk *Block, params ...any) ([]any, error) {
	for i, r := range blk.Params {
		f.regs[r] = params[i]
	}
	for _, in := range blk.Body {
		if err := f.exec(in); err != nil {
			return nil, err
		}
	}
	if len(blk.Yield) == 0 {
		return nil, nil
	}
	out := make([]any, len(blk.Yield))
	for i, r := range blk.Yield {
		out[i] = f.regs[r]
	}
	return out, nil
}

func (f *frame) flat(r Reg) uint64 {
	v, _ := f.regs[r].(uint64)
	return v
}

func (f *frame) setFlats(dst []Reg, vals []uint64) {
	for i, r := range dst {
		f.regs[r] = vals[i]
	}
}

func (f *frame) exec(in *Instr) error {
	switch in.Op {
	case OpArg:
		f.regs[in.Dst[0]] = f.args[in.Index]

	case OpConst:
		f.regs[in.Dst[0]] = in.Value

	case OpBitcast:
		f.regs[in.Dst[0]] = bitcast(f.flat(in.Src[0]), in.To)

	case OpLowerScalar:
		v, err := lowerScalar(in.Type, f.regs[in.Src[0]])
		if err != nil {
			return err
		}
		f.regs[in.Dst[0]] = v

	case OpLiftScalar:
		v, err := liftScalar(in.Type, f.flat(in.Src[0]))
		if err != nil {
			return err
		}
		f.regs[in.Dst[0]] = v

	case OpRecordLower:
		fields, err := splitRecord(in.Type, f.regs[in.Src[0]])
		if err != nil {
			return err
		}
		for i, r := range in.Dst {
			f.regs[r] = fields[i]
		}

	case OpTupleLower:
		elems, err := splitTuple(in.Type, f.regs[in.Src[0]])
		if err != nil {
			return err
		}
		for i, r := range in.Dst {
			f.regs[r] = elems[i]
		}

	case OpRecordLift:
		rec := make(map[string]any, len(in.Src))
		for i, r := range in.Src {
			rec[in.Type.Fields[i].Name] = f.regs[r]
		}
		f.regs[in.Dst[0]] = rec

	case OpTupleLift:
		tup := make([]any, len(in.Src))
		for i, r := range in.Src {
			tup[i] = f.regs[r]
		}
		f.regs[in.Dst[0]] = tup

	case OpFlagsLower:
		words, err := lowerFlags(in.Type, f.regs[in.Src[0]])
		if err != nil {
			return err
		}
		f.setFlats(in.Dst, words)

	case OpFlagsLift:
		words := make([]uint64, len(in.Src))
		for i, r := range in.Src {
			words[i] = f.flat(r)
		}
		f.regs[in.Dst[0]] = liftFlags(in.Type, words)

	case OpEnumLower:
		idx, err := caseIndex(in.Type, f.regs[in.Src[0]])
		if err != nil {
			return err
		}
		f.regs[in.Dst[0]] = uint64(idx)

	case OpEnumLift:
		disc := f.flat(in.Src[0])
		if err := checkDisc(in.Type, disc); err != nil {
			return err
		}
		f.regs[in.Dst[0]] = in.Type.CaseName(int(disc))

	case OpVariantLower:
		return f.variantLower(in)

	case OpVariantLift:
		return f.variantLift(in)

	case OpStringLower:
		ptr, n, err := f.lowerString(in.Type, f.regs[in.Src[0]])
		if err != nil {
			return err
		}
		f.setFlats(in.Dst, []uint64{uint64(ptr), uint64(n)})

	case OpStringLift:
		s, err := f.liftString(uint32(f.flat(in.Src[0])), uint32(f.flat(in.Src[1])))
		if err != nil {
			return err
		}
		f.regs[in.Dst[0]] = s

	case OpListLower:
		return f.listLower(in)

	case OpListLift:
		return f.listLift(in)

	case OpHandleLower:
		h, err := f.lowerHandle(in.Type, f.regs[in.Src[0]])
		if err != nil {
			return err
		}
		f.regs[in.Dst[0]] = uint64(h)

	case OpHandleLift:
		v, err := f.liftHandle(in.Type, resource.Handle(f.flat(in.Src[0])))
		if err != nil {
			return err
		}
		f.regs[in.Dst[0]] = v

	case OpLoad:
		v, err := f.load(uint32(f.flat(in.Src[0])), in.Offset, in.Size)
		if err != nil {
			return err
		}
		f.regs[in.Dst[0]] = v

	case OpStore:
		return f.store(f.flat(in.Src[0]), uint32(f.flat(in.Src[1])), in.Offset, in.Size)

	case OpAlloc:
		ptr, err := f.alloc(in.Size, in.Align)
		if err != nil {
			return err
		}
		f.regs[in.Dst[0]] = uint64(ptr)

	case OpCallWasm:
		return f.callWasm(in)

	case OpCallHost:
		return f.callHost(in)

	case OpReturn:
		if err := f.commit(); err != nil {
			return err
		}
		f.results = make([]any, len(in.Src))
		for i, r := range in.Src {
			f.results[i] = f.regs[r]
		}
		f.handed = true

	default:
		return errors.Unsupported(errors.PhaseRuntime, in.Op.String())
	}
	return nil
}

func (f *frame) callWasm(in *Instr) error {
	callee := f.m.env.Callee
	if callee == nil {
		return errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("no callee for %q", in.Name))
	}
	args := make([]uint64, len(in.Src))
	for i, r := range in.Src {
		args[i] = f.flat(r)
	}
	if err := f.commit(); err != nil {
		return err
	}
	// the module owns everything lowered so far
	f.handed = true
	f.allocs.Reset()

	results, err := callee.CallWasm(f.ctx, in.Name, args)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindTrap, err, "call "+in.Name)
	}
	if len(results) < len(in.Dst) {
		return errors.InvalidData(errors.PhaseRuntime, nil,
			fmt.Sprintf("%s returned %d values, want %d", in.Name, len(results), len(in.Dst)))
	}
	f.setFlats(in.Dst, results)
	if in.PostReturn != "" {
		f.post = NewPostReturn(in.PostReturn, results)
	}
	// lifting below may reuse allocations it does not own
	f.handed = false
	return nil
}

func (f *frame) callHost(in *Instr) error {
	callee := f.m.env.Callee
	if callee == nil {
		return errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("no callee for %q", in.Name))
	}
	args := make([]any, len(in.Src))
	for i, r := range in.Src {
		args[i] = f.regs[r]
	}
	res, err := callee.CallHost(f.ctx, in.Func, args)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindHost, err, "import "+in.Name)
	}
	if len(in.Dst) > 0 {
		f.regs[in.Dst[0]] = res
	}
	return nil
}

// commit hands the pending owned references to the other side. When one of
// them can no longer be released, the references already released are
// dropped and the fresh entries taken back, so nothing is left without an
// owner.
func (f *frame) commit() error {
	transfers, fresh := f.transfers, f.fresh
	f.transfers, f.fresh = nil, nil

	for k, o := range transfers {
		if _, err := o.Release(); err != nil {
			for _, done := range transfers[:k] {
				err = multierr.Append(err, done.Table().Drop(done.Handle()))
			}
			for _, e := range fresh {
				_, _ = e.tbl.Take(e.h)
			}
			return err
		}
	}
	return nil
}

// rollback undoes the transfers of a run that never crossed the boundary.
// Owners stay armed; fresh entries leave the table without their destructor
// running, since the caller still holds the value.
func (f *frame) rollback() {
	for _, e := range f.fresh {
		if _, err := e.tbl.Take(e.h); err != nil {
			resource.Logger().Warn("rollback of owned handle failed",
				zap.String("resource", e.tbl.Name()),
				zap.Uint32("handle", uint32(e.h)),
				zap.Error(err))
		}
	}
	f.transfers, f.fresh = nil, nil
}
