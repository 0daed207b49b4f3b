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

// EmitLowering renders host-to-core instructions.
func (b *Backend) EmitLowering(f *emit.Func, seg []*abi.Instr) error {
	return b.render(f.State.(*funcState), f.W, seg)
}

// EmitLifting renders core-to-host instructions.
func (b *Backend) EmitLifting(f *emit.Func, seg []*abi.Instr) error {
	return b.render(f.State.(*funcState), f.W, seg)
}

func (b *Backend) render(s *funcState, w *emit.Writer, seg []*abi.Instr) error {
	for _, in := range seg {
		if err := b.instr(s, w, in); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) instr(s *funcState, w *emit.Writer, in *abi.Instr) error {
	src := regNames(in.Src)
	switch in.Op {
	case abi.OpArg:
		if s.export {
			b.assign(s, w, in.Dst, s.params[in.Index], false)
		} else {
			b.assign(s, w, in.Dst, fmt.Sprintf("stack[%d]", in.Index), false)
		}

	case abi.OpConst:
		b.assign(s, w, in.Dst, fmt.Sprintf("uint64(%d)", in.Value), false)

	case abi.OpBitcast:
		expr := src[0]
		if is32(in.To) && !is32(in.From) {
			expr += " & 0xffffffff"
		}
		b.assign(s, w, in.Dst, expr, false)

	case abi.OpLowerScalar:
		expr, fallible := lowerScalar(in.Type, src[0])
		b.assign(s, w, in.Dst, expr, fallible)

	case abi.OpLiftScalar:
		expr, fallible := b.liftScalar(in.Type, src[0])
		b.assign(s, w, in.Dst, expr, fallible)

	case abi.OpRecordLower, abi.OpTupleLower:
		if len(in.Dst) == 0 {
			w.Line("_ = %s", src[0])
			return nil
		}
		for k, r := range in.Dst {
			b.assign(s, w, []abi.Reg{r}, src[0]+"."+memberName(in.Type, k), false)
		}

	case abi.OpRecordLift, abi.OpTupleLift:
		parts := make([]string, len(src))
		for k, v := range src {
			parts[k] = memberName(in.Type, k) + ": " + v
		}
		b.assign(s, w, in.Dst, fmt.Sprintf("%s{%s}", b.goType(in.Type), strings.Join(parts, ", ")), false)

	case abi.OpFlagsLower:
		b.flagsLower(s, w, in)

	case abi.OpFlagsLift:
		b.flagsLift(s, w, in)

	case abi.OpEnumLower:
		w.Open("if uint64(%s) >= %d {", src[0], len(in.Type.Cases))
		w.Line("%s", s.fail(fmt.Sprintf(`fmt.Errorf("%%w: %%d for %s", ErrInvalidCase, %s)`, b.goType(in.Type), src[0])))
		w.Close("}")
		b.assign(s, w, in.Dst, fmt.Sprintf("uint64(%s)", src[0]), false)

	case abi.OpEnumLift:
		w.Open("if %s >= %d {", src[0], len(in.Type.Cases))
		w.Line("%s", s.fail(fmt.Sprintf(`fmt.Errorf("%%w: %%d for %s", ErrInvalidDiscriminant, %s)`, b.goType(in.Type), src[0])))
		w.Close("}")
		b.assign(s, w, in.Dst, fmt.Sprintf("%s(%s)", b.goType(in.Type), src[0]), false)

	case abi.OpVariantLower:
		return b.variantLower(s, w, in)

	case abi.OpVariantLift:
		return b.variantLift(s, w, in)

	case abi.OpStringLower:
		b.assign(s, w, in.Dst, fmt.Sprintf("i.lowerString(ctx, %s)", src[0]), true)

	case abi.OpStringLift:
		b.assign(s, w, in.Dst, fmt.Sprintf("i.liftString(%s, %s)", src[0], src[1]), true)

	case abi.OpListLower:
		return b.listLower(s, w, in)

	case abi.OpListLift:
		return b.listLift(s, w, in)

	case abi.OpHandleLower:
		b.handleLower(s, w, in)

	case abi.OpHandleLift:
		b.handleLift(s, w, in)

	case abi.OpLoad:
		b.assign(s, w, in.Dst, fmt.Sprintf("i.load(%s, %d, %d)", src[0], in.Offset, in.Size), true)

	case abi.OpStore:
		b.assign(s, w, nil, fmt.Sprintf("i.store(%s, %d, %d, %s)", src[1], in.Offset, in.Size, src[0]), true)

	case abi.OpAlloc:
		b.assign(s, w, in.Dst, fmt.Sprintf("i.alloc(ctx, %d, %d)", in.Size, in.Align), true)

	case abi.OpReturn:
		b.ret(s, w, src)

	default:
		return errors.Unsupported(errors.PhaseEmit, "instruction "+in.Op.String())
	}
	return nil
}

func is32(t api.ValueType) bool {
	return t == api.ValueTypeI32 || t == api.ValueTypeF32
}

func (b *Backend) ret(s *funcState, w *emit.Writer, src []string) {
	if s.export {
		if len(src) == 0 {
			w.Line("return nil")
		} else {
			w.Line("return %s, nil", src[0])
		}
		return
	}
	b.commit(s, w)
	for k, v := range src {
		w.Line("stack[%d] = %s", k, v)
	}
	w.Line("return nil")
}

// commit applies the call's pending ownership moves.
func (b *Backend) commit(s *funcState, w *emit.Writer) {
	if !s.moves {
		return
	}
	w.Open("if err := tx.commit(); err != nil {")
	w.Line("%s", s.fail("err"))
	w.Close("}")
}

func memberName(t *model.Type, k int) string {
	if t.Kind == model.KindTuple {
		return fmt.Sprintf("F%d", k)
	}
	return exported(t.Fields[k].Name)
}

func lowerScalar(t *model.Type, v string) (string, bool) {
	switch t.Kind {
	case model.KindBool:
		return "lowerBool(" + v + ")", false
	case model.KindS8, model.KindS16, model.KindS32:
		return "uint64(uint32(" + v + "))", false
	case model.KindF32:
		return "lowerF32(" + v + ")", false
	case model.KindF64:
		return "lowerF64(" + v + ")", false
	case model.KindChar:
		return "lowerChar(" + v + ")", true
	}
	return "uint64(" + v + ")", false
}

func (b *Backend) liftScalar(t *model.Type, v string) (string, bool) {
	switch t.Kind {
	case model.KindBool:
		return "uint32(" + v + ") != 0", false
	case model.KindS32:
		return "int32(uint32(" + v + "))", false
	case model.KindU64:
		return v, false
	case model.KindF32:
		return "math.Float32frombits(uint32(" + v + "))", false
	case model.KindF64:
		return "math.Float64frombits(" + v + ")", false
	case model.KindChar:
		return "liftChar(" + v + ")", true
	}
	return scalarTypes[t.Kind] + "(" + v + ")", false
}

func (b *Backend) flagsLower(s *funcState, w *emit.Writer, in *abi.Instr) {
	v := in.Src[0].String()
	switch n := len(in.Dst); {
	case n == 0:
		w.Line("_ = %s", v)
	case len(in.Type.Flags) <= 64:
		b.assign(s, w, in.Dst, fmt.Sprintf("uint64(%s)", v), false)
	default:
		for k, r := range in.Dst {
			b.assign(s, w, []abi.Reg{r}, fmt.Sprintf("uint64(%s[%d])", v, k), false)
		}
	}
}

func (b *Backend) flagsLift(s *funcState, w *emit.Writer, in *abi.Instr) {
	name := b.goType(in.Type)
	n := len(in.Type.Flags)
	switch {
	case n == 0:
		b.assign(s, w, in.Dst, name+"(0)", false)
	case n <= 64:
		mask := uint64(1)<<n - 1
		if n == 64 {
			mask = ^uint64(0)
		}
		b.assign(s, w, in.Dst, fmt.Sprintf("%s(%s & %#x)", name, in.Src[0], mask), false)
	default:
		words := make([]string, len(in.Src))
		for k, r := range in.Src {
			words[k] = fmt.Sprintf("uint32(%s)", r)
		}
		b.assign(s, w, in.Dst, fmt.Sprintf("%s{%s}", name, strings.Join(words, ", ")), false)
	}
}

// variantLower switches on the host value, runs the selected case block
// and assigns the discriminant and the joined payload flats.
func (b *Backend) variantLower(s *funcState, w *emit.Writer, in *abi.Instr) error {
	t := in.Type
	v := in.Src[0].String()
	w.Line("var %s uint64", strings.Join(regNames(in.Dst), ", "))

	named := t.Kind == model.KindVariant
	switch {
	case named:
		w.Line("switch %s.Tag {", v)
	default:
		w.Line("switch {")
	}
	name := b.goType(t)
	for k, blk := range in.Blocks {
		ct := t.CaseType(k)
		switch t.Kind {
		case model.KindVariant:
			w.Line("case %s:", caseConst(name, t.Cases[k].Name))
		case model.KindOption:
			if k == 0 {
				w.Line("case %s == nil:", v)
			} else {
				w.Line("default:")
			}
		case model.KindResult:
			if k == 0 {
				w.Line("case !%s.IsErr:", v)
			} else {
				w.Line("default:")
			}
		}
		w.Indent()
		if len(blk.Params) > 0 {
			p := blk.Params[0].String()
			switch t.Kind {
			case model.KindVariant:
				w.Line("%s, ok := %s.Payload.(%s)", p, v, b.goType(ct))
				w.Open("if !ok {")
				w.Line("%s", s.fail(fmt.Sprintf(`fmt.Errorf("%%w: %s payload is %%T", ErrInvalidCase, %s.Payload)`, caseConst(name, t.Cases[k].Name), v)))
				w.Close("}")
			case model.KindOption:
				w.Line("%s := *%s", p, v)
			case model.KindResult:
				if k == 0 {
					w.Line("%s := %s.Ok", p, v)
				} else {
					w.Line("%s := %s.Err", p, v)
				}
			}
			b.sink(s, w, blk.Params[0])
		}
		if err := b.render(s, w, blk.Body); err != nil {
			return err
		}
		w.Line("%s = %d", in.Dst[0], k)
		for j, y := range blk.Yield {
			w.Line("%s = %s", in.Dst[1+j], y)
		}
		w.Dedent()
	}
	if named {
		w.Line("default:")
		w.Indent()
		w.Line("%s", s.fail(fmt.Sprintf(`fmt.Errorf("%%w: %%d for %s", ErrInvalidCase, %s.Tag)`, name, v)))
		w.Dedent()
	}
	w.Line("}")
	b.sink(s, w, in.Dst...)
	return nil
}

// variantLift switches on the discriminant and builds the host value from
// the payload the selected case block yields.
func (b *Backend) variantLift(s *funcState, w *emit.Writer, in *abi.Instr) error {
	t := in.Type
	name := b.goType(t)
	dst := in.Dst[0].String()
	w.Line("var %s %s", dst, name)
	w.Line("switch %s {", in.Src[0])
	for k, blk := range in.Blocks {
		w.Line("case %d:", k)
		w.Indent()
		if err := b.render(s, w, blk.Body); err != nil {
			return err
		}
		payload := ""
		if len(blk.Yield) > 0 {
			payload = blk.Yield[0].String()
		}
		switch t.Kind {
		case model.KindVariant:
			tag := caseConst(name, t.Cases[k].Name)
			if payload == "" {
				w.Line("%s = %s{Tag: %s}", dst, name, tag)
			} else {
				w.Line("%s = %s{Tag: %s, Payload: %s}", dst, name, tag, payload)
			}
		case model.KindOption:
			if payload == "" {
				w.Line("%s = nil", dst)
			} else {
				w.Line("%s = &%s", dst, payload)
			}
		case model.KindResult:
			switch {
			case k == 0 && payload == "":
				w.Line("%s = %s{}", dst, name)
			case k == 0:
				w.Line("%s = %s{Ok: %s}", dst, name, payload)
			case payload == "":
				w.Line("%s = %s{IsErr: true}", dst, name)
			default:
				w.Line("%s = %s{Err: %s, IsErr: true}", dst, name, payload)
			}
		}
		w.Dedent()
	}
	w.Line("default:")
	w.Indent()
	w.Line("%s", s.fail(fmt.Sprintf(`fmt.Errorf("%%w: %%d for %s", ErrInvalidDiscriminant, %s)`, name, in.Src[0])))
	w.Dedent()
	w.Line("}")
	b.sink(s, w, in.Dst...)
	return nil
}

// listLower copies a list into a fresh allocation. Byte lists are copied
// in one write; other lists run the element block once per element.
func (b *Backend) listLower(s *funcState, w *emit.Writer, in *abi.Instr) error {
	v := in.Src[0].String()
	if in.Type.Elem.Kind == model.KindU8 {
		b.assign(s, w, in.Dst, fmt.Sprintf("i.lowerBytes(ctx, %s)", v), true)
		return nil
	}
	ptr, n := in.Dst[0], in.Dst[1]
	w.Line("%s, err := i.allocList(ctx, len(%s), %d, %d)", ptr, v, in.Size, in.Align)
	w.Open("if err != nil {")
	w.Line("%s", s.fail("err"))
	w.Close("}")

	blk := in.Blocks[0]
	elem, addr := blk.Params[0], blk.Params[1]
	w.Open("for k, %s := range %s {", elem, v)
	w.Line("%s := %s + uint64(k)*%d", addr, ptr, in.Size)
	b.sink(s, w, elem, addr)
	if err := b.render(s, w, blk.Body); err != nil {
		return err
	}
	w.Close("}")
	w.Line("%s := uint64(len(%s))", n, v)
	b.sink(s, w, ptr, n)
	return nil
}

// listLift checks the whole range once, then reads each element through
// the element block.
func (b *Backend) listLift(s *funcState, w *emit.Writer, in *abi.Instr) error {
	ptr, n := in.Src[0].String(), in.Src[1].String()
	if in.Type.Elem.Kind == model.KindU8 {
		b.assign(s, w, in.Dst, fmt.Sprintf("i.liftBytes(%s, %s)", ptr, n), true)
		return nil
	}
	w.Open("if err := i.checkList(%s, %s, %d); err != nil {", ptr, n, in.Size)
	w.Line("%s", s.fail("err"))
	w.Close("}")

	dst := in.Dst[0].String()
	blk := in.Blocks[0]
	addr := blk.Params[0]
	w.Line("%s := make(%s, %s)", dst, b.goType(in.Type), n)
	w.Open("for k := range %s {", dst)
	w.Line("%s := %s + uint64(k)*%d", addr, ptr, in.Size)
	b.sink(s, w, addr)
	if err := b.render(s, w, blk.Body); err != nil {
		return err
	}
	if len(blk.Yield) > 0 {
		w.Line("%s[k] = %s", dst, blk.Yield[0])
	}
	w.Close("}")
	b.sink(s, w, in.Dst...)
	return nil
}

func (b *Backend) handleLower(s *funcState, w *emit.Writer, in *abi.Instr) {
	r := in.Type.Resource
	v := in.Src[0].String()
	if b.exported[r] {
		expr := fmt.Sprintf("%s.view()", v)
		if in.Type.Kind == model.KindOwn {
			expr = fmt.Sprintf("%s.move(&tx)", v)
		}
		b.assign(s, w, in.Dst, expr, true)
		return
	}
	table := local(r.Name) + "Table"
	dst := in.Dst[0].String()
	w.Line("%s := uint64(i.%s.insert(%s))", dst, table, v)
	if in.Type.Kind == model.KindBorrow {
		w.Line("defer i.%s.drop(uint32(%s))", table, dst)
	} else {
		w.Line("tx.add(move{undo: func() { _, _ = i.take%s(uint32(%s)) }})", exported(r.Name), dst)
	}
	b.sink(s, w, in.Dst...)
}

func (b *Backend) handleLift(s *funcState, w *emit.Writer, in *abi.Instr) {
	r := in.Type.Resource
	h := fmt.Sprintf("uint32(%s)", in.Src[0])
	name := exported(r.Name)
	var expr string
	switch {
	case b.exported[r] && in.Type.Kind == model.KindOwn:
		expr = fmt.Sprintf("i.adopt%s(%s)", name, h)
	case b.exported[r]:
		expr = fmt.Sprintf("i.borrow%s(%s)", name, h)
	case in.Type.Kind == model.KindOwn:
		expr = fmt.Sprintf("i.take%s(%s)", name, h)
	default:
		expr = fmt.Sprintf("i.%sTable.get(%s)", local(r.Name), h)
	}
	b.assign(s, w, in.Dst, expr, true)
}
