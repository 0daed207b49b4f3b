package abi

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/model"
)

// lowerFlat emits the instructions flattening host register v of type t
// and returns the flat registers in order.
func (b *builder) lowerFlat(t *model.Type, v Reg) []Reg {
	if t.Kind.IsScalar() {
		r := b.reg()
		b.emit(&Instr{Op: OpLowerScalar, Dst: []Reg{r}, Src: []Reg{v}, Type: t})
		return []Reg{r}
	}

	switch t.Kind {
	case model.KindString:
		dst := b.regs(2)
		b.emit(&Instr{Op: OpStringLower, Dst: dst, Src: []Reg{v}, Type: t})
		return dst

	case model.KindList:
		return b.lowerList(t, v)

	case model.KindRecord, model.KindTuple:
		var flats []Reg
		for i, field := range b.splitAggregate(t, v) {
			flats = append(flats, b.lowerFlat(memberType(t, i), field)...)
		}
		return flats

	case model.KindFlags:
		dst := b.regs(len(b.layouts.Of(t).Flat))
		b.emit(&Instr{Op: OpFlagsLower, Dst: dst, Src: []Reg{v}, Type: t})
		return dst

	case model.KindEnum:
		r := b.reg()
		b.emit(&Instr{Op: OpEnumLower, Dst: []Reg{r}, Src: []Reg{v}, Type: t})
		return []Reg{r}

	case model.KindVariant, model.KindOption, model.KindResult:
		return b.lowerVariantFlat(t, v)

	case model.KindOwn, model.KindBorrow:
		r := b.reg()
		b.emit(&Instr{Op: OpHandleLower, Dst: []Reg{r}, Src: []Reg{v}, Type: t, Name: t.Resource.Name})
		return []Reg{r}
	}
	return nil
}

// lowerMem emits the instructions storing host register v of type t at
// addr+off.
func (b *builder) lowerMem(t *model.Type, v, addr Reg, off uint32) {
	l := b.layouts.Of(t)

	if t.Kind.IsScalar() {
		flat := b.lowerFlat(t, v)
		b.store(flat[0], addr, off, l.Size)
		return
	}

	switch t.Kind {
	case model.KindString, model.KindList, model.KindEnum, model.KindOwn, model.KindBorrow:
		flats := b.lowerFlat(t, v)
		if t.Kind == model.KindEnum {
			b.store(flats[0], addr, off, l.DiscSize)
			return
		}
		b.store(flats[0], addr, off, 4)
		if len(flats) > 1 {
			b.store(flats[1], addr, off+4, 4)
		}

	case model.KindRecord, model.KindTuple:
		for i, field := range b.splitAggregate(t, v) {
			b.lowerMem(memberType(t, i), field, addr, off+l.Offsets[i])
		}

	case model.KindFlags:
		words := b.lowerFlat(t, v)
		if len(words) == 1 {
			b.store(words[0], addr, off, l.Size)
			return
		}
		for i, w := range words {
			b.store(w, addr, off+uint32(i)*4, 4)
		}

	case model.KindVariant, model.KindOption, model.KindResult:
		in := &Instr{Op: OpVariantLower, Src: []Reg{v}, Type: t, Memory: true}
		for i := 0; i < t.CaseCount(); i++ {
			ct := t.CaseType(i)
			var params []Reg
			var payload Reg
			if ct != nil {
				payload = b.reg()
				params = []Reg{payload}
			}
			in.Blocks = append(in.Blocks, b.block(params, func() []Reg {
				if ct != nil {
					b.lowerMem(ct, payload, addr, off+l.PayloadOffset)
				}
				return nil
			}))
		}
		disc := b.reg()
		in.Dst = []Reg{disc}
		b.emit(in)
		b.store(disc, addr, off, l.DiscSize)
	}
}

// splitAggregate emits record-lower or tuple-lower and returns one host
// register per member.
func (b *builder) splitAggregate(t *model.Type, v Reg) []Reg {
	op := OpRecordLower
	n := len(t.Fields)
	if t.Kind == model.KindTuple {
		op = OpTupleLower
		n = len(t.Elems)
	}
	dst := b.regs(n)
	b.emit(&Instr{Op: op, Dst: dst, Src: []Reg{v}, Type: t})
	return dst
}

func memberType(t *model.Type, i int) *model.Type {
	if t.Kind == model.KindTuple {
		return t.Elems[i]
	}
	return t.Fields[i].Type
}

// lowerVariantFlat lowers each case's payload in its own block and converts
// it to the joined payload flats, padding unused positions with zeros.
func (b *builder) lowerVariantFlat(t *model.Type, v Reg) []Reg {
	joined := b.layouts.Of(t).Flat[1:]

	in := &Instr{Op: OpVariantLower, Src: []Reg{v}, Type: t}
	for i := 0; i < t.CaseCount(); i++ {
		ct := t.CaseType(i)
		var params []Reg
		var payload Reg
		if ct != nil {
			payload = b.reg()
			params = []Reg{payload}
		}
		in.Blocks = append(in.Blocks, b.block(params, func() []Reg {
			var flats []Reg
			var types []api.ValueType
			if ct != nil {
				flats = b.lowerFlat(ct, payload)
				types = b.layouts.Of(ct).Flat
			}
			out := make([]Reg, len(joined))
			for j, jt := range joined {
				if j < len(flats) {
					out[j] = b.bitcast(flats[j], types[j], jt)
				} else {
					out[j] = b.constant(jt, 0)
				}
			}
			return out
		}))
	}
	in.Dst = b.regs(1 + len(joined))
	b.emit(in)
	return in.Dst
}

// lowerList copies the elements into a fresh allocation, storing each one
// through the element block.
func (b *builder) lowerList(t *model.Type, v Reg) []Reg {
	el := b.layouts.Of(t.Elem)
	elem, addr := b.reg(), b.reg()
	blk := b.block([]Reg{elem, addr}, func() []Reg {
		b.lowerMem(t.Elem, elem, addr, 0)
		return nil
	})
	dst := b.regs(2)
	b.emit(&Instr{
		Op:     OpListLower,
		Dst:    dst,
		Src:    []Reg{v},
		Type:   t,
		Size:   el.Size,
		Align:  el.Align,
		Blocks: []*Block{blk},
	})
	return dst
}
