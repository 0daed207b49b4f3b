package abi

import (
	"github.com/wippyai/witbind/model"
)

// liftFlat emits the instructions rebuilding a host value of type t from
// exactly its flat registers.
func (b *builder) liftFlat(t *model.Type, flats []Reg) Reg {
	r := b.reg()

	if t.Kind.IsScalar() {
		b.emit(&Instr{Op: OpLiftScalar, Dst: []Reg{r}, Src: flats[:1], Type: t})
		return r
	}

	switch t.Kind {
	case model.KindString:
		b.emit(&Instr{Op: OpStringLift, Dst: []Reg{r}, Src: flats[:2], Type: t})

	case model.KindList:
		b.liftList(t, r, flats[:2])

	case model.KindRecord, model.KindTuple:
		members := aggregateLen(t)
		fields := make([]Reg, members)
		pos := 0
		for i := 0; i < members; i++ {
			mt := memberType(t, i)
			n := len(b.layouts.Of(mt).Flat)
			fields[i] = b.liftFlat(mt, flats[pos:pos+n])
			pos += n
		}
		b.joinAggregate(t, r, fields)

	case model.KindFlags:
		b.emit(&Instr{Op: OpFlagsLift, Dst: []Reg{r}, Src: flats, Type: t})

	case model.KindEnum:
		b.emit(&Instr{Op: OpEnumLift, Dst: []Reg{r}, Src: flats[:1], Type: t})

	case model.KindVariant, model.KindOption, model.KindResult:
		joined := b.layouts.Of(t).Flat[1:]
		payload := flats[1:]
		in := &Instr{Op: OpVariantLift, Dst: []Reg{r}, Src: flats[:1], Type: t}
		for i := 0; i < t.CaseCount(); i++ {
			ct := t.CaseType(i)
			in.Blocks = append(in.Blocks, b.block(nil, func() []Reg {
				if ct == nil {
					return nil
				}
				types := b.layouts.Of(ct).Flat
				casts := make([]Reg, len(types))
				for j, ft := range types {
					casts[j] = b.bitcast(payload[j], joined[j], ft)
				}
				return []Reg{b.liftFlat(ct, casts)}
			}))
		}
		b.emit(in)

	case model.KindOwn, model.KindBorrow:
		b.emit(&Instr{Op: OpHandleLift, Dst: []Reg{r}, Src: flats[:1], Type: t, Name: t.Resource.Name})
	}
	return r
}

// liftMem emits the instructions reading a host value of type t from
// addr+off.
func (b *builder) liftMem(t *model.Type, addr Reg, off uint32) Reg {
	l := b.layouts.Of(t)

	if t.Kind.IsScalar() {
		return b.liftFlat(t, []Reg{b.load(addr, off, l.Size)})
	}

	switch t.Kind {
	case model.KindString, model.KindList:
		ptr := b.load(addr, off, 4)
		n := b.load(addr, off+4, 4)
		return b.liftFlat(t, []Reg{ptr, n})

	case model.KindOwn, model.KindBorrow:
		return b.liftFlat(t, []Reg{b.load(addr, off, 4)})

	case model.KindEnum:
		return b.liftFlat(t, []Reg{b.load(addr, off, l.DiscSize)})

	case model.KindFlags:
		var words []Reg
		switch n := len(l.Flat); {
		case n == 1:
			words = []Reg{b.load(addr, off, l.Size)}
		case n > 1:
			for i := 0; i < n; i++ {
				words = append(words, b.load(addr, off+uint32(i)*4, 4))
			}
		}
		return b.liftFlat(t, words)

	case model.KindRecord, model.KindTuple:
		members := aggregateLen(t)
		fields := make([]Reg, members)
		for i := 0; i < members; i++ {
			fields[i] = b.liftMem(memberType(t, i), addr, off+l.Offsets[i])
		}
		r := b.reg()
		b.joinAggregate(t, r, fields)
		return r

	case model.KindVariant, model.KindOption, model.KindResult:
		disc := b.load(addr, off, l.DiscSize)
		r := b.reg()
		in := &Instr{Op: OpVariantLift, Dst: []Reg{r}, Src: []Reg{disc}, Type: t, Memory: true}
		for i := 0; i < t.CaseCount(); i++ {
			ct := t.CaseType(i)
			in.Blocks = append(in.Blocks, b.block(nil, func() []Reg {
				if ct == nil {
					return nil
				}
				return []Reg{b.liftMem(ct, addr, off+l.PayloadOffset)}
			}))
		}
		b.emit(in)
		return r
	}
	return b.reg()
}

func (b *builder) joinAggregate(t *model.Type, r Reg, fields []Reg) {
	op := OpRecordLift
	if t.Kind == model.KindTuple {
		op = OpTupleLift
	}
	b.emit(&Instr{Op: op, Dst: []Reg{r}, Src: fields, Type: t})
}

func aggregateLen(t *model.Type) int {
	if t.Kind == model.KindTuple {
		return len(t.Elems)
	}
	return len(t.Fields)
}

// liftList reads each element through the element block.
func (b *builder) liftList(t *model.Type, r Reg, pair []Reg) {
	el := b.layouts.Of(t.Elem)
	base := b.reg()
	blk := b.block([]Reg{base}, func() []Reg {
		return []Reg{b.liftMem(t.Elem, base, 0)}
	})
	b.emit(&Instr{
		Op:     OpListLift,
		Dst:    []Reg{r},
		Src:    pair,
		Type:   t,
		Size:   el.Size,
		Align:  el.Align,
		Blocks: []*Block{blk},
	})
}
