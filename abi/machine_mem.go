package abi

import (
	"fmt"
	"unicode/utf8"

	"github.com/wippyai/witbind"
	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/model"
	"github.com/wippyai/witbind/resource"
)

func (f *frame) variantLower(in *Instr) error {
	idx, payload, err := caseOf(in.Type, f.regs[in.Src[0]])
	if err != nil {
		return err
	}
	blk := in.Blocks[idx]
	var params []any
	if len(blk.Params) > 0 {
		params = []any{payload}
	}
	yields, err := f.run(blk, params...)
	if err != nil {
		return err
	}
	f.regs[in.Dst[0]] = uint64(idx)
	if !in.Memory {
		for j, r := range in.Dst[1:] {
			f.regs[r] = yields[j]
		}
	}
	return nil
}

func (f *frame) variantLift(in *Instr) error {
	disc := f.flat(in.Src[0])
	if err := checkDisc(in.Type, disc); err != nil {
		return err
	}
	yields, err := f.run(in.Blocks[disc])
	if err != nil {
		return err
	}
	var payload any
	if len(yields) > 0 {
		payload = yields[0]
	}
	f.regs[in.Dst[0]] = caseValue(in.Type, int(disc), payload)
	return nil
}

func (f *frame) memory() (witbind.Memory, error) {
	if f.m.env.Memory == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "plan "+f.plan.Name+" needs linear memory")
	}
	return f.m.env.Memory, nil
}

// lowerString copies a valid UTF-8 string into a fresh allocation. The
// empty string takes no allocation and lowers to (0, 0).
func (f *frame) lowerString(t *model.Type, v any) (uint32, uint32, error) {
	s, ok := coerceString(v)
	if !ok {
		return 0, 0, mismatch(t, v)
	}
	if !utf8.ValidString(s) {
		return 0, 0, errors.InvalidUTF8(errors.PhaseEncode, path(t), []byte(s))
	}
	if len(s) > MaxStringSize {
		return 0, 0, errors.Overflow(errors.PhaseEncode, path(t), len(s), t.String())
	}
	if len(s) == 0 {
		return 0, 0, nil
	}
	mem, err := f.memory()
	if err != nil {
		return 0, 0, err
	}
	n := uint32(len(s))
	ptr, err := f.alloc(n, 1)
	if err != nil {
		return 0, 0, err
	}
	if err := mem.Write(ptr, []byte(s)); err != nil {
		return 0, 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err,
			fmt.Sprintf("write %d bytes at %d", n, ptr))
	}
	return ptr, n, nil
}

func (f *frame) liftString(ptr, n uint32) (string, error) {
	if n == 0 {
		return "", nil
	}
	if n > MaxStringSize {
		return "", errors.InvalidData(errors.PhaseDecode, nil,
			fmt.Sprintf("string length %d exceeds %d", n, MaxStringSize))
	}
	mem, err := f.memory()
	if err != nil {
		return "", err
	}
	data, err := mem.Read(ptr, n)
	if err != nil {
		return "", errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err,
			fmt.Sprintf("read %d bytes at %d", n, ptr))
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, []string{"string"}, data)
	}
	return string(data), nil
}

func (f *frame) listLower(in *Instr) error {
	t := in.Type
	v := f.regs[in.Src[0]]

	if b, ok := v.([]byte); ok && t.Elem.Kind == model.KindU8 {
		ptr, err := f.copyBytes(t, b)
		if err != nil {
			return err
		}
		f.setFlats(in.Dst, []uint64{uint64(ptr), uint64(len(b))})
		return nil
	}

	elems, ok := sliceOf(v)
	if !ok {
		return mismatch(t, v)
	}
	if len(elems) > MaxListLength {
		return errors.Overflow(errors.PhaseEncode, path(t), len(elems), t.String())
	}
	if len(elems) == 0 {
		f.setFlats(in.Dst, []uint64{0, 0})
		return nil
	}
	n := uint32(len(elems))
	size, ok := safeMulU32(n, in.Size)
	if !ok || size > MaxAlloc {
		return errors.Overflow(errors.PhaseEncode, path(t), len(elems), t.String())
	}
	var ptr uint32
	if size > 0 {
		var err error
		if ptr, err = f.alloc(size, in.Align); err != nil {
			return err
		}
	}
	for i, e := range elems {
		if _, err := f.run(in.Blocks[0], e, uint64(ptr+uint32(i)*in.Size)); err != nil {
			return err
		}
	}
	f.setFlats(in.Dst, []uint64{uint64(ptr), uint64(n)})
	return nil
}

func (f *frame) copyBytes(t *model.Type, b []byte) (uint32, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) > MaxAlloc {
		return 0, errors.Overflow(errors.PhaseEncode, path(t), len(b), t.String())
	}
	mem, err := f.memory()
	if err != nil {
		return 0, err
	}
	ptr, err := f.alloc(uint32(len(b)), 1)
	if err != nil {
		return 0, err
	}
	if err := mem.Write(ptr, b); err != nil {
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err,
			fmt.Sprintf("write %d bytes at %d", len(b), ptr))
	}
	return ptr, nil
}

func (f *frame) listLift(in *Instr) error {
	t := in.Type
	ptr, n := uint32(f.flat(in.Src[0])), uint32(f.flat(in.Src[1]))
	if n > MaxListLength {
		return errors.InvalidData(errors.PhaseDecode, path(t),
			fmt.Sprintf("list length %d exceeds %d", n, MaxListLength))
	}
	size, ok := safeMulU32(n, in.Size)
	if !ok {
		return errors.InvalidData(errors.PhaseDecode, path(t),
			fmt.Sprintf("list of %d elements overflows memory", n))
	}

	var data []byte
	if size > 0 {
		mem, err := f.memory()
		if err != nil {
			return err
		}
		if data, err = mem.Read(ptr, size); err != nil {
			return errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err,
				fmt.Sprintf("read %d bytes at %d", size, ptr))
		}
	}

	if t.Elem.Kind == model.KindU8 {
		f.regs[in.Dst[0]] = append([]byte{}, data...)
		return nil
	}

	out := make([]any, n)
	for i := range out {
		y, err := f.run(in.Blocks[0], uint64(ptr+uint32(i)*in.Size))
		if err != nil {
			return err
		}
		out[i] = y[0]
	}
	f.regs[in.Dst[0]] = out
	return nil
}

func (f *frame) table(t *model.Type) *resource.Table {
	return f.m.env.Resources.Table(t.Resource.Name)
}

// lowerHandle turns a host value into a handle of t's table. Owned wrappers
// are queued to pass their reference along on own and are viewed on borrow;
// any other value becomes a new entry, dropped after the call when only
// borrowed.
func (f *frame) lowerHandle(t *model.Type, v any) (resource.Handle, error) {
	tbl := f.table(t)
	own := t.Kind == model.KindOwn

	switch x := v.(type) {
	case nil:
		return 0, errors.NilPointer(errors.PhaseEncode, path(t), "nil")

	case *resource.Owned:
		if x == nil {
			return 0, errors.NilPointer(errors.PhaseEncode, path(t), typeName(v))
		}
		if x.Table() != tbl {
			return 0, mismatch(t, v)
		}
		if x.Dropped() {
			return 0, errors.InvalidHandle(tbl.Name(), uint32(x.Handle()), "owner already released")
		}
		if own {
			for _, p := range f.transfers {
				if p == x {
					return 0, errors.InvalidHandle(tbl.Name(), uint32(x.Handle()), "owner passed twice")
				}
			}
			f.transfers = append(f.transfers, x)
		}
		return x.Handle(), nil

	case resource.Borrowed:
		if own || x.Table() != tbl {
			return 0, mismatch(t, v)
		}
		if _, err := tbl.Get(x.Handle()); err != nil {
			return 0, err
		}
		return x.Handle(), nil

	case resource.Handle:
		if _, err := tbl.Get(x); err != nil {
			return 0, err
		}
		return x, nil
	}

	h, err := tbl.Insert(v)
	if err != nil {
		return 0, err
	}
	if own {
		f.fresh = append(f.fresh, freshEntry{tbl: tbl, h: h})
	} else {
		f.borrowed = append(f.borrowed, func() error { return tbl.Drop(h) })
	}
	return h, nil
}

func (f *frame) liftHandle(t *model.Type, h resource.Handle) (any, error) {
	tbl := f.table(t)
	if t.Kind == model.KindOwn {
		o, err := tbl.Adopt(h)
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	if _, err := tbl.Get(h); err != nil {
		return nil, err
	}
	return tbl.Borrow(h), nil
}

func (f *frame) load(addr, off, size uint32) (uint64, error) {
	mem, err := f.memory()
	if err != nil {
		return 0, err
	}
	a, ok := safeAddU32(addr, off)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDecode, nil, int(addr), int(off))
	}
	var v uint64
	switch size {
	case 1:
		var b uint8
		b, err = mem.ReadU8(a)
		v = uint64(b)
	case 2:
		var h uint16
		h, err = mem.ReadU16(a)
		v = uint64(h)
	case 4:
		var w uint32
		w, err = mem.ReadU32(a)
		v = uint64(w)
	case 8:
		v, err = mem.ReadU64(a)
	default:
		return 0, errors.Unsupported(errors.PhaseDecode, fmt.Sprintf("load of %d bytes", size))
	}
	if err != nil {
		return 0, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err,
			fmt.Sprintf("load %d bytes at %d", size, a))
	}
	return v, nil
}

func (f *frame) store(v uint64, addr, off, size uint32) error {
	mem, err := f.memory()
	if err != nil {
		return err
	}
	a, ok := safeAddU32(addr, off)
	if !ok {
		return errors.OutOfBounds(errors.PhaseEncode, nil, int(addr), int(off))
	}
	switch size {
	case 1:
		err = mem.WriteU8(a, uint8(v))
	case 2:
		err = mem.WriteU16(a, uint16(v))
	case 4:
		err = mem.WriteU32(a, uint32(v))
	case 8:
		err = mem.WriteU64(a, v)
	default:
		return errors.Unsupported(errors.PhaseEncode, fmt.Sprintf("store of %d bytes", size))
	}
	if err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err,
			fmt.Sprintf("store %d bytes at %d", size, a))
	}
	return nil
}

// alloc requests module memory and records it for release on failure.
func (f *frame) alloc(size, align uint32) (uint32, error) {
	a := f.m.env.Allocator
	if a == nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align,
			errors.InvalidInput(errors.PhaseRuntime, "no allocator"))
	}
	if size > MaxAlloc {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align, nil)
	}
	ptr, err := a.Alloc(size, align)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align, err)
	}
	f.allocs.Add(ptr, size, align)
	return ptr, nil
}
