package golang

// prelude is the runtime support every generated file carries: the handle
// slab, the owned-handle state, memory access through the module's
// allocator and the scalar conversions the instruction renderer calls.
const prelude = `
var (
	ErrInvalidHandle       = errors.New("invalid handle")
	ErrInvalidCase         = errors.New("invalid case")
	ErrInvalidDiscriminant = errors.New("invalid discriminant")
	ErrInvalidUTF8         = errors.New("invalid utf-8")
	ErrInvalidChar         = errors.New("invalid char")
	ErrOutOfBounds         = errors.New("out of bounds")
	ErrAllocation          = errors.New("allocation failed")
)

const (
	maxStringSize = 1 << 30
	maxAlloc      = 1 << 30
)

var flatI32 = []api.ValueType{api.ValueTypeI32}

// Result holds Ok or, when IsErr is set, Err.
type Result[T, E any] struct {
	Ok    T
	Err   E
	IsErr bool
}

type handleSlot[T any] struct {
	value T
	refs  int
	live  bool
}

// handleTable is a reference-counted slab. Handle 0 is never issued.
type handleTable[T any] struct {
	mu    sync.Mutex
	slots []handleSlot[T]
	free  []uint32
}

func (t *handleTable[T]) insert(v T) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.free); n > 0 {
		h := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[h-1] = handleSlot[T]{value: v, refs: 1, live: true}
		return h
	}
	t.slots = append(t.slots, handleSlot[T]{value: v, refs: 1, live: true})
	return uint32(len(t.slots))
}

func (t *handleTable[T]) slot(h uint32) (*handleSlot[T], error) {
	if h == 0 || int(h) > len(t.slots) || !t.slots[h-1].live {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	return &t.slots[h-1], nil
}

func (t *handleTable[T]) get(h uint32) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.slot(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

func (t *handleTable[T]) clone(h uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.slot(h)
	if err != nil {
		return err
	}
	s.refs++
	return nil
}

// drop releases one reference and reports whether it was the last one.
func (t *handleTable[T]) drop(h uint32) (T, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	s, err := t.slot(h)
	if err != nil {
		return zero, false, err
	}
	s.refs--
	if s.refs > 0 {
		return s.value, false, nil
	}
	v := s.value
	*s = handleSlot[T]{}
	t.free = append(t.free, h)
	return v, true, nil
}

// drain removes every live entry and returns the values.
func (t *handleTable[T]) drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []T
	for k := range t.slots {
		if t.slots[k].live {
			out = append(out, t.slots[k].value)
			t.slots[k] = handleSlot[T]{}
			t.free = append(t.free, uint32(k+1))
		}
	}
	return out
}

// handleRef is kept apart from the wrapper so its cleanup does not keep
// the wrapper reachable.
type handleRef struct {
	handle uint32
	done   atomic.Bool
}

func dropValue(v any) {
	if d, ok := v.(interface{ Drop() }); ok {
		d.Drop()
	}
}

// move is one ownership transfer of a call. Fresh entries have no commit;
// undo takes them back out of the table.
type move struct {
	ref    *handleRef
	commit func() error
	undo   func()
}

// transfer collects the moves made while lowering. They take effect in
// commit, right before the boundary is crossed; until then rollback
// leaves every owner as it was.
type transfer struct {
	moves []move
	done  bool
}

func (t *transfer) claim(ref *handleRef) bool {
	for _, m := range t.moves {
		if m.ref == ref {
			return false
		}
	}
	return true
}

func (t *transfer) add(m move) { t.moves = append(t.moves, m) }

func (t *transfer) commit() error {
	t.done = true
	for k, m := range t.moves {
		if m.commit == nil {
			continue
		}
		if err := m.commit(); err != nil {
			for _, prev := range t.moves[:k] {
				prev.undo()
			}
			for _, rest := range t.moves[k+1:] {
				if rest.commit == nil {
					rest.undo()
				}
			}
			return err
		}
	}
	return nil
}

func (t *transfer) rollback() {
	if t.done {
		return
	}
	t.done = true
	for _, m := range t.moves {
		if m.commit == nil {
			m.undo()
		}
	}
}

func (i *Instance) bind(mod api.Module) {
	i.mod = mod
	i.mem = mod.Memory()
	if fn := mod.ExportedFunction("alloc"); fn != nil && len(fn.Definition().ParamTypes()) == 2 {
		i.allocFn = fn
	} else if fn := mod.ExportedFunction("cabi_realloc"); fn != nil {
		i.allocFn = fn
		i.realloc = true
	}
}

func (i *Instance) export(name string) api.Function {
	i.mu.Lock()
	defer i.mu.Unlock()
	if fn, ok := i.funcs[name]; ok {
		return fn
	}
	fn := i.mod.ExportedFunction(name)
	if fn != nil {
		i.funcs[name] = fn
	}
	return fn
}

func (i *Instance) call(ctx context.Context, name string, want int, args ...uint64) ([]uint64, error) {
	fn := i.export(name)
	if fn == nil {
		return nil, fmt.Errorf("module does not export %q", name)
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	if len(results) < want {
		return nil, fmt.Errorf("%s returned %d values, want %d", name, len(results), want)
	}
	return results, nil
}

func (i *Instance) postReturn(ctx context.Context, name string, results []uint64) error {
	fn := i.export(name)
	if fn == nil {
		return fmt.Errorf("module does not export %q", name)
	}
	_, err := fn.Call(ctx, results...)
	return err
}

// destroy runs a module destructor. Modules without one keep nothing to
// release.
func (i *Instance) destroy(ctx context.Context, name string, rep uint32) error {
	fn := i.export(name)
	if fn == nil {
		return nil
	}
	_, err := fn.Call(ctx, uint64(rep))
	return err
}

func (i *Instance) alloc(ctx context.Context, size, align uint32) (uint64, error) {
	if size == 0 {
		return 0, nil
	}
	if size > maxAlloc {
		return 0, fmt.Errorf("%w: %d bytes", ErrAllocation, size)
	}
	if i.allocFn == nil {
		return 0, fmt.Errorf("%w: module exports no allocator", ErrAllocation)
	}
	args := []uint64{uint64(size), uint64(align)}
	if i.realloc {
		args = []uint64{0, 0, uint64(align), uint64(size)}
	}
	res, err := i.allocFn.Call(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAllocation, err)
	}
	if len(res) == 0 || uint32(res[0]) == 0 {
		return 0, fmt.Errorf("%w: null pointer for %d bytes", ErrAllocation, size)
	}
	return uint64(uint32(res[0])), nil
}

func (i *Instance) allocList(ctx context.Context, n int, size, align uint32) (uint64, error) {
	total := uint64(n) * uint64(size)
	if total > maxAlloc {
		return 0, fmt.Errorf("%w: list of %d elements", ErrAllocation, n)
	}
	return i.alloc(ctx, uint32(total), align)
}

func (i *Instance) checkRange(ptr, n uint64) error {
	if i.mem == nil {
		return fmt.Errorf("%w: module has no memory", ErrOutOfBounds)
	}
	if ptr+n < ptr || ptr+n > uint64(i.mem.Size()) {
		return fmt.Errorf("%w: %d bytes at %d", ErrOutOfBounds, n, ptr)
	}
	return nil
}

func (i *Instance) checkList(ptr, n uint64, size uint32) error {
	if n > maxAlloc {
		return fmt.Errorf("%w: list of %d elements", ErrOutOfBounds, n)
	}
	return i.checkRange(ptr, n*uint64(size))
}

func (i *Instance) load(addr uint64, off, size uint32) (uint64, error) {
	p := addr + uint64(off)
	if err := i.checkRange(p, uint64(size)); err != nil {
		return 0, err
	}
	a := uint32(p)
	switch size {
	case 1:
		v, _ := i.mem.ReadByte(a)
		return uint64(v), nil
	case 2:
		v, _ := i.mem.ReadUint16Le(a)
		return uint64(v), nil
	case 4:
		v, _ := i.mem.ReadUint32Le(a)
		return uint64(v), nil
	}
	v, _ := i.mem.ReadUint64Le(a)
	return v, nil
}

func (i *Instance) store(addr uint64, off, size uint32, v uint64) error {
	p := addr + uint64(off)
	if err := i.checkRange(p, uint64(size)); err != nil {
		return err
	}
	a := uint32(p)
	switch size {
	case 1:
		i.mem.WriteByte(a, byte(v))
	case 2:
		i.mem.WriteUint16Le(a, uint16(v))
	case 4:
		i.mem.WriteUint32Le(a, uint32(v))
	default:
		i.mem.WriteUint64Le(a, v)
	}
	return nil
}

func (i *Instance) lowerBytes(ctx context.Context, b []byte) (uint64, uint64, error) {
	if len(b) == 0 {
		return 0, 0, nil
	}
	if len(b) > maxStringSize {
		return 0, 0, fmt.Errorf("%w: %d bytes", ErrAllocation, len(b))
	}
	ptr, err := i.alloc(ctx, uint32(len(b)), 1)
	if err != nil {
		return 0, 0, err
	}
	if err := i.checkRange(ptr, uint64(len(b))); err != nil {
		return 0, 0, err
	}
	i.mem.Write(uint32(ptr), b)
	return ptr, uint64(len(b)), nil
}

func (i *Instance) lowerString(ctx context.Context, s string) (uint64, uint64, error) {
	if !utf8.ValidString(s) {
		return 0, 0, ErrInvalidUTF8
	}
	return i.lowerBytes(ctx, []byte(s))
}

func (i *Instance) liftBytes(ptr, n uint64) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	if err := i.checkRange(ptr, n); err != nil {
		return nil, err
	}
	b, _ := i.mem.Read(uint32(ptr), uint32(n))
	return append([]byte(nil), b...), nil
}

func (i *Instance) liftString(ptr, n uint64) (string, error) {
	if n == 0 {
		return "", nil
	}
	if err := i.checkRange(ptr, n); err != nil {
		return "", err
	}
	b, _ := i.mem.Read(uint32(ptr), uint32(n))
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

func lowerBool(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func lowerF32(f float32) uint64 {
	if math.IsNaN(float64(f)) {
		return 0x7fc00000
	}
	return uint64(math.Float32bits(f))
}

func lowerF64(f float64) uint64 {
	if math.IsNaN(f) {
		return 0x7ff8000000000000
	}
	return math.Float64bits(f)
}

func validChar(r uint64) bool {
	return r < 0xd800 || (r > 0xdfff && r < 0x110000)
}

func lowerChar(r rune) (uint64, error) {
	if r < 0 || !validChar(uint64(r)) {
		return 0, fmt.Errorf("%w: %#x", ErrInvalidChar, r)
	}
	return uint64(r), nil
}

func liftChar(v uint64) (rune, error) {
	if !validChar(v) {
		return 0, fmt.Errorf("%w: %#x", ErrInvalidChar, v)
	}
	return rune(v), nil
}
`
