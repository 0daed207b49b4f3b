package layout

import (
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/model"
)

// Canonical ABI flattening limits.
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

// Layout is the memory and flat representation of a type.
type Layout struct {
	Size  uint32
	Align uint32
	Flat  []api.ValueType

	// Offsets of record fields or tuple elements, in declaration order.
	Offsets []uint32

	// Variant-likes only.
	DiscSize      uint32
	PayloadOffset uint32
}

// FlatCount returns the number of core values t flattens to.
func (l *Layout) FlatCount() int { return len(l.Flat) }

// Engine computes layouts and memoizes them per type. Safe for concurrent use.
type Engine struct {
	mu    sync.Mutex
	cache map[*model.Type]*Layout
	sigs  map[sigKey]*Signature
}

// New creates an empty layout engine.
func New() *Engine {
	return &Engine{
		cache: make(map[*model.Type]*Layout),
		sigs:  make(map[sigKey]*Signature),
	}
}

// Of returns the layout of t. The returned value is shared; do not modify it.
func (e *Engine) Of(t *model.Type) *Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.of(t)
}

func (e *Engine) of(t *model.Type) *Layout {
	if l, ok := e.cache[t]; ok {
		return l
	}

	var l *Layout
	switch t.Kind {
	case model.KindBool, model.KindU8, model.KindS8:
		l = &Layout{Size: 1, Align: 1, Flat: []api.ValueType{api.ValueTypeI32}}
	case model.KindU16, model.KindS16:
		l = &Layout{Size: 2, Align: 2, Flat: []api.ValueType{api.ValueTypeI32}}
	case model.KindU32, model.KindS32, model.KindChar:
		l = &Layout{Size: 4, Align: 4, Flat: []api.ValueType{api.ValueTypeI32}}
	case model.KindF32:
		l = &Layout{Size: 4, Align: 4, Flat: []api.ValueType{api.ValueTypeF32}}
	case model.KindU64, model.KindS64:
		l = &Layout{Size: 8, Align: 8, Flat: []api.ValueType{api.ValueTypeI64}}
	case model.KindF64:
		l = &Layout{Size: 8, Align: 8, Flat: []api.ValueType{api.ValueTypeF64}}
	case model.KindString, model.KindList:
		l = &Layout{Size: 8, Align: 4, Flat: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}} // [ptr, len]
	case model.KindOwn, model.KindBorrow:
		l = &Layout{Size: 4, Align: 4, Flat: []api.ValueType{api.ValueTypeI32}}
	case model.KindRecord:
		fields := make([]*model.Type, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = f.Type
		}
		l = e.structOf(fields)
	case model.KindTuple:
		l = e.structOf(t.Elems)
	case model.KindFlags:
		l = flagsLayout(len(t.Flags))
	case model.KindVariant, model.KindEnum, model.KindOption, model.KindResult:
		l = e.variantOf(t)
	default:
		l = &Layout{Size: 0, Align: 1}
	}

	e.cache[t] = l
	return l
}

// structOf lays out types in order, each at its own alignment.
func (e *Engine) structOf(types []*model.Type) *Layout {
	l := &Layout{Align: 1, Offsets: make([]uint32, len(types))}
	offset := uint32(0)
	for i, ft := range types {
		fl := e.of(ft)
		offset = AlignTo(offset, fl.Align)
		l.Offsets[i] = offset
		if fl.Align > l.Align {
			l.Align = fl.Align
		}
		offset += fl.Size
		l.Flat = append(l.Flat, fl.Flat...)
	}
	l.Size = AlignTo(offset, l.Align)
	return l
}

func (e *Engine) variantOf(t *model.Type) *Layout {
	n := t.CaseCount()
	disc := DiscriminantSize(n)

	maxAlign := disc
	maxSize := uint32(0)
	var payload []api.ValueType
	for i := 0; i < n; i++ {
		ct := t.CaseType(i)
		if ct == nil {
			continue
		}
		cl := e.of(ct)
		if cl.Align > maxAlign {
			maxAlign = cl.Align
		}
		if cl.Size > maxSize {
			maxSize = cl.Size
		}
		for j, ft := range cl.Flat {
			if j < len(payload) {
				payload[j] = Join(payload[j], ft)
			} else {
				payload = append(payload, ft)
			}
		}
	}

	payloadOffset := AlignTo(disc, maxAlign)
	return &Layout{
		Size:          AlignTo(payloadOffset+maxSize, maxAlign),
		Align:         maxAlign,
		Flat:          append([]api.ValueType{api.ValueTypeI32}, payload...),
		DiscSize:      disc,
		PayloadOffset: payloadOffset,
	}
}

func flagsLayout(n int) *Layout {
	switch {
	case n == 0:
		return &Layout{Size: 0, Align: 1}
	case n <= 8:
		return &Layout{Size: 1, Align: 1, Flat: []api.ValueType{api.ValueTypeI32}}
	case n <= 16:
		return &Layout{Size: 2, Align: 2, Flat: []api.ValueType{api.ValueTypeI32}}
	case n <= 32:
		return &Layout{Size: 4, Align: 4, Flat: []api.ValueType{api.ValueTypeI32}}
	case n <= 64:
		return &Layout{Size: 8, Align: 8, Flat: []api.ValueType{api.ValueTypeI64}}
	}
	words := FlagWords(n)
	flat := make([]api.ValueType, words)
	for i := range flat {
		flat[i] = api.ValueTypeI32
	}
	return &Layout{Size: uint32(words) * 4, Align: 4, Flat: flat}
}

// FlagWords is the number of u32 words holding n flags when n exceeds 64.
func FlagWords(n int) int {
	return (n + 31) / 32
}

// AlignTo rounds offset up to a multiple of align.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// DiscriminantSize returns the byte width of a discriminant for n cases.
func DiscriminantSize(n int) uint32 {
	switch {
	case n <= 1<<8:
		return 1
	case n <= 1<<16:
		return 2
	}
	return 4
}

// Join unifies two core types sharing a variant payload position.
func Join(a, b api.ValueType) api.ValueType {
	if a == b {
		return a
	}
	if (a == api.ValueTypeI32 && b == api.ValueTypeF32) ||
		(a == api.ValueTypeF32 && b == api.ValueTypeI32) {
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}
