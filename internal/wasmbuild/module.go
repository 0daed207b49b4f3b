package wasmbuild

import (
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// Module is a core module under construction. Imports must be declared
// before any function so function indices stay stable.
type Module struct {
	types    []funcType
	typeIdx  map[string]uint32
	imports  []funcImport
	funcs    []*Func
	memPages uint32
	memName  string
	hasMem   bool
	globals  []global
	exports  []export
	segments []segment
}

type funcType struct {
	params, results []api.ValueType
}

type funcImport struct {
	module, name string
	typ          uint32
}

type global struct {
	typ     api.ValueType
	mutable bool
	init    int64
}

type export struct {
	name  string
	kind  byte
	index uint32
}

type segment struct {
	offset uint32
	data   []byte
}

const (
	kindFunc   byte = 0x00
	kindMemory byte = 0x02
	kindGlobal byte = 0x03
)

// Func is a function defined by the module.
type Func struct {
	index  uint32
	typ    uint32
	locals []api.ValueType
	body   Code
}

// Index returns the function index, counting imports first.
func (f *Func) Index() uint32 { return f.index }

// Body returns the instruction builder. The closing end is added on encode.
func (f *Func) Body() *Code { return &f.body }

// New creates an empty module.
func New() *Module {
	return &Module{typeIdx: make(map[string]uint32)}
}

func (m *Module) typeOf(params, results []api.ValueType) uint32 {
	var b strings.Builder
	for _, p := range params {
		b.WriteByte(valType(p))
	}
	b.WriteByte(':')
	for _, r := range results {
		b.WriteByte(valType(r))
	}
	key := b.String()
	if i, ok := m.typeIdx[key]; ok {
		return i
	}
	i := uint32(len(m.types))
	m.types = append(m.types, funcType{params: params, results: results})
	m.typeIdx[key] = i
	return i
}

// ImportFunc declares a function import and returns its index.
func (m *Module) ImportFunc(module, name string, params, results []api.ValueType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmbuild: import declared after a function")
	}
	m.imports = append(m.imports, funcImport{module: module, name: name, typ: m.typeOf(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function with extra locals after its params.
func (m *Module) Func(params, results []api.ValueType, locals ...api.ValueType) *Func {
	f := &Func{
		index:  uint32(len(m.imports) + len(m.funcs)),
		typ:    m.typeOf(params, results),
		locals: locals,
	}
	m.funcs = append(m.funcs, f)
	return f
}

// Memory defines the module's memory with a minimum size in 64KiB pages,
// exported under name when name is not empty.
func (m *Module) Memory(pages uint32, name string) {
	m.hasMem = true
	m.memPages = pages
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: kindMemory})
	}
}

// Global defines an i32 or i64 global and returns its index.
func (m *Module) Global(t api.ValueType, mutable bool, init int64) uint32 {
	m.globals = append(m.globals, global{typ: t, mutable: mutable, init: init})
	return uint32(len(m.globals) - 1)
}

// ExportFunc exports f under name.
func (m *Module) ExportFunc(name string, f *Func) {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, index: f.index})
}

// ExportGlobal exports global i under name.
func (m *Module) ExportGlobal(name string, i uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindGlobal, index: i})
}

// Data places bytes in memory at offset on instantiation.
func (m *Module) Data(offset uint32, data []byte) {
	m.segments = append(m.segments, segment{offset: offset, data: data})
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		sec := appendULEB128(nil, uint32(len(m.types)))
		for _, t := range m.types {
			sec = append(sec, 0x60)
			sec = appendULEB128(sec, uint32(len(t.params)))
			for _, p := range t.params {
				sec = append(sec, valType(p))
			}
			sec = appendULEB128(sec, uint32(len(t.results)))
			for _, r := range t.results {
				sec = append(sec, valType(r))
			}
		}
		out = appendSection(out, 0x01, sec)
	}

	if len(m.imports) > 0 {
		sec := appendULEB128(nil, uint32(len(m.imports)))
		for _, im := range m.imports {
			sec = appendName(sec, im.module)
			sec = appendName(sec, im.name)
			sec = append(sec, kindFunc)
			sec = appendULEB128(sec, im.typ)
		}
		out = appendSection(out, 0x02, sec)
	}

	if len(m.funcs) > 0 {
		sec := appendULEB128(nil, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec = appendULEB128(sec, f.typ)
		}
		out = appendSection(out, 0x03, sec)
	}

	if m.hasMem {
		sec := appendULEB128(nil, 1)
		sec = append(sec, 0x00)
		sec = appendULEB128(sec, m.memPages)
		out = appendSection(out, 0x05, sec)
	}

	if len(m.globals) > 0 {
		sec := appendULEB128(nil, uint32(len(m.globals)))
		for _, g := range m.globals {
			sec = append(sec, valType(g.typ))
			if g.mutable {
				sec = append(sec, 0x01)
			} else {
				sec = append(sec, 0x00)
			}
			if g.typ == api.ValueTypeI64 {
				sec = appendSLEB128(append(sec, 0x42), g.init)
			} else {
				sec = appendSLEB128(append(sec, 0x41), int32(g.init))
			}
			sec = append(sec, 0x0b)
		}
		out = appendSection(out, 0x06, sec)
	}

	if len(m.exports) > 0 {
		sec := appendULEB128(nil, uint32(len(m.exports)))
		for _, e := range m.exports {
			sec = appendName(sec, e.name)
			sec = append(sec, e.kind)
			sec = appendULEB128(sec, e.index)
		}
		out = appendSection(out, 0x07, sec)
	}

	if len(m.funcs) > 0 {
		sec := appendULEB128(nil, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			body := appendULEB128(nil, uint32(len(f.locals)))
			for _, l := range f.locals {
				body = appendULEB128(body, 1)
				body = append(body, valType(l))
			}
			body = append(body, f.body.buf...)
			body = append(body, 0x0b)
			sec = appendULEB128(sec, uint32(len(body)))
			sec = append(sec, body...)
		}
		out = appendSection(out, 0x0a, sec)
	}

	if len(m.segments) > 0 {
		sec := appendULEB128(nil, uint32(len(m.segments)))
		for _, s := range m.segments {
			sec = append(sec, 0x00, 0x41)
			sec = appendSLEB128(sec, int32(s.offset))
			sec = append(sec, 0x0b)
			sec = appendULEB128(sec, uint32(len(s.data)))
			sec = append(sec, s.data...)
		}
		out = appendSection(out, 0x0b, sec)
	}

	return out
}
