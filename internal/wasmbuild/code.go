package wasmbuild

import (
	"github.com/tetratelabs/wazero/api"
)

// Code accumulates a function body. Every method appends one instruction
// and returns the receiver for chaining.
type Code struct {
	buf []byte
}

func (c *Code) op(b ...byte) *Code {
	c.buf = append(c.buf, b...)
	return c
}

func (c *Code) idx(op byte, i uint32) *Code {
	c.buf = appendULEB128(append(c.buf, op), i)
	return c
}

// memarg encodes a memory access with natural alignment.
func (c *Code) memarg(op byte, alignLog2, offset uint32) *Code {
	c.buf = append(c.buf, op)
	c.buf = appendULEB128(c.buf, alignLog2)
	c.buf = appendULEB128(c.buf, offset)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(0x00) }
func (c *Code) Block() *Code       { return c.op(0x02, 0x40) }
func (c *Code) Loop() *Code        { return c.op(0x03, 0x40) }
func (c *Code) If() *Code          { return c.op(0x04, 0x40) }
func (c *Code) Else() *Code        { return c.op(0x05) }
func (c *Code) End() *Code         { return c.op(0x0b) }
func (c *Code) Return() *Code      { return c.op(0x0f) }
func (c *Code) Drop() *Code        { return c.op(0x1a) }

// IfResult opens an if block producing one value of type t.
func (c *Code) IfResult(t api.ValueType) *Code { return c.op(0x04, valType(t)) }

func (c *Code) Br(depth uint32) *Code   { return c.idx(0x0c, depth) }
func (c *Code) BrIf(depth uint32) *Code { return c.idx(0x0d, depth) }
func (c *Code) Call(fn uint32) *Code    { return c.idx(0x10, fn) }

func (c *Code) LocalGet(i uint32) *Code  { return c.idx(0x20, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.idx(0x21, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.idx(0x22, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.idx(0x23, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.idx(0x24, i) }

func (c *Code) I32Load(offset uint32) *Code   { return c.memarg(0x28, 2, offset) }
func (c *Code) I64Load(offset uint32) *Code   { return c.memarg(0x29, 3, offset) }
func (c *Code) I32Load8U(offset uint32) *Code { return c.memarg(0x2d, 0, offset) }
func (c *Code) I32Store(offset uint32) *Code  { return c.memarg(0x36, 2, offset) }
func (c *Code) I64Store(offset uint32) *Code  { return c.memarg(0x37, 3, offset) }
func (c *Code) I32Store8(offset uint32) *Code { return c.memarg(0x3a, 0, offset) }

func (c *Code) I32Const(v int32) *Code {
	c.buf = appendSLEB128(append(c.buf, 0x41), v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.buf = appendSLEB128(append(c.buf, 0x42), v)
	return c
}

func (c *Code) I32Eqz() *Code        { return c.op(0x45) }
func (c *Code) I32Eq() *Code         { return c.op(0x46) }
func (c *Code) I32Ne() *Code         { return c.op(0x47) }
func (c *Code) I32LtU() *Code        { return c.op(0x49) }
func (c *Code) I32GeU() *Code        { return c.op(0x4f) }
func (c *Code) I32Add() *Code        { return c.op(0x6a) }
func (c *Code) I32Sub() *Code        { return c.op(0x6b) }
func (c *Code) I32Mul() *Code        { return c.op(0x6c) }
func (c *Code) I32And() *Code        { return c.op(0x71) }
func (c *Code) I64Add() *Code        { return c.op(0x7c) }
func (c *Code) I32WrapI64() *Code    { return c.op(0xa7) }
func (c *Code) I64ExtendI32U() *Code { return c.op(0xad) }

// Bytes returns the instructions appended so far.
func (c *Code) Bytes() []byte { return c.buf }
