package abi

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/wippyai/witbind/layout"
	"github.com/wippyai/witbind/model"
)

type mockMemory struct {
	data []byte
}

func newMockMemory(size int) *mockMemory {
	return &mockMemory{data: make([]byte, size)}
}

func (m *mockMemory) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return fmt.Errorf("access %d+%d outside %d bytes", offset, length, len(m.data))
	}
	return nil
}

func (m *mockMemory) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	return m.data[offset : offset+length], nil
}

func (m *mockMemory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *mockMemory) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.data[offset], nil
}

func (m *mockMemory) ReadU16(offset uint32) (uint16, error) {
	if err := m.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *mockMemory) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *mockMemory) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *mockMemory) WriteU8(offset uint32, value uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.data[offset] = value
	return nil
}

func (m *mockMemory) WriteU16(offset uint32, value uint16) error {
	if err := m.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU32(offset uint32, value uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU64(offset uint32, value uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

// mockAllocator bumps from 1024 so no valid pointer is zero.
type mockAllocator struct {
	offset uint32
	live   map[uint32]uint32
	freed  int
}

func newMockAllocator() *mockAllocator {
	return &mockAllocator{offset: 1024, live: make(map[uint32]uint32)}
}

func (a *mockAllocator) Alloc(size, align uint32) (uint32, error) {
	a.offset = layout.AlignTo(a.offset, align)
	ptr := a.offset
	a.offset += size
	a.live[ptr] = size
	return ptr, nil
}

func (a *mockAllocator) Free(ptr, size, align uint32) {
	delete(a.live, ptr)
	a.freed++
}

// mockCallee dispatches CallWasm to per-name functions and records calls.
type mockCallee struct {
	exports map[string]func(args []uint64) ([]uint64, error)
	host    func(f *model.Function, args []any) (any, error)
	calls   []string
}

func (c *mockCallee) CallWasm(_ context.Context, name string, args []uint64) ([]uint64, error) {
	c.calls = append(c.calls, name)
	fn, ok := c.exports[name]
	if !ok {
		return nil, fmt.Errorf("no export %q", name)
	}
	return fn(args)
}

func (c *mockCallee) CallHost(_ context.Context, f *model.Function, args []any) (any, error) {
	c.calls = append(c.calls, f.Name)
	return c.host(f, args)
}

func (c *mockCallee) count(name string) int {
	n := 0
	for _, c := range c.calls {
		if c == name {
			n++
		}
	}
	return n
}

type testEnv struct {
	mem    *mockMemory
	alloc  *mockAllocator
	callee *mockCallee
	gen    *Generator
	m      *Machine
}

func newTestEnv() *testEnv {
	e := &testEnv{
		mem:    newMockMemory(1 << 16),
		alloc:  newMockAllocator(),
		callee: &mockCallee{exports: make(map[string]func([]uint64) ([]uint64, error))},
		gen:    NewGenerator(layout.New()),
	}
	e.m = NewMachine(Env{Memory: e.mem, Allocator: e.alloc, Callee: e.callee})
	return e
}
