package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Memory adapts a wazero memory to witbind.Memory.
type Memory struct {
	mem api.Memory
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *Memory) WriteU16(offset uint32, value uint16) error {
	if !m.mem.WriteUint16Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 { return m.mem.Size() }

// allocator calls the module's allocator export. witbind.Allocator
// carries no context, so calls run on the background context.
type allocator struct {
	allocFn api.Function
	freeFn  api.Function
	realloc bool
}

func newAllocator(mod api.Module) *allocator {
	a := &allocator{}
	if fn := mod.ExportedFunction(simpleAlloc); fn != nil && len(fn.Definition().ParamTypes()) == 2 {
		a.allocFn = fn
	} else if fn := mod.ExportedFunction(CabiRealloc); fn != nil && len(fn.Definition().ParamTypes()) == 4 {
		a.allocFn = fn
		a.realloc = true
	}
	if fn := mod.ExportedFunction(CabiFree); fn != nil {
		a.freeFn = fn
	} else if fn := mod.ExportedFunction(simpleFree); fn != nil {
		a.freeFn = fn
	}
	return a
}

func (a *allocator) Alloc(size, align uint32) (uint32, error) {
	if a.allocFn == nil {
		return 0, fmt.Errorf("module exports no allocator")
	}
	var stack []uint64
	if a.realloc {
		stack = []uint64{0, 0, uint64(align), uint64(size)}
	} else {
		stack = []uint64{uint64(size), uint64(align)}
	}
	if err := a.allocFn.CallWithStack(context.Background(), stack); err != nil {
		return 0, err
	}
	ptr := uint32(stack[0])
	if ptr == 0 && size > 0 {
		return 0, fmt.Errorf("allocator returned null for %d bytes", size)
	}
	return ptr, nil
}

func (a *allocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}
	var stack []uint64
	switch len(a.freeFn.Definition().ParamTypes()) {
	case 1:
		stack = []uint64{uint64(ptr)}
	default:
		stack = []uint64{uint64(ptr), uint64(size), uint64(align)}
	}
	if err := a.freeFn.CallWithStack(context.Background(), stack); err != nil {
		Logger().Warn("free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}
