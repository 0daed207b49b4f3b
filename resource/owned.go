package resource

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/witbind/errors"
)

// Owned is a host-side owning reference to a table entry. It holds one
// reference count and gives it back exactly once: through Drop, through
// Release when ownership crosses the boundary, or through a cleanup when
// the wrapper becomes unreachable.
type Owned struct {
	table   *Table
	state   *ownedState
	cleanup runtime.Cleanup
}

// ownedState is kept apart from Owned so the cleanup does not keep the
// wrapper reachable.
type ownedState struct {
	handle Handle
	gen    uint32
	done   atomic.Bool
}

// Own inserts v and returns an owning wrapper for the new entry.
func (t *Table) Own(v any) (*Owned, error) {
	h, gen, err := t.insert(v)
	if err != nil {
		return nil, err
	}
	return t.wrap(h, gen), nil
}

// Adopt takes over the reference held by an owned handle received from the
// other side of the boundary.
func (t *Table) Adopt(h Handle) (*Owned, error) {
	t.mu.Lock()
	s, err := t.lookup(h)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	gen := s.gen
	t.mu.Unlock()
	return t.wrap(h, gen), nil
}

func (t *Table) wrap(h Handle, gen uint32) *Owned {
	o := &Owned{table: t, state: &ownedState{handle: h, gen: gen}}
	o.cleanup = runtime.AddCleanup(o, finalizeOwned(t), o.state)
	return o
}

func finalizeOwned(t *Table) func(*ownedState) {
	return func(s *ownedState) {
		if !s.done.CompareAndSwap(false, true) {
			return
		}
		if err := t.drop(s.handle, s.gen, true); err != nil {
			Logger().Warn("resource cleanup failed",
				zap.String("resource", t.name),
				zap.Uint32("handle", uint32(s.handle)),
				zap.Error(err))
		}
	}
}

// Handle returns the table index. It stays meaningful only while the
// wrapper is live.
func (o *Owned) Handle() Handle { return o.state.handle }

// Table returns the table holding the entry.
func (o *Owned) Table() *Table { return o.table }

// Value returns the instance.
func (o *Owned) Value() (any, error) {
	if o.state.done.Load() {
		return nil, errors.InvalidHandle(o.table.name, uint32(o.state.handle), "owner already released")
	}
	return o.table.Get(o.state.handle)
}

// Dropped reports whether the wrapper gave up its reference.
func (o *Owned) Dropped() bool { return o.state.done.Load() }

// Drop gives back the wrapper's reference. Repeated calls are no-ops.
func (o *Owned) Drop() error {
	if !o.state.done.CompareAndSwap(false, true) {
		return nil
	}
	o.cleanup.Stop()
	return o.table.drop(o.state.handle, o.state.gen, true)
}

// Release hands the wrapper's reference to the other side of the boundary
// and returns the handle to pass along. The entry stays in the table.
func (o *Owned) Release() (Handle, error) {
	if !o.state.done.CompareAndSwap(false, true) {
		return 0, errors.InvalidHandle(o.table.name, uint32(o.state.handle), "owner already released")
	}
	o.cleanup.Stop()
	return o.state.handle, nil
}

// Clone adds a reference and returns a second owner of the same entry.
func (o *Owned) Clone() (*Owned, error) {
	if o.state.done.Load() {
		return nil, errors.InvalidHandle(o.table.name, uint32(o.state.handle), "owner already released")
	}
	if _, err := o.table.Clone(o.state.handle); err != nil {
		return nil, err
	}
	return o.table.wrap(o.state.handle, o.state.gen), nil
}

// Borrow returns a non-owning view of the entry.
func (o *Owned) Borrow() Borrowed {
	return Borrowed{table: o.table, handle: o.state.handle}
}

// Borrowed is a non-owning view of a table entry. It is valid only while
// some owner keeps the entry alive, typically for the duration of a call.
type Borrowed struct {
	table  *Table
	handle Handle
}

// Borrow returns a view of h without checking it.
func (t *Table) Borrow(h Handle) Borrowed {
	return Borrowed{table: t, handle: h}
}

// Handle returns the table index.
func (b Borrowed) Handle() Handle { return b.handle }

// Table returns the table holding the entry.
func (b Borrowed) Table() *Table { return b.table }

// Value returns the instance, failing when the entry is gone.
func (b Borrowed) Value() (any, error) {
	if b.table == nil {
		return nil, errors.InvalidHandle("", uint32(b.handle), "zero borrow")
	}
	return b.table.Get(b.handle)
}
