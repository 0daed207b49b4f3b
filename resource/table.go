package resource

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/witbind/errors"
)

// Table is a reference-counted handle slab for one resource type.
//
// Every mutation happens under a single mutex. Destructors and observers run
// after the lock is released; removing the slot under the lock is what makes
// the destructor run exactly once.
type Table struct {
	name string
	dtor Destructor

	mu        sync.Mutex
	slots     []slot
	free      []Handle
	live      int
	closed    bool
	observers []subscription
	nextSub   uint64
}

type subscription struct {
	id uint64
	o  Observer
}

type slot struct {
	value any
	refs  int
	gen   uint32
	live  bool
}

// NewTable creates an empty table. A nil destructor calls Drop on values
// implementing Dropper.
func NewTable(name string, dtor Destructor) *Table {
	if dtor == nil {
		dtor = defaultDestructor
	}
	return &Table{
		name:  name,
		dtor:  dtor,
		slots: make([]slot, 0, 16),
	}
}

// Name returns the resource name the table serves.
func (t *Table) Name() string { return t.name }

// Insert stores v with a reference count of 1 and returns its handle.
func (t *Table) Insert(v any) (Handle, error) {
	h, _, err := t.insert(v)
	return h, err
}

func (t *Table) insert(v any) (Handle, uint32, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, 0, errors.InvalidHandle(t.name, 0, "table is closed")
	}

	var h Handle
	if n := len(t.free); n > 0 {
		h = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot{})
		h = Handle(len(t.slots))
	}
	s := &t.slots[h-1]
	s.value, s.refs, s.live = v, 1, true
	gen := s.gen
	t.live++
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Resource: t.name, Handle: h, Refs: 1, Value: v})
	return h, gen, nil
}

// lookup returns the live slot for h. Callers hold t.mu.
func (t *Table) lookup(h Handle) (*slot, error) {
	if h == 0 || int(h) > len(t.slots) {
		return nil, errors.InvalidHandle(t.name, uint32(h), "unknown handle")
	}
	s := &t.slots[h-1]
	if !s.live {
		return nil, errors.InvalidHandle(t.name, uint32(h), "handle was dropped")
	}
	return s, nil
}

// Get returns the instance behind h.
func (t *Table) Get(h Handle) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	return s.value, nil
}

// Refs returns the current reference count of h.
func (t *Table) Refs(h Handle) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.lookup(h)
	if err != nil {
		return 0, err
	}
	return s.refs, nil
}

// Clone adds a reference to h and returns the same handle.
func (t *Table) Clone(h Handle) (Handle, error) {
	t.mu.Lock()
	s, err := t.lookup(h)
	if err != nil {
		t.mu.Unlock()
		return 0, err
	}
	s.refs++
	refs, v := s.refs, s.value
	t.mu.Unlock()

	t.notify(Event{Type: EventCloned, Resource: t.name, Handle: h, Refs: refs, Value: v})
	return h, nil
}

// Drop removes a reference from h. The last drop removes the entry and runs
// the destructor; its error is returned.
func (t *Table) Drop(h Handle) error {
	return t.drop(h, 0, false)
}

// drop optionally checks the slot generation so a stale owner cannot drop a
// reused slot.
func (t *Table) drop(h Handle, gen uint32, checkGen bool) error {
	t.mu.Lock()
	s, err := t.lookup(h)
	if err == nil && checkGen && s.gen != gen {
		err = errors.InvalidHandle(t.name, uint32(h), "handle was dropped")
	}
	if err != nil {
		t.mu.Unlock()
		return err
	}

	s.refs--
	if s.refs > 0 {
		refs, v := s.refs, s.value
		t.mu.Unlock()
		t.notify(Event{Type: EventDropped, Resource: t.name, Handle: h, Refs: refs, Value: v})
		return nil
	}

	v := t.remove(h)
	t.mu.Unlock()

	t.notify(Event{Type: EventDropped, Resource: t.name, Handle: h, Value: v})
	return t.destroy(h, v)
}

// Take removes h regardless of its reference count and returns its value
// without running the destructor.
func (t *Table) Take(h Handle) (any, error) {
	t.mu.Lock()
	if _, err := t.lookup(h); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	v := t.remove(h)
	t.mu.Unlock()

	t.notify(Event{Type: EventDropped, Resource: t.name, Handle: h, Value: v})
	return v, nil
}

// remove frees the slot. Callers hold t.mu.
func (t *Table) remove(h Handle) any {
	s := &t.slots[h-1]
	v := s.value
	s.value, s.refs, s.live = nil, 0, false
	s.gen++
	t.free = append(t.free, h)
	t.live--
	return v
}

func (t *Table) destroy(h Handle, v any) error {
	err := t.dtor(v)
	if err != nil {
		err = errors.New(errors.PhaseResource, errors.KindDestructor).
			Path(t.name).
			Value(uint32(h)).
			Detail("destructor failed").
			Cause(err).
			Build()
	}
	Logger().Debug("resource destroyed",
		zap.String("resource", t.name),
		zap.Uint32("handle", uint32(h)),
		zap.Error(err))
	t.notify(Event{Type: EventDestroyed, Resource: t.name, Handle: h, Value: v})
	return err
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Each calls fn for every live entry until fn returns false. fn runs
// without the lock held on a snapshot of the table.
func (t *Table) Each(fn func(Handle, any) bool) {
	type item struct {
		h Handle
		v any
	}
	t.mu.Lock()
	items := make([]item, 0, t.live)
	for i, s := range t.slots {
		if s.live {
			items = append(items, item{Handle(i + 1), s.value})
		}
	}
	t.mu.Unlock()

	for _, it := range items {
		if !fn(it.h, it.v) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events and returns the function
// removing it. Calling cancel more than once is harmless.
func (t *Table) Subscribe(o Observer) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSub++
	id := t.nextSub
	t.observers = append(t.observers, subscription{id: id, o: o})
	return func() { t.unsubscribe(id) }
}

func (t *Table) unsubscribe(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// copy so snapshots taken by notify stay intact
	next := make([]subscription, 0, len(t.observers))
	for _, sub := range t.observers {
		if sub.id != id {
			next = append(next, sub)
		}
	}
	t.observers = next
}

func (t *Table) notify(e Event) {
	t.mu.Lock()
	obs := t.observers
	t.mu.Unlock()
	for _, sub := range obs {
		sub.o.OnResourceEvent(e)
	}
}

// Close destroys every live entry regardless of its reference count and
// rejects further inserts. Destructor errors are combined.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true

	type victim struct {
		h Handle
		v any
	}
	var victims []victim
	for i := range t.slots {
		if t.slots[i].live {
			h := Handle(i + 1)
			victims = append(victims, victim{h, t.remove(h)})
		}
	}
	t.mu.Unlock()

	var err error
	for _, vc := range victims {
		err = multierr.Append(err, t.destroy(vc.h, vc.v))
	}
	return err
}
